//go:build !linux && !freebsd && !openbsd && !netbsd

package capture

func newPointerLocator() (PointerLocator, error) {
	return nil, ErrPointerUnavailable
}
