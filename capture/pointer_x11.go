//go:build linux || freebsd || openbsd || netbsd

package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

type x11Pointer struct {
	mu   sync.Mutex
	conn *xgb.Conn
	root xproto.Window
}

func newPointerLocator() (PointerLocator, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPointerUnavailable, err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)
	return &x11Pointer{conn: conn, root: screen.Root}, nil
}

func (p *x11Pointer) Pointer() (image.Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return image.Point{}, ErrPointerUnavailable
	}
	reply, err := xproto.QueryPointer(p.conn, p.root).Reply()
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %v", ErrPointerUnavailable, err)
	}
	return image.Pt(int(reply.RootX), int(reply.RootY)), nil
}

func (p *x11Pointer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}
