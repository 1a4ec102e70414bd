//go:build !linux

package capture

import (
	"context"
	"fmt"
)

func OpenPortal(ctx context.Context, options *Options) (*ScreenSource, error) {
	_, _ = ctx, options
	return nil, fmt.Errorf("%w: the screencast portal is linux only", ErrNotImplemented)
}
