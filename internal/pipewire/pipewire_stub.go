//go:build !linux || !cgo

package pipewire

import "errors"

var ErrLibraryNotLoaded = errors.New("pipewire capture backend is only available on linux")

type Stream struct{}

func IsAvailable() bool {
	return false
}

func NewStream(fd int, nodeID uint32, width, height, frameRate uint32, onFrame FrameFunc) (*Stream, error) {
	return nil, ErrLibraryNotLoaded
}

func (s *Stream) Info() Info { return Info{} }

func (s *Stream) Err() error { return nil }

func (s *Stream) Start() {}

func (s *Stream) Stop() {}

func (s *Stream) Close() error {
	return nil
}
