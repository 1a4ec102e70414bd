package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	// registers the platform camera driver
	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"go2tv.app/screenpump/media"
)

// CameraSource reads the first video device through mediadevices.
type CameraSource struct {
	stream mediadevices.MediaStream
	reader video.Reader
	width  int
	height int

	closeOnce sync.Once
	closeErr  error
}

func OpenCamera(options *Options) (*CameraSource, error) {
	o, err := normalizeOptions(options)
	if err != nil {
		return nil, err
	}
	width, height := o.Width, o.Height
	if width == 0 {
		width, height = 640, 480
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(width)
			c.Height = prop.Int(height)
			c.FrameRate = prop.Float(float32(o.FrameRate))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		closeTracks(stream)
		return nil, fmt.Errorf("open camera: %w", ErrNoStreams)
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		closeTracks(stream)
		return nil, fmt.Errorf("open camera: unexpected track type %T", tracks[0])
	}

	o.Logger.Debug("camera source opened", "width", width, "height", height, "fps", o.FrameRate)
	return &CameraSource{
		stream: stream,
		reader: track.NewReader(false),
		width:  width,
		height: height,
	}, nil
}

func (s *CameraSource) Size() (int, int) {
	return s.width, s.height
}

func (s *CameraSource) Capture(ctx context.Context) (*media.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, release, err := s.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read camera: %w", err)
	}
	if release != nil {
		defer release()
	}
	return imageToRGB(img, s.width, s.height), nil
}

func (s *CameraSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = closeTracks(s.stream)
	})
	return s.closeErr
}

func closeTracks(stream mediadevices.MediaStream) error {
	var errs []error
	for _, t := range stream.GetTracks() {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
