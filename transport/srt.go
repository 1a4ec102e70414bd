package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zsiec/srtgo"

	"go2tv.app/screenpump/media"
)

const (
	// SRTChunk is the SRT live-mode payload size.
	SRTChunk = 1316
	// srtLatencyNs is the receiver buffer latency in nanoseconds (120ms).
	srtLatencyNs = 120_000_000
)

// SRT sends segments to a listener in caller mode.
type SRT struct {
	conn     *srtgo.Conn
	streamID string
	log      *slog.Logger

	closeOnce sync.Once
}

// DialSRT connects to ep. The stream id comes from ?streamid= and defaults
// to a fresh "screenpump/<uuid>".
func DialSRT(ctx context.Context, ep Endpoint, timeout time.Duration, log *slog.Logger) (*SRT, error) {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs

	streamID := strings.TrimSpace(ep.Query.Get("streamid"))
	if streamID == "" {
		streamID = "screenpump/" + uuid.NewString()
	}
	cfg.StreamID = streamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(ep.Addr(), cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: srt dial %s: %w", ErrSendFailed, ep.Addr(), res.err)
		}
		log.Info("srt connected", "remote", ep.Addr(), "stream_id", streamID)
		return &SRT{conn: res.conn, streamID: streamID, log: log}, nil
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: srt dial timed out after %s", ErrSendFailed, timeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (s *SRT) StreamID() string {
	return s.streamID
}

func (s *SRT) send(chunk []byte) error {
	n, err := s.conn.Write(chunk)
	if err != nil {
		return err
	}
	if n != len(chunk) {
		return fmt.Errorf("short write %d of %d", n, len(chunk))
	}
	return nil
}

func (s *SRT) write(seg []byte) (int, error) {
	return sendChunked(seg, SRTChunk, s.send)
}

func (s *SRT) WriteHeaders(segments [][]byte) (int, error) {
	return writeSegments(segments, s.write)
}

func (s *SRT) WriteAccessUnit(au media.AccessUnit) (int, error) {
	return writeSegments(au.Segments, s.write)
}

func (s *SRT) Close(int64, int64) error {
	s.closeOnce.Do(func() {
		s.conn.Close()
		s.log.Debug("srt closed", "stream_id", s.streamID)
	})
	return nil
}
