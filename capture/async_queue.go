package capture

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenpump/internal/logging"
)

const defaultCallbackVideoQueue = 2

// frameQueue hands buffers from a backend callback thread to Capture. When
// the consumer falls behind the oldest buffer is dropped so the callback
// never blocks and the consumer always sees recent pixels.
type frameQueue struct {
	platform string
	streamID int
	log      *slog.Logger

	queue chan []byte
	done  chan struct{}

	closeOnce sync.Once

	lastDropLog atomic.Int64
	dropped     atomic.Uint64
}

func newFrameQueue(platform string, streamID int, queueSize int, log *slog.Logger) *frameQueue {
	if queueSize <= 0 {
		queueSize = defaultCallbackVideoQueue
	}
	return &frameQueue{
		platform: platform,
		streamID: streamID,
		log:      log,
		queue:    make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
}

func (q *frameQueue) Enqueue(frame []byte) {
	if q == nil || len(frame) == 0 {
		return
	}

	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.queue <- frame:
		return
	default:
	}

	select {
	case <-q.queue:
		q.noteDrop()
	default:
	}

	select {
	case q.queue <- frame:
	default:
		q.noteDrop()
	}
}

func (q *frameQueue) noteDrop() {
	total := q.dropped.Add(1)
	if logging.ShouldLog(&q.lastDropLog, time.Second) {
		q.log.Debug("dropped frame",
			"platform", q.platform,
			"stream", q.streamID,
			"total", total,
			"queue", len(q.queue),
		)
	}
}

// Next blocks for the next buffer. It returns io.EOF once the queue is
// closed.
func (q *frameQueue) Next(ctx context.Context) ([]byte, error) {
	select {
	case b := <-q.queue:
		return b, nil
	default:
	}

	select {
	case b := <-q.queue:
		return b, nil
	case <-q.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *frameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *frameQueue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
