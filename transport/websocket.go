package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go2tv.app/screenpump/media"
)

const wsWriteTimeout = 5 * time.Second

// endOfStream is the text message a WebSocket output sends before closing.
type endOfStream struct {
	Type             string `json:"type"`
	LargestPTS       int64  `json:"largest_pts"`
	SecondLargestPTS int64  `json:"second_largest_pts"`
}

// WebSocket sends one binary message per segment.
type WebSocket struct {
	conn *websocket.Conn
	log  *slog.Logger
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func DialWebSocket(ctx context.Context, ep Endpoint, timeout time.Duration, log *slog.Logger) (*WebSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, ep.Raw, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: websocket dial %s: %s: %w", ErrSendFailed, ep.Raw, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: websocket dial %s: %w", ErrSendFailed, ep.Raw, err)
	}
	ws := &WebSocket{conn: conn, log: log, done: make(chan struct{})}
	go ws.readLoop()
	log.Info("websocket connected", "url", ep.Raw)
	return ws, nil
}

// readLoop keeps control frames flowing; the peer is not expected to send
// data.
func (w *WebSocket) readLoop() {
	defer close(w.done)
	for {
		if _, _, err := w.conn.NextReader(); err != nil {
			return
		}
	}
}

func (w *WebSocket) write(seg []byte) (int, error) {
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, seg); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return len(seg), nil
}

func (w *WebSocket) WriteHeaders(segments [][]byte) (int, error) {
	return writeSegments(segments, w.write)
}

func (w *WebSocket) WriteAccessUnit(au media.AccessUnit) (int, error) {
	return writeSegments(au.Segments, w.write)
}

// Close tells the peer the final timestamps, then closes the connection.
func (w *WebSocket) Close(largestPTS, secondLargestPTS int64) error {
	w.closeOnce.Do(func() {
		deadline := time.Now().Add(wsWriteTimeout)
		_ = w.conn.SetWriteDeadline(deadline)

		var errs []error
		msg, _ := json.Marshal(endOfStream{Type: "eos", LargestPTS: largestPTS, SecondLargestPTS: secondLargestPTS})
		if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			errs = append(errs, err)
		}
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := w.conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			errs = append(errs, err)
		}

		select {
		case <-w.done:
		case <-time.After(time.Second):
		}
		errs = append(errs, w.conn.Close())
		w.closeErr = errors.Join(errs...)
		if w.closeErr != nil {
			w.log.Debug("websocket close", "err", w.closeErr)
		}
	})
	return w.closeErr
}
