package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

const (
	defaultHTTPClientQueue = 64
	httpShutdownTimeout    = 3 * time.Second
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// httpClient is one connected viewer. The oldest payload is dropped when it
// falls behind.
type httpClient struct {
	queue   chan []byte
	dropped atomic.Uint64
}

func (c *httpClient) offer(p []byte) {
	select {
	case c.queue <- p:
		return
	default:
	}
	select {
	case <-c.queue:
		c.dropped.Add(1)
	default:
	}
	select {
	case c.queue <- p:
	default:
		c.dropped.Add(1)
	}
}

// HTTP serves the live elementary stream to any number of HTTP clients.
// Every client first receives the stream headers, then each access unit
// written after it connected.
type HTTP struct {
	path     string
	listener net.Listener
	server   *http.Server
	log      *slog.Logger

	mu      sync.Mutex
	headers []byte
	clients map[*httpClient]struct{}

	done        chan struct{}
	lastDropLog atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// ListenHTTP binds ep's host and port and serves the stream at ep.Path.
func ListenHTTP(ep Endpoint, log *slog.Logger) (*HTTP, error) {
	if log == nil {
		log = logging.Discard()
	}
	ln, err := net.Listen("tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrInvalidEndpoint, ep.Addr(), err)
	}
	h := &HTTP{
		path:     path.Clean("/" + ep.Path),
		listener: ln,
		log:      log,
		clients:  make(map[*httpClient]struct{}),
		done:     make(chan struct{}),
	}
	h.server = &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("http output stopped", "err", err)
		}
	}()
	log.Info("http output listening", "addr", ln.Addr().String(), "path", h.path)
	return h, nil
}

// Addr is the bound listen address.
func (h *HTTP) Addr() net.Addr {
	return h.listener.Addr()
}

func contentType(p string) string {
	switch {
	case strings.HasSuffix(p, ".hevc"), strings.HasSuffix(p, ".h265"), strings.HasSuffix(p, ".265"):
		return "video/H265"
	case strings.HasSuffix(p, ".h264"), strings.HasSuffix(p, ".264"):
		return "video/H264"
	default:
		return "application/octet-stream"
	}
}

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	defer func() {
		h.log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "bytes", rec.bytes, "elapsed", time.Since(start))
	}()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

	switch {
	case r.Method == http.MethodOptions:
		rec.WriteHeader(http.StatusOK)
		return
	case r.Method != http.MethodGet:
		rec.WriteHeader(http.StatusMethodNotAllowed)
		return
	case path.Clean("/"+r.URL.Path) != h.path:
		rec.WriteHeader(http.StatusNotFound)
		return
	}

	c := &httpClient{queue: make(chan []byte, defaultHTTPClientQueue)}
	headers := h.attach(c)
	defer h.detach(c)

	w.Header().Set("Content-Type", contentType(h.path))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	rec.WriteHeader(http.StatusOK)

	if len(headers) > 0 {
		if _, err := rec.Write(headers); err != nil {
			return
		}
	}
	rec.Flush()

	for {
		select {
		case p := <-c.queue:
			if _, err := rec.Write(p); err != nil {
				return
			}
			rec.Flush()
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		}
	}
}

func (h *HTTP) attach(c *httpClient) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return h.headers
}

func (h *HTTP) detach(c *httpClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	if n := c.dropped.Load(); n > 0 {
		h.log.Debug("http client left", "dropped", n)
	}
}

// Clients reports how many viewers are connected.
func (h *HTTP) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *HTTP) broadcast(p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		before := c.dropped.Load()
		c.offer(p)
		if c.dropped.Load() != before && logging.ShouldLog(&h.lastDropLog, time.Second) {
			h.log.Debug("http client behind, dropped oldest unit", "total_dropped", c.dropped.Load())
		}
	}
}

func joinSegments(segments [][]byte) []byte {
	n := 0
	for _, s := range segments {
		n += len(s)
	}
	out := make([]byte, 0, n)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}

func (h *HTTP) WriteHeaders(segments [][]byte) (int, error) {
	p := joinSegments(segments)
	h.mu.Lock()
	h.headers = p
	h.mu.Unlock()
	return len(p), nil
}

func (h *HTTP) WriteAccessUnit(au media.AccessUnit) (int, error) {
	select {
	case <-h.done:
		return 0, ErrClosed
	default:
	}
	p := joinSegments(au.Segments)
	if len(p) == 0 {
		return 0, nil
	}
	h.broadcast(p)
	return len(p), nil
}

func (h *HTTP) Close(int64, int64) error {
	h.closeOnce.Do(func() {
		close(h.done)
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		h.closeErr = h.server.Shutdown(ctx)
	})
	return h.closeErr
}
