// Package transport delivers encoded access units to their destination: an
// in-process callback, a raw bitstream file, or one of the network outputs
// (UDP, SRT, QUIC datagrams, WebSocket, HTTP).
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrNoSink          = errors.New("buffer output needs a sink")
	ErrSendFailed      = errors.New("send failed")
	ErrClosed          = errors.New("transport closed")
)

// Transport is the output side of a pump. Headers are written once before the
// first access unit. Close receives the two largest presentation timestamps
// that were written, for outputs that finalize a container.
type Transport interface {
	WriteHeaders(segments [][]byte) (int, error)
	WriteAccessUnit(au media.AccessUnit) (int, error)
	Close(largestPTS, secondLargestPTS int64) error
}

// Sink receives every payload segment of a buffer:// output.
type Sink func(p []byte) (int, error)

type Options struct {
	// Sink backs buffer:// outputs.
	Sink Sink
	// MirrorPath overrides where UDP outputs mirror their payload.
	MirrorPath  string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

const defaultDialTimeout = 10 * time.Second

func (o Options) normalize() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	return o
}

type Scheme string

const (
	SchemeBuffer Scheme = "buffer"
	SchemeUDP    Scheme = "udp"
	SchemeSRT    Scheme = "srt"
	SchemeQUIC   Scheme = "quic"
	SchemeWS     Scheme = "ws"
	SchemeWSS    Scheme = "wss"
	SchemeHTTP   Scheme = "http"
	SchemeFile   Scheme = "file"
)

// Endpoint is a parsed output string.
type Endpoint struct {
	Scheme Scheme
	// Host and Port for network schemes. Host may be empty for http, which
	// listens on every interface.
	Host  string
	Port  int
	Path  string
	Query url.Values
	Raw   string
}

// Addr joins host and port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Raw
}

// ParseEndpoint classifies an output string. Anything without a known
// scheme is a file path.
func ParseEndpoint(s string) (Endpoint, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty output", ErrInvalidEndpoint)
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Endpoint{Scheme: SchemeFile, Path: raw, Raw: raw}, nil
	}

	ep := Endpoint{Scheme: Scheme(strings.ToLower(scheme)), Raw: raw}
	switch ep.Scheme {
	case SchemeBuffer:
		return ep, nil
	case SchemeFile:
		if rest == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no path", ErrInvalidEndpoint, raw)
		}
		ep.Path = rest
		return ep, nil
	case SchemeUDP, SchemeSRT, SchemeQUIC:
		hostport, query, _ := strings.Cut(rest, "?")
		q, err := url.ParseQuery(query)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
		}
		ep.Query = q
		if err := ep.splitHostPort(hostport); err != nil {
			return Endpoint{}, err
		}
		if ep.Host == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, raw)
		}
		return ep, nil
	case SchemeWS, SchemeWSS, SchemeHTTP:
		u, err := url.Parse(raw)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
		}
		if err := ep.splitHostPort(u.Host); err != nil {
			return Endpoint{}, err
		}
		if ep.Scheme != SchemeHTTP && ep.Host == "" {
			return Endpoint{}, fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, raw)
		}
		ep.Path = u.Path
		if ep.Path == "" {
			ep.Path = "/"
		}
		ep.Query = u.Query()
		return ep, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidEndpoint, scheme)
	}
}

// splitHostPort splits at the rightmost colon so bare IPv6 hosts survive.
func (e *Endpoint) splitHostPort(hostport string) error {
	i := strings.LastIndexByte(hostport, ':')
	if i < 0 {
		return fmt.Errorf("%w: %q has no port", ErrInvalidEndpoint, e.Raw)
	}
	host := strings.TrimSuffix(strings.TrimPrefix(hostport[:i], "["), "]")
	port, err := strconv.Atoi(hostport[i+1:])
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("%w: %q has a bad port", ErrInvalidEndpoint, e.Raw)
	}
	if port == 0 && e.Scheme != SchemeHTTP {
		return fmt.Errorf("%w: %q has a bad port", ErrInvalidEndpoint, e.Raw)
	}
	e.Host = host
	e.Port = port
	return nil
}

// Open parses output and builds the matching transport. Network outputs
// connect before Open returns.
func Open(ctx context.Context, output string, opts Options) (Transport, error) {
	ep, err := ParseEndpoint(output)
	if err != nil {
		return nil, err
	}
	return OpenEndpoint(ctx, ep, opts)
}

func OpenEndpoint(ctx context.Context, ep Endpoint, opts Options) (Transport, error) {
	opts = opts.normalize()
	log := opts.Logger.With("component", "transport", "scheme", string(ep.Scheme))

	var (
		t   Transport
		err error
	)
	switch ep.Scheme {
	case SchemeBuffer:
		t, err = NewCallback(opts.Sink)
	case SchemeFile:
		t, err = NewFile(ep.Path)
	case SchemeUDP:
		t, err = NewDatagram(ep.Addr(), opts.MirrorPath, log)
	case SchemeSRT:
		t, err = DialSRT(ctx, ep, opts.DialTimeout, log)
	case SchemeQUIC:
		t, err = DialQUIC(ctx, ep, opts.DialTimeout, log)
	case SchemeWS, SchemeWSS:
		t, err = DialWebSocket(ctx, ep, opts.DialTimeout, log)
	case SchemeHTTP:
		t, err = ListenHTTP(ep, log)
	default:
		err = fmt.Errorf("%w: unknown scheme %q", ErrInvalidEndpoint, ep.Scheme)
	}
	if err != nil {
		return nil, err
	}
	log.Info("output ready", "endpoint", ep.Raw)
	return t, nil
}

// sendChunked hands seg to send in pieces of at most size bytes, in order.
// The first failure stops the segment; the count covers only chunks that
// were sent.
func sendChunked(seg []byte, size int, send func([]byte) error) (int, error) {
	sent := 0
	for off := 0; off < len(seg); off += size {
		end := min(off+size, len(seg))
		if err := send(seg[off:end]); err != nil {
			return sent, fmt.Errorf("%w: chunk at %d of %d: %w", ErrSendFailed, off, len(seg), err)
		}
		sent += end - off
	}
	return sent, nil
}

// writeSegments runs write over headers or the segments of one unit and
// sums the byte counts.
func writeSegments(segments [][]byte, write func([]byte) (int, error)) (int, error) {
	total := 0
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		n, err := write(seg)
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
