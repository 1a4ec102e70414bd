package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

// DatagramChunk is the largest payload of one UDP send.
const DatagramChunk = 8192

// DefaultMirrorPath is where UDP outputs keep a copy of everything they send.
var DefaultMirrorPath = filepath.Join(os.TempDir(), "frames.hevc")

type packetWriter interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
	Close() error
}

// Datagram sends segments over an unconnected UDP socket. Delivery is best
// effort: lost chunks are not retried.
type Datagram struct {
	conn   packetWriter
	addr   net.Addr
	mirror *os.File
	log    *slog.Logger

	sends       atomic.Uint64
	lastSlowLog atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewDatagram resolves addr, opens a local socket and the mirror file.
// Either failure fails the whole construction.
func NewDatagram(addr, mirrorPath string, log *slog.Logger) (*Datagram, error) {
	if log == nil {
		log = logging.Discard()
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrInvalidEndpoint, addr, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: udp socket: %w", ErrInvalidEndpoint, err)
	}
	return newDatagram(conn, raddr, mirrorPath, log)
}

func newDatagram(conn packetWriter, addr net.Addr, mirrorPath string, log *slog.Logger) (*Datagram, error) {
	if mirrorPath == "" {
		mirrorPath = DefaultMirrorPath
	}
	mirror, err := os.Create(mirrorPath)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: mirror file: %w", ErrInvalidEndpoint, err)
	}
	log.Debug("udp output", "remote", addr.String(), "mirror", mirrorPath)
	return &Datagram{conn: conn, addr: addr, mirror: mirror, log: log}, nil
}

func (d *Datagram) send(chunk []byte) error {
	start := time.Now()
	n, err := d.conn.WriteTo(chunk, d.addr)
	if err != nil {
		return err
	}
	if n != len(chunk) {
		return fmt.Errorf("short write %d of %d", n, len(chunk))
	}
	d.sends.Add(1)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond && logging.ShouldLog(&d.lastSlowLog, time.Second) {
		d.log.Debug("slow udp write", "bytes", len(chunk), "elapsed", elapsed, "sends", d.sends.Load())
	}
	return nil
}

// write sends seg and mirrors the bytes that actually went out, including
// the chunks sent before a failure.
func (d *Datagram) write(seg []byte) (int, error) {
	n, err := sendChunked(seg, DatagramChunk, d.send)
	if n > 0 {
		if _, mErr := d.mirror.Write(seg[:n]); mErr != nil {
			d.log.Debug("mirror write failed", "err", mErr)
		}
	}
	return n, err
}

func (d *Datagram) WriteHeaders(segments [][]byte) (int, error) {
	return writeSegments(segments, d.write)
}

func (d *Datagram) WriteAccessUnit(au media.AccessUnit) (int, error) {
	return writeSegments(au.Segments, d.write)
}

// Sends reports how many datagrams went out.
func (d *Datagram) Sends() uint64 {
	return d.sends.Load()
}

func (d *Datagram) Close(int64, int64) error {
	d.closeOnce.Do(func() {
		d.closeErr = errors.Join(d.conn.Close(), d.mirror.Close())
	})
	return d.closeErr
}
