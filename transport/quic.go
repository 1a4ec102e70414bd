package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"go2tv.app/screenpump/media"
)

const (
	// QUICChunk keeps every datagram under the smallest path MTU quic-go
	// will negotiate.
	QUICChunk = 1024
	// QUICProtocol is the ALPN both ends must agree on.
	QUICProtocol = "screenpump"

	quicCloseNormal quic.ApplicationErrorCode = 0
)

type datagramConn interface {
	SendDatagram(p []byte) error
	CloseWithError(code quic.ApplicationErrorCode, msg string) error
}

// QUIC sends segments as unreliable QUIC datagrams (RFC 9221).
type QUIC struct {
	conn datagramConn
	log  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// DialQUIC connects to ep. ?insecure=1 skips certificate verification for
// self-signed receivers.
func DialQUIC(ctx context.Context, ep Endpoint, timeout time.Duration, log *slog.Logger) (*QUIC, error) {
	tlsConf := &tls.Config{
		ServerName:         ep.Host,
		NextProtos:         []string{QUICProtocol},
		InsecureSkipVerify: ep.Query.Get("insecure") == "1",
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := quic.DialAddr(ctx, ep.Addr(), tlsConf, &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: quic dial %s: %w", ErrSendFailed, ep.Addr(), err)
	}
	log.Info("quic connected", "remote", ep.Addr())
	return &QUIC{conn: conn, log: log}, nil
}

func (q *QUIC) write(seg []byte) (int, error) {
	return sendChunked(seg, QUICChunk, q.conn.SendDatagram)
}

func (q *QUIC) WriteHeaders(segments [][]byte) (int, error) {
	return writeSegments(segments, q.write)
}

func (q *QUIC) WriteAccessUnit(au media.AccessUnit) (int, error) {
	return writeSegments(au.Segments, q.write)
}

func (q *QUIC) Close(int64, int64) error {
	q.closeOnce.Do(func() {
		q.closeErr = q.conn.CloseWithError(quicCloseNormal, "end of stream")
	})
	return q.closeErr
}
