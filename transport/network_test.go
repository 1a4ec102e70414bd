package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/suite"

	"go2tv.app/screenpump/internal/logging"
	"go2tv.app/screenpump/media"
)

type NetworkSuite struct {
	suite.Suite
	dir    string
	mirror string
}

func TestNetworkSuite(t *testing.T) {
	suite.Run(t, new(NetworkSuite))
}

func (s *NetworkSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.mirror = filepath.Join(s.dir, "frames.hevc")
}

func (s *NetworkSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

func (s *NetworkSuite) TestDatagramLoopback() {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	s.Require().NoError(err)
	defer pc.Close()

	tr, err := Open(s.ctx(), "udp://"+pc.LocalAddr().String(), Options{MirrorPath: s.mirror})
	s.Require().NoError(err)

	seg := make([]byte, 20000)
	for i := range seg {
		seg[i] = byte(i)
	}
	n, err := tr.WriteAccessUnit(media.AccessUnit{PTS: 0, Segments: [][]byte{seg}})
	s.Require().NoError(err)
	s.Equal(len(seg), n)

	var got []byte
	buf := make([]byte, 65536)
	for _, want := range []int{8192, 8192, 3616} {
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		m, _, err := pc.ReadFrom(buf)
		s.Require().NoError(err)
		s.Equal(want, m)
		got = append(got, buf[:m]...)
	}
	s.Equal(seg, got)

	s.Require().NoError(tr.Close(0, 0))
	s.NoError(tr.Close(0, 0))

	mirrored, err := os.ReadFile(s.mirror)
	s.Require().NoError(err)
	s.Equal(seg, mirrored)
}

type failingPackets struct {
	failAt int
	sizes  []int
	closed bool
}

func (f *failingPackets) WriteTo(p []byte, _ net.Addr) (int, error) {
	if len(f.sizes)+1 == f.failAt {
		return 0, errors.New("network down")
	}
	f.sizes = append(f.sizes, len(p))
	return len(p), nil
}

func (f *failingPackets) Close() error {
	f.closed = true
	return nil
}

func (s *NetworkSuite) TestDatagramStopsOnFailure() {
	pw := &failingPackets{failAt: 4}
	d, err := newDatagram(pw, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}, s.mirror, logging.Discard())
	s.Require().NoError(err)

	first := bytes.Repeat([]byte{1}, 10000)
	second := bytes.Repeat([]byte{2}, 10000)
	n, err := d.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{first, second}})
	s.ErrorIs(err, ErrSendFailed)
	s.Equal(10000+8192, n)
	s.Equal([]int{8192, 1808, 8192}, pw.sizes)
	s.EqualValues(3, d.Sends())

	s.Require().NoError(d.Close(0, 0))
	s.True(pw.closed)

	mirrored, err := os.ReadFile(s.mirror)
	s.Require().NoError(err)
	s.Equal(append(append([]byte{}, first...), second[:8192]...), mirrored, "every transmitted byte is mirrored")
}

func (s *NetworkSuite) TestDatagramMirrorFailureFailsClosed() {
	pw := &failingPackets{}
	_, err := newDatagram(pw, &net.UDPAddr{Port: 9}, filepath.Join(s.dir, "missing", "frames.hevc"), logging.Discard())
	s.ErrorIs(err, ErrInvalidEndpoint)
	s.True(pw.closed)
}

func (s *NetworkSuite) TestFile() {
	path := filepath.Join(s.dir, "out.hevc")
	tr, err := Open(s.ctx(), path, Options{})
	s.Require().NoError(err)

	_, err = tr.WriteHeaders([][]byte{[]byte("hdr")})
	s.Require().NoError(err)
	n, err := tr.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{[]byte("abc"), []byte("de")}})
	s.Require().NoError(err)
	s.Equal(5, n)
	s.Require().NoError(tr.Close(1, 0))

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Equal("hdrabcde", string(data))
}

func (s *NetworkSuite) TestWebSocket() {
	type message struct {
		kind int
		data []byte
	}
	received := make(chan message, 16)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			received <- message{kind, data}
		}
	}))
	defer srv.Close()

	tr, err := Open(s.ctx(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ingest", Options{})
	s.Require().NoError(err)

	_, err = tr.WriteHeaders([][]byte{{0, 0, 1, 0x40}})
	s.Require().NoError(err)
	n, err := tr.WriteAccessUnit(media.AccessUnit{PTS: 7, Segments: [][]byte{{0, 0, 1, 0x46}, {0, 0, 1, 0x26}}})
	s.Require().NoError(err)
	s.Equal(8, n)
	s.Require().NoError(tr.Close(7, 6))

	var msgs []message
	for m := range received {
		msgs = append(msgs, m)
	}
	s.Require().Len(msgs, 4)
	s.Equal(websocket.BinaryMessage, msgs[0].kind)
	s.Equal([]byte{0, 0, 1, 0x46}, msgs[1].data)
	s.Equal(websocket.TextMessage, msgs[3].kind)

	var eos endOfStream
	s.Require().NoError(json.Unmarshal(msgs[3].data, &eos))
	s.Equal(endOfStream{Type: "eos", LargestPTS: 7, SecondLargestPTS: 6}, eos)
}

func (s *NetworkSuite) TestHTTP() {
	tr, err := Open(s.ctx(), "http://127.0.0.1:0/live.hevc", Options{})
	s.Require().NoError(err)
	h := tr.(*HTTP)
	defer h.Close(0, 0)

	_, err = h.WriteHeaders([][]byte{[]byte("HDR")})
	s.Require().NoError(err)

	base := "http://" + h.Addr().String()
	resp, err := http.Get(base + "/missing")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(base + "/live.hevc")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("video/H265", resp.Header.Get("Content-Type"))
	s.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))

	s.Require().Eventually(func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	n, err := h.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{[]byte("au"), []byte("1")}})
	s.Require().NoError(err)
	s.Equal(3, n)

	got := make([]byte, 6)
	_, err = io.ReadFull(bufio.NewReader(resp.Body), got)
	s.Require().NoError(err)
	s.Equal("HDRau1", string(got))

	s.Require().NoError(h.Close(0, 0))
	_, err = h.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{{1}}})
	s.ErrorIs(err, ErrClosed)
}

func selfSignedTLS(s *NetworkSuite) *tls.Config {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	s.Require().NoError(err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	s.Require().NoError(err)
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{QUICProtocol},
	}
}

func (s *NetworkSuite) TestQUICDatagrams() {
	ln, err := quic.ListenAddr("127.0.0.1:0", selfSignedTLS(s), &quic.Config{EnableDatagrams: true})
	s.Require().NoError(err)
	defer ln.Close()

	ctx := s.ctx()
	got := make(chan []byte, 8)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		for {
			p, err := conn.ReceiveDatagram(ctx)
			if err != nil {
				close(got)
				return
			}
			got <- p
		}
	}()

	tr, err := Open(ctx, "quic://"+ln.Addr().String()+"?insecure=1", Options{})
	s.Require().NoError(err)

	seg := bytes.Repeat([]byte{7}, 2500)
	n, err := tr.WriteAccessUnit(media.AccessUnit{Segments: [][]byte{seg}})
	s.Require().NoError(err)
	s.Equal(2500, n)

	var sizes []int
	for len(sizes) < 3 {
		select {
		case p := <-got:
			sizes = append(sizes, len(p))
		case <-ctx.Done():
			s.FailNow("datagrams not received", "got %v", sizes)
		}
	}
	s.Equal([]int{1024, 1024, 452}, sizes)
	s.NoError(tr.Close(0, 0))
}

func (s *NetworkSuite) TestSRTDialTimeout() {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	s.Require().NoError(err)
	defer pc.Close()

	start := time.Now()
	_, err = Open(s.ctx(), "srt://"+pc.LocalAddr().String(), Options{DialTimeout: 200 * time.Millisecond})
	s.ErrorIs(err, ErrSendFailed)
	s.Less(time.Since(start), 3*time.Second)
}
