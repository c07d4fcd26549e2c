package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gojue/ecaptureQ/internal/wire"
	"github.com/gorilla/websocket"
)

// MaxFrameSize bounds a single frame read from any source.
const MaxFrameSize = 16 << 20

// ConnectionError reports a transport failure. Fatal errors are not retried.
type ConnectionError struct {
	URL   string
	Fatal bool
	Err   error
}

func (e *ConnectionError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("event source %s: unrecoverable: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("event source %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Source opens connections to the event source.
type Source interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// Conn yields frames until it fails or is closed.
type Conn interface {
	ReadFrame() (wire.Frame, error)
	Close() error
}

// NewSource picks a transport from the URL scheme: ws/wss for WebSocket,
// tcp for length-prefixed protobuf frames.
func NewSource(raw string) (Source, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConnectionError{URL: raw, Fatal: true, Err: err}
	}
	switch u.Scheme {
	case "ws", "wss":
		return &WebSocketSource{URL: raw}, nil
	case "tcp":
		return &TCPSource{Addr: u.Host}, nil
	default:
		return nil, &ConnectionError{URL: raw, Fatal: true, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

// WebSocketSource dials the capture tool's WebSocket endpoint. Binary
// messages are protobuf frames, text messages are JSON envelopes.
type WebSocketSource struct {
	URL              string
	HandshakeTimeout time.Duration
}

func (s *WebSocketSource) String() string { return s.URL }

func (s *WebSocketSource) Dial(ctx context.Context) (Conn, error) {
	timeout := s.HandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := &websocket.Dialer{HandshakeTimeout: timeout}
	header := http.Header{}
	header.Set("Origin", "http://localhost/")
	c, _, err := dialer.DialContext(ctx, s.URL, header)
	if err != nil {
		return nil, &ConnectionError{URL: s.URL, Err: err}
	}
	c.SetReadLimit(MaxFrameSize)
	return &wsConn{c: c, url: s.URL}, nil
}

type wsConn struct {
	c   *websocket.Conn
	url string
}

func (w *wsConn) ReadFrame() (wire.Frame, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return wire.Frame{}, &ConnectionError{URL: w.url, Err: err}
		}
		switch mt {
		case websocket.BinaryMessage:
			return wire.Frame{Kind: wire.FrameBinary, Data: data}, nil
		case websocket.TextMessage:
			return wire.Frame{Kind: wire.FrameText, Data: data}, nil
		}
	}
}

func (w *wsConn) Close() error {
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.c.Close()
}

// TCPSource reads frames prefixed with a 4-byte big-endian length. Every
// frame is a protobuf LogEntry.
type TCPSource struct {
	Addr string
}

func (s *TCPSource) String() string { return "tcp://" + s.Addr }

func (s *TCPSource) Dial(ctx context.Context) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return nil, &ConnectionError{URL: s.String(), Err: err}
	}
	return &tcpConn{c: c, r: bufio.NewReader(c), url: s.String()}, nil
}

type tcpConn struct {
	c   net.Conn
	r   *bufio.Reader
	url string
}

func (t *tcpConn) ReadFrame() (wire.Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(t.r, hdr[:]); err != nil {
		return wire.Frame{}, &ConnectionError{URL: t.url, Err: err}
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return wire.Frame{}, &ConnectionError{URL: t.url, Err: fmt.Errorf("frame of %d bytes exceeds limit", n)}
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(t.r, data); err != nil {
		return wire.Frame{}, &ConnectionError{URL: t.url, Err: err}
	}
	return wire.Frame{Kind: wire.FrameBinary, Data: data}, nil
}

func (t *tcpConn) Close() error { return t.c.Close() }

// WriteTCPFrame writes one length-prefixed frame to w.
func WriteTCPFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return errors.New("frame too large")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
