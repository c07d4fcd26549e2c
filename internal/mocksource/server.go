package mocksource

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/wire"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Format selects the frame encoding the server emits.
type Format int

const (
	FormatProto Format = iota
	FormatJSON
)

// ParseFormat maps a --format value to a Format. Empty means protobuf.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "proto", "protobuf":
		return FormatProto, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("unknown frame format %q", s)
}

// Options shapes the synthetic traffic. Zero values fall back to bursts of
// 10-50 events spaced 10-50ms apart, separated by 1-5s lulls.
type Options struct {
	Format   Format
	BurstMin int
	BurstMax int
	GapMin   time.Duration
	GapMax   time.Duration
	LullMin  time.Duration
	LullMax  time.Duration
	// Heartbeat sends a heartbeat frame after every burst.
	Heartbeat bool
	// Script replaces the random traffic: each connection receives exactly
	// these frames and is then held open until the peer leaves.
	Script []wire.Frame
	Seed   uint64
	Logger logpkg.Logger
}

func (o *Options) defaults() {
	if o.BurstMin <= 0 {
		o.BurstMin = 10
	}
	if o.BurstMax < o.BurstMin {
		o.BurstMax = o.BurstMin + 40
	}
	if o.GapMin <= 0 {
		o.GapMin = 10 * time.Millisecond
	}
	if o.GapMax < o.GapMin {
		o.GapMax = o.GapMin + 40*time.Millisecond
	}
	if o.LullMin <= 0 {
		o.LullMin = time.Second
	}
	if o.LullMax < o.LullMin {
		o.LullMax = o.LullMin + 4*time.Second
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
}

// Server is an http.Handler that upgrades every request to a WebSocket and
// streams synthetic capture events to it.
type Server struct {
	opts     Options
	logger   logpkg.Logger
	upgrader websocket.Upgrader
	sent     atomic.Int64
	conns    atomic.Int64
	seq      atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns a Server; mount it on any path.
func New(opts Options) *Server {
	opts.defaults()
	return &Server{
		opts:   opts,
		logger: opts.Logger.WithComponent("mocksource"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Sent reports the number of frames written across all connections.
func (s *Server) Sent() int64 { return s.sent.Load() }

// Connections reports how many clients have connected so far.
func (s *Server) Connections() int64 { return s.conns.Load() }

// Close ends every open stream and waits for the writers to exit.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logpkg.Err(err))
		return
	}
	s.conns.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.stream(c)
	}()
}

func (s *Server) stream(c *websocket.Conn) {
	remote := c.RemoteAddr().String()
	logger := s.logger.With(logpkg.Str("remote", remote))
	logger.Info("client connected")
	defer func() {
		logger.Info("client disconnected")
		_ = c.Close()
	}()

	// the reader notices the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if s.opts.Script != nil {
		for _, f := range s.opts.Script {
			if err := s.write(c, f); err != nil {
				return
			}
		}
		select {
		case <-gone:
		case <-s.done:
		}
		return
	}

	seed := s.opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, s.seq.Add(1)))
	for {
		n := s.opts.BurstMin + rng.IntN(s.opts.BurstMax-s.opts.BurstMin+1)
		logger.Debug("burst", logpkg.Int("events", n))
		for i := 0; i < n; i++ {
			if err := s.write(c, s.encode(Generate(rng, time.Now()))); err != nil {
				return
			}
			if !s.pause(between(rng, s.opts.GapMin, s.opts.GapMax), gone) {
				return
			}
		}
		if s.opts.Heartbeat {
			hb := wire.AppendProtoHeartbeat(nil, time.Now().Unix(), s.sent.Load(), "mock source alive")
			if err := s.write(c, wire.Frame{Kind: wire.FrameBinary, Data: hb}); err != nil {
				return
			}
		}
		if !s.pause(between(rng, s.opts.LullMin, s.opts.LullMax), gone) {
			return
		}
	}
}

func (s *Server) encode(rec packet.Record) wire.Frame {
	if s.opts.Format == FormatJSON {
		return wire.Frame{Kind: wire.FrameText, Data: wire.MarshalJSONEvent(rec)}
	}
	return wire.Frame{Kind: wire.FrameBinary, Data: wire.AppendProtoEvent(nil, rec)}
}

func (s *Server) write(c *websocket.Conn, f wire.Frame) error {
	mt := websocket.BinaryMessage
	if f.Kind == wire.FrameText {
		mt = websocket.TextMessage
	}
	if err := c.WriteMessage(mt, f.Data); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

func (s *Server) pause(d time.Duration, gone <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-gone:
		return false
	case <-s.done:
		return false
	}
}

func between(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int64N(int64(hi-lo)))
}

var (
	srcAddrs = []string{"192.168.1.10", "10.0.0.5", "172.16.3.41", "223.5.5.5"}
	dstAddrs = []string{"8.8.8.8", "114.114.114.114", "202.96.128.86", "52.84.124.23"}
	pnames   = []string{"curl", "chrome", "wget", "sshd", "nginx"}
	paths    = []string{"/", "/index.html", "/api/v1/items", "/login", "/static/app.js"}
)

// Generate returns one synthetic event. Roughly a third of the payloads are
// random bytes, the rest plain-text HTTP requests.
func Generate(rng *rand.Rand, now time.Time) packet.Record {
	var payload []byte
	if rng.IntN(3) == 0 {
		payload = make([]byte, 32+rng.IntN(256))
		for i := range payload {
			payload[i] = byte(rng.UintN(256))
		}
	} else {
		payload = fmt.Appendf(nil, "GET %s HTTP/1.1\r\nHost: %s\r\nUser-Agent: mock/1.0\r\n\r\n",
			paths[rng.IntN(len(paths))], dstAddrs[rng.IntN(len(dstAddrs))])
	}
	text, bin, isBinary := wire.Classify(payload)
	return packet.Record{
		Timestamp:     now.UnixNano(),
		CorrelationID: uuid.NewString(),
		SrcAddr:       srcAddrs[rng.IntN(len(srcAddrs))],
		SrcPort:       uint32(1024 + rng.IntN(50000)),
		DstAddr:       dstAddrs[rng.IntN(len(dstAddrs))],
		DstPort:       uint32(1 + rng.IntN(1000)),
		ProcessID:     int32(1000 + rng.IntN(30000)),
		ProcessName:   pnames[rng.IntN(len(pnames))],
		Kind:          uint32(rng.IntN(2)),
		Length:        uint32(len(payload)),
		IsBinary:      isBinary,
		PayloadText:   text,
		PayloadBytes:  bin,
	}
}

// ListenAndServe serves the mock source on addr at path /ws until ctx is
// cancelled.
func ListenAndServe(ctx context.Context, addr string, opts Options) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, opts)
}

// Serve is ListenAndServe on an existing listener.
func Serve(ctx context.Context, ln net.Listener, opts Options) error {
	s := New(opts)
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.Handle("/", s)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("mock event source listening", logpkg.Str("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
