package controllers

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	"github.com/gojue/ecaptureQ/internal/push"
	"github.com/gojue/ecaptureQ/internal/query"
	"github.com/gojue/ecaptureQ/internal/runtime"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const sseKeepAlive = 15 * time.Second

// PacketsController serves the packets table: incremental queries, lookups
// by index, payload download, the live SSE feed and bulk export.
type PacketsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

func NewPacketsController(rt *runtime.Runtime, logger logpkg.Logger) *PacketsController {
	return &PacketsController{rt: rt, logger: logger}
}

func (c *PacketsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/query", c.handleQuery)
	mux.HandleFunc("POST /v1/query", c.handleQuery)
	mux.HandleFunc("GET /v1/packets/stream", c.handleStream)
	mux.HandleFunc("GET /v1/packets/{index}", c.handleGet)
	mux.HandleFunc("GET /v1/packets/{index}/payload", c.handlePayload)
	mux.HandleFunc("GET /v1/export", c.handleExport)
}

type queryReq struct {
	Query  string  `json:"q"`
	Cursor *uint64 `json:"cursor,omitempty"`
}

type queryResp struct {
	Rows []packet.Record `json:"rows"`
	// NextCursor is the last returned index; absent when nothing matched.
	NextCursor *uint64 `json:"next_cursor,omitempty"`
}

// handleQuery runs one incremental query: q is a bare predicate or a full
// SELECT, cursor excludes rows at or below it.
func (c *PacketsController) handleQuery(w http.ResponseWriter, r *http.Request) {
	req := queryReq{Query: r.URL.Query().Get("q")}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Cursor != nil {
			cursor = *req.Cursor
		}
	}
	frame, err := c.rt.Store().Incremental(r.Context(), cursor, req.Query)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rows, err := frame.Records()
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := queryResp{Rows: rows}
	if resp.Rows == nil {
		resp.Rows = []packet.Record{}
	}
	if n := len(rows); n > 0 {
		last := rows[n-1].Index
		resp.NextCursor = &last
	}
	writeJSON(w, resp)
}

func (c *PacketsController) record(w http.ResponseWriter, r *http.Request) (packet.Record, bool) {
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid index")
		return packet.Record{}, false
	}
	rec, err := c.rt.Store().GetByIndex(r.Context(), index)
	if err != nil {
		writeFailure(w, err)
		return packet.Record{}, false
	}
	return rec, true
}

// handleGet returns the full row, payload included.
func (c *PacketsController) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := c.record(w, r)
	if !ok {
		return
	}
	writeJSON(w, rec)
}

// handlePayload returns the payload as raw bytes (format=raw) or as the
// printable preview.
func (c *PacketsController) handlePayload(w http.ResponseWriter, r *http.Request) {
	rec, ok := c.record(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(rec.Payload())))
		_, _ = w.Write(rec.Payload())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, packet.Preview(rec.Payload()))
}

// handleStream serves pushed rows over SSE. Without a filter parameter the
// client shares the session's push feed; with one it gets a private push
// loop with its own cursor, starting at cursor (default: the beginning).
func (c *PacketsController) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("filter") {
		c.streamFiltered(w, r)
		return
	}
	sub := c.rt.Hub().Subscribe(q.Get("topic"))
	defer sub.Close()
	out := newSSESink(w, r)
	ping := time.NewTicker(sseKeepAlive)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case b, ok := <-sub.C():
			if !ok {
				return
			}
			if err := out.Emit(r.Context(), b.Topic, b.Rows); err != nil {
				return
			}
		case <-ping.C:
			if err := out.Ping(); err != nil {
				return
			}
		}
	}
}

func (c *PacketsController) streamFiltered(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := q.Get("filter")
	if _, err := query.Build(0, filter); err != nil {
		writeFailure(w, err)
		return
	}
	start, err := parseCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}
	cursor := &push.Cursor{}
	if start != query.Beginning {
		cursor.Advance(start)
	}
	cfg := c.rt.Config()
	topic := q.Get("topic")
	if topic == "" {
		topic = cfg.PushTopic
	}
	ctx := logpkg.ContextWithSubscriber(r.Context(), uuid.NewString())
	logger := c.logger.WithContext(ctx)
	svc := push.New(push.Options{
		Store:    c.rt.Store(),
		Sink:     newSSESink(w, r),
		Topic:    topic,
		Interval: cfg.Pipeline.PushInterval(),
		Filter:   filter,
		Cursor:   cursor,
		Logger:   logger,
		Metrics:  c.rt.Metrics(),
	})
	if err := svc.Run(ctx); err != nil {
		logger.Warn("sse push loop ended", logpkg.Err(err))
	}
}

// handleExport streams matching rows with payloads as NDJSON, compressed
// with zstd when the client asks for it.
func (c *PacketsController) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := parseCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}
	sel, err := query.Incremental(cursor, q.Get("q"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	sel.Projection = query.FullProjection()
	sel.Limit = parseLimit(q.Get("limit"))
	frame, err := c.rt.Store().Query(r.Context(), sel.String())
	if err != nil {
		writeFailure(w, err)
		return
	}
	rows, err := frame.Records()
	if err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var out io.Writer = w
	if wantsZstd(r) {
		w.Header().Set("Content-Encoding", "zstd")
		zw, err := zstd.NewWriter(w)
		if err != nil {
			writeFailure(w, err)
			return
		}
		defer zw.Close()
		out = zw
	}
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	enc := json.NewEncoder(bw)
	for _, rec := range rows {
		if err := enc.Encode(rec); err != nil {
			c.logger.Warn("export aborted", logpkg.Err(err))
			return
		}
	}
}

func wantsZstd(r *http.Request) bool {
	if r.URL.Query().Get("compress") == "zstd" {
		return true
	}
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "zstd" {
			return true
		}
	}
	return false
}
