package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gojue/ecaptureQ/internal/diaglog"
	"github.com/gojue/ecaptureQ/internal/runtime"
)

const (
	defaultDiagLimit = 100
	maxDiagWait      = 30 * time.Second
)

// DiagnosticsController pages through stored heartbeats and capture
// process logs.
type DiagnosticsController struct {
	rt *runtime.Runtime
}

func NewDiagnosticsController(rt *runtime.Runtime) *DiagnosticsController {
	return &DiagnosticsController{rt: rt}
}

func (c *DiagnosticsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/diagnostics", c.handleList)
}

type diagResp struct {
	Entries []diaglog.Entry `json:"entries"`
	// Next is the sequence to pass as start for the following page; 0 when
	// the scan reached the end.
	Next uint64 `json:"next"`
}

// handleList supports filter (CEL), start, limit, reverse and wait_ms. With
// wait_ms an empty page blocks until something is appended or the wait
// elapses.
func (c *DiagnosticsController) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := diaglog.SearchOptions{
		Filter:  q.Get("filter"),
		Limit:   parseLimit(q.Get("limit")),
		Reverse: parseBool(q.Get("reverse")),
	}
	if opts.Limit == 0 {
		opts.Limit = defaultDiagLimit
	}
	if s := q.Get("start"); s != "" {
		start, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start")
			return
		}
		opts.Start = start
	}
	if _, err := diaglog.CompileFilter(opts.Filter); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := c.rt.Diagnostics()
	entries, next, err := log.Search(r.Context(), opts)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if wait := parseMillis(q.Get("wait_ms"), maxDiagWait); len(entries) == 0 && wait > 0 {
		if log.WaitForAppend(r.Context(), wait) {
			entries, next, err = log.Search(r.Context(), opts)
			if err != nil {
				writeFailure(w, err)
				return
			}
		}
	}
	if entries == nil {
		entries = []diaglog.Entry{}
	}
	writeJSON(w, diagResp{Entries: entries, Next: next})
}
