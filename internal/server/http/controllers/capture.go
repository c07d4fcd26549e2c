package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gojue/ecaptureQ/internal/runtime"
)

// CaptureController starts and stops capture sessions and changes the push
// filter.
type CaptureController struct {
	rt *runtime.Runtime
}

func NewCaptureController(rt *runtime.Runtime) *CaptureController {
	return &CaptureController{rt: rt}
}

func (c *CaptureController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/capture/start", c.handleStart)
	mux.HandleFunc("POST /v1/capture/stop", c.handleStop)
	mux.HandleFunc("GET /v1/capture/status", c.handleStatus)
	mux.HandleFunc("PUT /v1/filter", c.handleSetFilter)
}

// handleStart returns once the session survived its startup grace windows.
// 409 when a session is already running.
func (c *CaptureController) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.Sessions().Start(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, c.rt.Sessions().Status())
}

func (c *CaptureController) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := c.rt.Sessions().Stop(); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, c.rt.Sessions().Status())
}

func (c *CaptureController) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.rt.Sessions().Status())
}

type filterReq struct {
	Filter string `json:"filter"`
}

// handleSetFilter swaps the push filter. The delivery cursor restarts from
// the beginning so earlier rows matching the new filter are pushed too.
func (c *CaptureController) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.rt.Sessions().SetFilter(req.Filter); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, c.rt.Sessions().Status())
}
