package controllers

import (
	"encoding/json"
	"net/http"

	cfgpkg "github.com/gojue/ecaptureQ/internal/config"
	"github.com/gojue/ecaptureQ/internal/runtime"
)

// GeneralController serves health, metrics, store statistics and the
// operator configuration.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/healthz", c.handleHealth)
	mux.HandleFunc("GET /v1/stats", c.handleStats)
	mux.HandleFunc("GET /v1/config", c.handleGetConfig)
	mux.HandleFunc("PATCH /v1/config", c.handlePatchConfig)
	mux.Handle("GET /metrics", c.rt.Metrics().Handler())
}

// handleHealth returns 200 with {"status": "ok"} while the store answers,
// 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := c.rt.Store().Stats(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"rows":        st.Rows,
		"next_index":  st.NextIndex,
		"diagnostics": c.rt.Diagnostics().Len(),
		"subscribers": c.rt.Hub().Subscribers(),
	})
}

func (c *GeneralController) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.rt.Config())
}

// handlePatchConfig applies a partial update. The source address and
// capture arguments take effect on the next capture start.
func (c *GeneralController) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var p cfgpkg.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg, err := c.rt.Sessions().PatchConfig(p)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, cfg)
}
