package controllers

import (
	"net/http"

	"github.com/gojue/ecaptureQ/internal/runtime"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general     *GeneralController
	packets     *PacketsController
	capture     *CaptureController
	diagnostics *DiagnosticsController
}

// NewControllerRegistry creates every controller over the same runtime.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:     NewGeneralController(rt),
		packets:     NewPacketsController(rt, logger),
		capture:     NewCaptureController(rt),
		diagnostics: NewDiagnosticsController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.packets.RegisterRoutes(mux)
	r.capture.RegisterRoutes(mux)
	r.diagnostics.RegisterRoutes(mux)
}
