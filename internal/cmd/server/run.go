package serverrun

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	cfgpkg "github.com/gojue/ecaptureQ/internal/config"
	"github.com/gojue/ecaptureQ/internal/runtime"
	grpcserver "github.com/gojue/ecaptureQ/internal/server/grpc"
	httpserver "github.com/gojue/ecaptureQ/internal/server/http"
	"github.com/gojue/ecaptureQ/internal/session"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing
var getenv = os.Getenv

type Options struct {
	Config cfgpkg.Config
	// Empty addresses fall back to the configured ones.
	HTTPAddr string
	GRPCAddr string
	// AutoStart begins a capture session once the servers are up.
	AutoStart bool
	// NoCapture connects to an externally managed event source only.
	NoCapture bool
	// PersistDiagnostics keeps the diagnostics log under the default data
	// directory when the config leaves it in memory.
	PersistDiagnostics bool
	LogLevel           string
	LogFormat          string
}

// NewLogger builds the process-wide logger from explicit settings, falling
// back to ECAPTUREQ_LOG_LEVEL / ECAPTUREQ_LOG_FORMAT, then info/text.
func NewLogger(level, format string) logpkg.Logger {
	cfg := &logpkg.Config{
		Level:  level,
		Format: format,
	}
	if cfg.Level == "" {
		cfg.Level = getenvDefault("ECAPTUREQ_LOG_LEVEL", "info")
	}
	if cfg.Format == "" {
		cfg.Format = getenvDefault("ECAPTUREQ_LOG_FORMAT", "text")
	}
	logger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		logger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	return logger
}

// Run starts the runtime with its gRPC and HTTP servers and blocks until ctx
// is cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.GRPCAddr != "" {
		cfg.GRPCAddr = opts.GRPCAddr
	}
	if opts.PersistDiagnostics && cfg.Diagnostics.DataDir == "" {
		cfg.Diagnostics.DataDir = filepath.Join(cfgpkg.DefaultDataDir(), "diagnostics")
	}

	logger := NewLogger(opts.LogLevel, opts.LogFormat)
	// Pebble and other libraries log through the standard logger
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: logger, NoCapture: opts.NoCapture})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close", logpkg.Err(err))
		}
	}()

	logger.Info("starting ecaptureq",
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("source", cfg.WSURL),
		logpkg.Bool("managed_capture", !opts.NoCapture && cfg.CaptureBin != ""),
		logpkg.Str("diagnostics_dir", cfg.Diagnostics.DataDir),
	)

	gsrv := grpcserver.New(rt, logger)
	hsrv := httpserver.New(rt, logger)

	var wg sync.WaitGroup
	if cfg.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.ListenAndServe(sctx, cfg.GRPCAddr); err != nil && sctx.Err() == nil {
				logger.Error("grpc server", logpkg.Err(err))
				stop()
			}
		}()
	}
	if cfg.HTTPAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
				logger.Error("http server", logpkg.Err(err))
				stop()
			}
		}()
	}

	if opts.AutoStart {
		if err := rt.Sessions().Start(sctx); err != nil && !errors.Is(err, session.ErrAlreadyCapturing) {
			logger.Error("auto start failed", logpkg.Err(err))
		}
	}

	<-sctx.Done()
	// stop the servers before the runtime closes the store underneath them
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	return nil
}
