package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gojue/ecaptureQ/internal/capture"
	cfgpkg "github.com/gojue/ecaptureQ/internal/config"
	"github.com/gojue/ecaptureQ/internal/diaglog"
	"github.com/gojue/ecaptureQ/internal/metrics"
	"github.com/gojue/ecaptureQ/internal/session"
	"github.com/gojue/ecaptureQ/internal/sink"
	"github.com/gojue/ecaptureQ/internal/store"
	"github.com/gojue/ecaptureQ/internal/table"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config  cfgpkg.Config
	Logger  logpkg.Logger
	Metrics *metrics.Metrics
	// NoCapture leaves the capture process to the operator; only the event
	// source is connected on start.
	NoCapture bool
}

// Runtime owns the packets table and its store actor, the diagnostics log,
// the output sinks and the session manager of a single instance.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics

	actor     *store.Actor
	client    *store.Client
	stopActor context.CancelFunc
	actorErr  chan error
	closeOnce sync.Once
	closeErr  error
	diag      *diaglog.Log
	hub       *sink.Hub
	sinks     *sink.Multi
	closers   []io.Closer
	sessions  *session.Manager
}

// Open builds every component and starts the store actor. Capture does not
// start until Sessions().Start is called.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runtime: invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	r := &Runtime{config: cfg, logger: logger.WithComponent("runtime"), metrics: m}

	tbl, err := table.Open(ctx, table.Options{})
	if err != nil {
		return nil, err
	}
	r.actor, r.client = store.New(tbl, store.Options{
		InboxSize: cfg.Pipeline.InboxSize,
		Logger:    logger,
		Metrics:   m,
	})
	actorCtx, cancel := context.WithCancel(context.Background())
	r.stopActor = cancel
	r.actorErr = make(chan error, 1)
	go func() {
		err := r.actor.Run(actorCtx)
		if err != nil {
			r.logger.Error("store actor stopped", logpkg.Err(err))
		}
		r.actorErr <- err
	}()

	r.diag, err = diaglog.Open(diaglog.Options{
		DataDir:    cfg.Diagnostics.DataDir,
		MaxEntries: cfg.Diagnostics.MaxEntries,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		_ = r.shutdownActor()
		return nil, err
	}

	r.hub = sink.NewHub(cfg.Sinks.SubscriberBuf, logger)
	r.sinks = sink.NewMulti(logger, m,
		sink.Named{Name: "hub", Sink: r.hub},
		sink.Named{Name: "log", Sink: sink.LogSink{Logger: logger.WithComponent("push")}},
	)
	if err := r.openBrokers(cfg.Sinks, logger); err != nil {
		_ = r.Close()
		return nil, err
	}

	sessOpts := session.Options{
		Config:      cfg,
		Store:       r.client,
		Sink:        r.sinks,
		Diagnostics: r.diag,
		Logger:      logger,
		Metrics:     m,
	}
	if !opts.NoCapture && cfg.CaptureBin != "" {
		sessOpts.Supervisor = func(c cfgpkg.Config) capture.ProcessSupervisor {
			return capture.NewExecSupervisor(c.CaptureBin, c.Pipeline.StopGrace(), logger)
		}
	}
	r.sessions = session.New(sessOpts)
	return r, nil
}

func (r *Runtime) openBrokers(cfg cfgpkg.Sinks, logger logpkg.Logger) error {
	if cfg.NATSURL != "" {
		ns, err := sink.DialNATS(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		r.sinks.Add("nats", ns)
		r.closers = append(r.closers, ns)
	}
	if cfg.AMQPURL != "" {
		as, err := sink.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		r.sinks.Add("amqp", as)
		r.closers = append(r.closers, as)
	}
	return nil
}

// shutdownActor signals shutdown and waits for the actor before releasing
// the last client, so the inbox never closes under a running actor.
func (r *Runtime) shutdownActor() error {
	r.stopActor()
	err := <-r.actorErr
	r.client.Close()
	return err
}

// Close stops a running session, then the store actor, and releases the
// diagnostics log and broker connections. Later calls return the first
// result.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.close() })
	return r.closeErr
}

func (r *Runtime) close() error {
	var errs []error
	if r.sessions != nil && r.sessions.Capturing() {
		if err := r.sessions.Stop(); err != nil && !errors.Is(err, session.ErrNotCapturing) {
			errs = append(errs, err)
		}
	}
	if r.actor != nil {
		errs = append(errs, r.shutdownActor())
	}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	if r.diag != nil {
		errs = append(errs, r.diag.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth reports whether the store actor still answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	select {
	case <-r.actor.Done():
		return store.ErrClosed
	default:
	}
	_, err := r.client.Stats(ctx)
	return err
}

// Store returns the shared store handle. Callers must not close it.
func (r *Runtime) Store() *store.Client { return r.client }

// Sessions returns the capture run-state manager.
func (r *Runtime) Sessions() *session.Manager { return r.sessions }

func (r *Runtime) Diagnostics() *diaglog.Log { return r.diag }

// Hub returns the in-process feed of pushed batches.
func (r *Runtime) Hub() *sink.Hub { return r.hub }

func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the active configuration, including runtime patches.
func (r *Runtime) Config() cfgpkg.Config { return r.sessions.Config() }
