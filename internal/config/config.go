package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	WSURL       string      `json:"ws_url" yaml:"ws_url"`
	CaptureBin  string      `json:"ecapture_bin" yaml:"ecapture_bin"`
	CaptureArgs string      `json:"ecapture_args" yaml:"ecapture_args"`
	Filter      string      `json:"filter" yaml:"filter"`
	PushTopic   string      `json:"push_topic" yaml:"push_topic"`
	Pipeline    Pipeline    `json:"pipeline" yaml:"pipeline"`
	Diagnostics Diagnostics `json:"diagnostics" yaml:"diagnostics"`
	Sinks       Sinks       `json:"sinks" yaml:"sinks"`
	HTTPAddr    string      `json:"http_addr" yaml:"http_addr"`
	GRPCAddr    string      `json:"grpc_addr" yaml:"grpc_addr"`
}

// Pipeline holds the ingestion, store and push tunables. Durations are milliseconds.
type Pipeline struct {
	BatchSize          int `json:"batch_size" yaml:"batch_size"`
	FlushIntervalMs    int `json:"flush_interval_ms" yaml:"flush_interval_ms"`
	PushIntervalMs     int `json:"push_interval_ms" yaml:"push_interval_ms"`
	ReconnectBackoffMs int `json:"reconnect_backoff_ms" yaml:"reconnect_backoff_ms"`
	InboxSize          int `json:"inbox_size" yaml:"inbox_size"`
	CaptureGraceMs     int `json:"capture_grace_ms" yaml:"capture_grace_ms"`
	IngestGraceMs      int `json:"ingest_grace_ms" yaml:"ingest_grace_ms"`
	StopGraceMs        int `json:"stop_grace_ms" yaml:"stop_grace_ms"`
}

// Diagnostics configures the heartbeat/process-log store. An empty DataDir
// keeps it in memory.
type Diagnostics struct {
	DataDir    string `json:"data_dir" yaml:"data_dir"`
	MaxEntries int    `json:"max_entries" yaml:"max_entries"`
}

// Sinks configures optional broker fan-out of pushed rows.
type Sinks struct {
	NATSURL       string `json:"nats_url" yaml:"nats_url"`
	NATSSubject   string `json:"nats_subject" yaml:"nats_subject"`
	AMQPURL       string `json:"amqp_url" yaml:"amqp_url"`
	AMQPExchange  string `json:"amqp_exchange" yaml:"amqp_exchange"`
	SubscriberBuf int    `json:"subscriber_buf" yaml:"subscriber_buf"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		WSURL:       "ws://127.0.0.1:28257/",
		CaptureBin:  "ecapture",
		CaptureArgs: "tls --ecaptureq=ws://127.0.0.1:28257/",
		PushTopic:   "packet-data",
		Pipeline: Pipeline{
			BatchSize:          20,
			FlushIntervalMs:    300,
			PushIntervalMs:     300,
			ReconnectBackoffMs: 300,
			InboxSize:          128,
			CaptureGraceMs:     900,
			IngestGraceMs:      100,
			StopGraceMs:        1000,
		},
		Diagnostics: Diagnostics{MaxEntries: 10000},
		Sinks: Sinks{
			NATSSubject:   "ecaptureq",
			AMQPExchange:  "ecaptureq",
			SubscriberBuf: 64,
		},
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse json: %w", err)
		}
	}
	return cfg, nil
}

// Validate reports settings that would make the pipeline misbehave.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.WSURL) == "" {
		errs = append(errs, errors.New("ws_url is required"))
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, errors.New("pipeline.batch_size must be positive"))
	}
	if c.Pipeline.InboxSize <= 0 {
		errs = append(errs, errors.New("pipeline.inbox_size must be positive"))
	}
	if c.Pipeline.FlushIntervalMs <= 0 || c.Pipeline.PushIntervalMs <= 0 {
		errs = append(errs, errors.New("pipeline intervals must be positive"))
	}
	if c.PushTopic == "" {
		errs = append(errs, errors.New("push_topic is required"))
	}
	return errors.Join(errs...)
}

func (p Pipeline) FlushInterval() time.Duration { return ms(p.FlushIntervalMs) }
func (p Pipeline) PushInterval() time.Duration { return ms(p.PushIntervalMs) }
func (p Pipeline) ReconnectBackoff() time.Duration {
	return ms(p.ReconnectBackoffMs)
}
func (p Pipeline) CaptureGrace() time.Duration { return ms(p.CaptureGraceMs) }
func (p Pipeline) IngestGrace() time.Duration { return ms(p.IngestGraceMs) }
func (p Pipeline) StopGrace() time.Duration { return ms(p.StopGraceMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Patch is a partial update of the operator-facing settings. Nil fields are
// left untouched.
type Patch struct {
	WSURL       *string `json:"ws_url,omitempty"`
	CaptureArgs *string `json:"ecapture_args,omitempty"`
	Filter      *string `json:"filter,omitempty"`
}

// ApplyPatch returns a copy of c with the fields set in p overridden.
func (c Config) ApplyPatch(p Patch) Config {
	if p.WSURL != nil {
		c.WSURL = *p.WSURL
	}
	if p.CaptureArgs != nil {
		c.CaptureArgs = *p.CaptureArgs
	}
	if p.Filter != nil {
		c.Filter = *p.Filter
	}
	return c
}
