package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config declares a logger. Zero values mean info level, text format, console output.
type Config struct {
	Level            string         `json:"level" yaml:"level"`
	Format           string         `json:"format" yaml:"format"`
	Outputs          []OutputConfig `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	RedactKeys       []string       `json:"redactKeys,omitempty" yaml:"redactKeys,omitempty"`
	SampleInitial    int            `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int            `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// OutputConfig selects one output: console, file (with Path) or null.
type OutputConfig struct {
	Type string `json:"type" yaml:"type"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console", "stderr":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NewNullOutput()))
		default:
			return nil, fmt.Errorf("unknown log output %q", oc.Type)
		}
	}
	l := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(l).withRedactions(cfg.RedactKeys).withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	l.slogLogger = slog.New(h)
	return l, nil
}
