package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/gojue/ecaptureQ/internal/config"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		def      string
		envValue string
		expected string
	}{
		{name: "environment variable set", key: "ECAPTUREQ_TEST_VAR", def: "default", envValue: "env_value", expected: "env_value"},
		{name: "environment variable not set", key: "ECAPTUREQ_TEST_UNSET", def: "default", expected: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getenvDefault(tt.key, tt.def); got != tt.expected {
				t.Errorf("getenvDefault(%s, %s) = %s, expected %s", tt.key, tt.def, got, tt.expected)
			}
		})
	}
}

func TestNewLoggerFallsBack(t *testing.T) {
	if l := NewLogger("bogus", "text"); l == nil {
		t.Fatal("nil logger for bad level")
	}
	t.Setenv("ECAPTUREQ_LOG_LEVEL", "debug")
	l := NewLogger("", "")
	if l.GetLevel() != logpkg.DebugLevel {
		t.Fatalf("level %v", l.GetLevel())
	}
}

// TestRunIntegration starts both servers on ephemeral ports and checks that
// Run returns once its context ends.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	opts := Options{
		Config:    cfgpkg.Default(),
		HTTPAddr:  "127.0.0.1:0",
		GRPCAddr:  "127.0.0.1:0",
		NoCapture: true,
		LogLevel:  "error",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := Run(ctx, opts); err != nil {
		t.Errorf("run: %v", err)
	}
}
