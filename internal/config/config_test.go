package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Pipeline.BatchSize != 20 {
		t.Fatalf("batch size default")
	}
	if cfg.Pipeline.FlushInterval() != 300*time.Millisecond || cfg.Pipeline.PushInterval() != 300*time.Millisecond {
		t.Fatalf("interval defaults")
	}
	if cfg.Pipeline.InboxSize != 128 {
		t.Fatalf("inbox default")
	}
	if cfg.PushTopic != "packet-data" {
		t.Fatalf("topic default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ecaptureq.json")
	data := []byte(`{"ws_url":"ws://10.0.0.2:9000/","filter":"pname = 'curl'","pipeline":{"batch_size":50}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WSURL != "ws://10.0.0.2:9000/" {
		t.Fatalf("ws url: %q", cfg.WSURL)
	}
	if cfg.Filter != "pname = 'curl'" {
		t.Fatalf("filter: %q", cfg.Filter)
	}
	if cfg.Pipeline.BatchSize != 50 {
		t.Fatalf("expected 50")
	}
	// untouched fields keep defaults
	if cfg.Pipeline.InboxSize != 128 {
		t.Fatalf("inbox should keep default")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ecaptureq.yaml")
	data := []byte("ws_url: ws://127.0.0.1:1/\necapture_args: tls -m text\npipeline:\n  push_interval_ms: 100\nsinks:\n  nats_url: nats://127.0.0.1:4222\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CaptureArgs != "tls -m text" || cfg.Pipeline.PushIntervalMs != 100 || cfg.Sinks.NATSURL != "nats://127.0.0.1:4222" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Pipeline.BatchSize != 20 {
		t.Fatalf("batch size should keep default")
	}
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(file, []byte("{"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("ECAPTUREQ_WS_URL", "ws://example:1/")
	t.Setenv("ECAPTUREQ_BATCH_SIZE", "7")
	t.Setenv("ECAPTUREQ_INBOX_SIZE", "not-a-number")
	FromEnv(&cfg)
	if cfg.WSURL != "ws://example:1/" {
		t.Fatalf("env override url")
	}
	if cfg.Pipeline.BatchSize != 7 {
		t.Fatalf("env override batch size")
	}
	if cfg.Pipeline.InboxSize != 128 {
		t.Fatalf("bad number should be ignored")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.WSURL = " "
	cfg.Pipeline.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestApplyPatch(t *testing.T) {
	cfg := Default()
	args := "tls --pid 42"
	out := cfg.ApplyPatch(Patch{CaptureArgs: &args})
	if out.CaptureArgs != args {
		t.Fatalf("args not patched")
	}
	if out.WSURL != cfg.WSURL {
		t.Fatalf("unset fields must be preserved")
	}
	if cfg.CaptureArgs == args {
		t.Fatalf("receiver must not be mutated")
	}
}
