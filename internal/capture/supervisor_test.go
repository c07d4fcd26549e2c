package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts only")
	}
	path := filepath.Join(t.TempDir(), "fake-capture")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunStopsGracefully(t *testing.T) {
	sup := NewExecSupervisor(script(t, "exec sleep 30"), time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, sup, "tls --ecaptureq=ws://127.0.0.1:28257/") }()

	time.Sleep(100 * time.Millisecond)
	if sup.PID() == 0 {
		t.Fatalf("process not started")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return")
	}
}

func TestStopKillsAfterGrace(t *testing.T) {
	sup := NewExecSupervisor(script(t, "trap '' INT\nwhile true; do sleep 1; done"), 200*time.Millisecond, nil)
	if err := sup.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	start := time.Now()
	if err := sup.RequestStop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if el := time.Since(start); el < 200*time.Millisecond {
		t.Fatalf("killed before grace: %v", el)
	}
	if err := sup.Wait(); err == nil {
		t.Fatalf("expected kill status from wait")
	}
}

func TestUnexpectedExitIsProcessError(t *testing.T) {
	sup := NewExecSupervisor(script(t, "exit 3"), time.Second, nil)
	err := Run(context.Background(), sup, "")
	var pe *ProcessError
	if !errors.As(err, &pe) || pe.Op != "run" {
		t.Fatalf("want run ProcessError, got %v", err)
	}
}

func TestStartFailure(t *testing.T) {
	sup := NewExecSupervisor(filepath.Join(t.TempDir(), "missing"), time.Second, nil)
	err := Run(context.Background(), sup, "")
	var pe *ProcessError
	if !errors.As(err, &pe) || pe.Op != "start" {
		t.Fatalf("want start ProcessError, got %v", err)
	}
}

func TestStopBeforeStart(t *testing.T) {
	sup := NewExecSupervisor("true", time.Second, nil)
	if err := sup.RequestStop(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("got %v", err)
	}
	if err := sup.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("got %v", err)
	}
}
