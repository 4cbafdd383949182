package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_DebouncesPatternChanges(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan struct{}, 16)
	w, err := New(dir, 200*time.Millisecond, func(context.Context) error {
		calls <- struct{}{}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Ignored files never trigger a reload.
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.yaml", "b.yml", "a.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("id: x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload after pattern changes")
	}
	select {
	case <-calls:
		t.Fatalf("burst produced more than one reload")
	case <-time.After(600 * time.Millisecond):
	}
	if w.Reloads() != 1 || w.Failed() != 0 {
		t.Fatalf("reloads=%d failed=%d", w.Reloads(), w.Failed())
	}
}

func TestWatcher_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan struct{}, 4)
	w, err := New(dir, 50*time.Millisecond, func(context.Context) error {
		calls <- struct{}{}
		return errors.New("bad pattern")
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, "p.yaml"), []byte("id: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload")
	}
	deadline := time.Now().Add(2 * time.Second)
	for w.Failed() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if w.Failed() != 1 {
		t.Fatalf("failed = %d", w.Failed())
	}
}

func TestNew_MissingDir(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), 0, nil, nil); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
