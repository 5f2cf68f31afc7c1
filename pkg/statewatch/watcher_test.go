package statewatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckIgnoresObservedContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	data := []byte("{}\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := New(dir)
	w.Observe(path, data)
	if w.check(path) {
		t.Fatalf("own write reported as drift")
	}

	if err := os.WriteFile(path, []byte(`{"x":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !w.check(path) {
		t.Fatalf("external edit not reported")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !w.check(path) {
		t.Fatalf("external removal not reported")
	}
}

func TestCheckUnknownFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := New(dir)
	if w.check(filepath.Join(dir, "missing.json")) {
		t.Fatalf("a file that never existed cannot drift")
	}
	path := filepath.Join(dir, "operators.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !w.check(path) {
		t.Fatalf("unexpected new state file should be reported")
	}
}

func TestIsStateFile(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"/data/channels.json":     true,
		"/data/.channels-123.tmp": false,
		"/data/.gatekeeper.lock":  false,
		"/data/.hidden.json":      false,
		"/data/state.db":          false,
	}
	for path, want := range cases {
		if got := isStateFile(path); got != want {
			t.Errorf("isStateFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestStartReportsExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w := New(dir)
	drift := make(chan string, 4)
	w.OnDrift(func(p string) { drift <- p })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"C1":{"mode":"OPEN"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-drift:
		if got != path {
			t.Fatalf("drift reported for %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for drift report")
	}

	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
