package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bolke-ai/bolke/internal/config"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// changeRecorder collects onChange invocations.
type changeRecorder struct {
	mu    sync.Mutex
	diffs []config.Diff
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, config.Compare(old, new))
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.diffs)
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── TestWatcher_InitialLoad ─────────────────────────────────────────────────

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":9090" {
		t.Errorf("Current().Server.ListenAddr = %q", got)
	}
}

// ─── TestWatcher_DetectsChange ───────────────────────────────────────────────

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validYAML)

	rec := &changeRecorder{}
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Force a different mtime on filesystems with coarse timestamps.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, validYAML+"\nbrowser:\n  chrome_path: /usr/bin/chromium\n")
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	waitFor(t, func() bool { return rec.count() > 0 }, "config change never observed")
	if got := w.Current().Browser.ChromePath; got != "/usr/bin/chromium" {
		t.Errorf("Current() not updated: chrome_path = %q", got)
	}
}

// ─── TestWatcher_KeepsOldConfigOnInvalidReload ───────────────────────────────

func TestWatcher_KeepsOldConfigOnInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, validYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "server:\n  log_level: loud\n")
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	// Give the watcher a few polling cycles to (not) pick it up.
	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("invalid reload replaced the config: log_level = %q", got)
	}
}

// ─── TestWatcher_MissingFile ─────────────────────────────────────────────────

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.NewWatcher(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err == nil {
		t.Fatal("want error for missing config file")
	}
}
