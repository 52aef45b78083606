package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type collector struct {
	mu      sync.Mutex
	batches [][]string
	fail    int
}

func (c *collector) onChange(paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return errors.New("busy")
	}
	c.batches = append(c.batches, paths)
	return nil
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func (c *collector) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, dir string, filter func(string) bool, c *collector) *Watcher {
	t.Helper()
	w := New(dir, filter, c.onChange, WithDebounce(100*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebouncesIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	startWatcher(t, dir, nil, c)

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return len(c.all()) >= 3 })
	if n := c.batchCount(); n != 1 {
		t.Errorf("expected one batch, got %d", n)
	}
	got := c.all()
	if got[0] > got[1] || got[1] > got[2] {
		t.Errorf("batch should be sorted: %v", got)
	}
}

func TestWatcher_FilterAndHidden(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	filter := func(path string) bool { return strings.HasSuffix(path, ".pdf") }
	startWatcher(t, dir, filter, c)

	for _, name := range []string{"skip.txt", ".hidden.pdf", "keep.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return contains(c.all(), "keep.pdf") })
	time.Sleep(200 * time.Millisecond)
	got := c.all()
	if contains(got, "skip.txt") || contains(got, ".hidden.pdf") {
		t.Errorf("filtered files delivered: %v", got)
	}
}

func TestWatcher_NewDirectoryFilesQueued(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	startWatcher(t, dir, nil, c)

	// Build the folder elsewhere and move it in, like a copy tool would.
	staging := t.TempDir()
	folder := filepath.Join(staging, "incoming")
	if err := os.MkdirAll(filepath.Join(folder, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "nested", "deep.pdf"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(folder, filepath.Join(dir, "incoming")); err != nil {
		t.Skipf("rename across temp dirs unsupported: %v", err)
	}
	waitFor(t, func() bool { return contains(c.all(), filepath.Join("incoming", "nested", "deep.pdf")) })

	// Files created later inside the new tree are watched too.
	if err := os.WriteFile(filepath.Join(dir, "incoming", "nested", "later.pdf"), []byte("y"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return contains(c.all(), "later.pdf") })
}

func TestWatcher_FailedBatchIsRequeued(t *testing.T) {
	dir := t.TempDir()
	c := &collector{fail: 1}
	startWatcher(t, dir, nil, c)

	if err := os.WriteFile(filepath.Join(dir, "retry.pdf"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return contains(c.all(), "retry.pdf") })
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w := New(dir, nil, c.onChange, WithDebounce(time.Hour))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return w.Pending() == 1 })
	w.Stop()
	w.Stop()
	if w.Pending() != 0 {
		t.Error("Stop should drop pending changes")
	}
	if c.batchCount() != 0 {
		t.Error("no batch should be delivered after Stop")
	}
}

func TestWatcher_ContextCancelStops(t *testing.T) {
	dir := t.TempDir()
	c := &collector{}
	w := New(dir, nil, c.onChange)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	waitFor(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return !w.started
	})
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), nil, func([]string) error { return nil })
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for missing root")
	}
}

func TestHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/docs/a.pdf", false},
		{"/docs/sub/a.pdf", false},
		{"/docs/.git/config", true},
		{"/docs/sub/.a.pdf", true},
		{"/other/a.pdf", true},
		{"/docs", false},
	}
	for _, tt := range tests {
		if got := hidden("/docs", tt.path); got != tt.want {
			t.Errorf("hidden(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
