package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatcher runs cfg until the test ends and returns the emission stream.
func startWatcher(t *testing.T, cfg Config) chan string {
	t.Helper()
	events := make(chan string, 16)
	cfg.OnFile = func(p string) { events <- p }
	cfg.Log = discardLog()

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	select {
	case <-w.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never became ready")
	}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return events
}

func expectEvent(t *testing.T, events chan string, want string) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("event = %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for %s", want)
	}
}

func expectQuiet(t *testing.T, events chan string, window time.Duration) {
	t.Helper()
	select {
	case got := <-events:
		t.Fatalf("unexpected event %s", got)
	case <-time.After(window):
	}
}

func TestWatcher_ReportsNewFileAfterStability(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, Config{Dir: dir, Debounce: 50 * time.Millisecond})

	path := filepath.Join(dir, "drop.txt")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, events, path)
}

func TestWatcher_IgnoresPreExistingFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(old, []byte("before start"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := startWatcher(t, Config{Dir: dir, Debounce: 50 * time.Millisecond})

	fresh := filepath.Join(dir, "fresh.txt")
	if err := os.WriteFile(fresh, []byte("after start"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, events, fresh)
	expectQuiet(t, events, 200*time.Millisecond)
}

func TestWatcher_IgnoreGlobs(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		Ignore:   []string{"*.tmp", ".*"},
	})

	if err := os.WriteFile(filepath.Join(dir, "download.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, events, keep)
	expectQuiet(t, events, 200*time.Millisecond)
}

func TestWatcher_WriteBurstsCoalesce(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, Config{Dir: dir, Debounce: 150 * time.Millisecond})

	path := filepath.Join(dir, "slow-copy.bin.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := f.WriteString("chunk\n"); err != nil {
			t.Fatal(err)
		}
		if err := f.Sync(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	expectEvent(t, events, path)
	expectQuiet(t, events, 300*time.Millisecond)
}

func TestWatcher_RemovedBeforeStabilityNotReported(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, Config{Dir: dir, Debounce: 200 * time.Millisecond})

	path := filepath.Join(dir, "flash.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, events, 400*time.Millisecond)
}

func TestWatcher_ReportsNewDirectory(t *testing.T) {
	dir := t.TempDir()
	events := startWatcher(t, Config{Dir: dir, Debounce: 50 * time.Millisecond})

	sub := filepath.Join(dir, "dropped-folder")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, events, sub)
}

func TestWatcher_PollingMode(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(old, []byte("before"), 0o644); err != nil {
		t.Fatal(err)
	}

	events := startWatcher(t, Config{
		Dir:          dir,
		Debounce:     40 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	})

	fresh := filepath.Join(dir, "fresh.txt")
	if err := os.WriteFile(fresh, []byte("after"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, events, fresh)
	expectQuiet(t, events, 200*time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Dir: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Error("missing directory should fail")
	}
	if _, err := New(Config{Dir: t.TempDir(), Ignore: []string{"[unclosed"}}); err == nil {
		t.Error("bad glob should fail")
	}
}
