package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherReportsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, "", 50*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "exp_0001.cbor")
	if err := os.WriteFile(want, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-w.Files:
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no file reported")
	}

	select {
	case got := <-w.Files:
		t.Fatalf("unexpected extra file %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if _, ok := <-w.Files; ok {
		t.Fatalf("Files not closed after Run returned")
	}
}

func TestMatches(t *testing.T) {
	w := &Watcher{pattern: "*.cbor"}
	cases := map[string]bool{
		"/data/a.cbor":     true,
		"/data/a.cbor.tmp": false,
		"/data/.a.cbor":    false,
		"/data/a.txt":      false,
	}
	for path, want := range cases {
		if got := w.matches(path); got != want {
			t.Errorf("matches(%q) = %v, want %v", path, got, want)
		}
	}
}
