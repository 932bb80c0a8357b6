package watch

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(runs chan struct{}) {
	for {
		select {
		case <-runs:
		default:
			return
		}
	}
}

func waitForRun(t *testing.T, runs chan struct{}, what string) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(3 * time.Second):
		t.Fatalf("expected a rebuild after %s", what)
	}
}

func TestWatchRebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	build := filepath.Join(dir, "build")
	require.NoError(t, os.MkdirAll(build, 0o755))

	runs := make(chan struct{}, 16)
	w := New(func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, []string{dir}, build) }()

	// Give the watcher a beat to register its directories.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.cpp"), []byte("x"), 0o644))
	waitForRun(t, runs, "a source change")

	// A burst of writes debounces into a single rebuild.
	drain(runs)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "burst.cpp"), []byte(strconv.Itoa(i)), 0o644))
	}
	waitForRun(t, runs, "a burst of changes")
	select {
	case <-runs:
		t.Fatal("burst should debounce into one rebuild")
	case <-time.After(300 * time.Millisecond):
	}

	// New subdirectories are picked up and watched.
	drain(runs)
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	waitForRun(t, runs, "a new directory")
	drain(runs)
	require.NoError(t, os.WriteFile(filepath.Join(src, "extra.cpp"), []byte("y"), 0o644))
	waitForRun(t, runs, "a change inside a new directory")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatchIgnoresBuildTree(t *testing.T) {
	dir := t.TempDir()
	build := filepath.Join(dir, "build")
	require.NoError(t, os.MkdirAll(build, 0o755))

	runs := make(chan struct{}, 16)
	w := New(func(ctx context.Context) error {
		runs <- struct{}{}
		return nil
	}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx, []string{dir}, build) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(build, "app.o"), []byte("obj"), 0o644))
	select {
	case <-runs:
		t.Fatal("build outputs must not retrigger the build")
	case <-time.After(300 * time.Millisecond):
	}

	// The loop is still alive for real changes.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.cpp"), []byte("x"), 0o644))
	waitForRun(t, runs, "a source change")
}

func TestWatchMissingDirFails(t *testing.T) {
	w := New(func(ctx context.Context) error { return nil }, 0)
	err := w.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, "")
	assert.Error(t, err)
}
