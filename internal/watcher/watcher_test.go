package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, target string, ops fsnotify.Op) (*atomic.Int32, *atomic.Uint32) {
	t.Helper()

	var calls atomic.Int32
	var seen atomic.Uint32
	w, err := New(target, ops, func(op fsnotify.Op) {
		calls.Add(1)
		seen.Store(uint32(op))
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return &calls, &seen
}

func TestWatcher_Write(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0600))

	calls, seen := startWatcher(t, target, fsnotify.Write|fsnotify.Create)

	require.NoError(t, os.WriteFile(target, []byte(`{"log_level":"debug"}`), 0600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, fsnotify.Op(seen.Load()).Has(fsnotify.Write))
}

func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "promptvault.db")
	require.NoError(t, os.WriteFile(target, []byte("db"), 0600))

	calls, seen := startWatcher(t, target, fsnotify.Remove)

	require.NoError(t, os.Remove(target))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, fsnotify.Remove, fsnotify.Op(seen.Load()))
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0600))

	calls, _ := startWatcher(t, target, fsnotify.Write|fsnotify.Create|fsnotify.Remove)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0600))
	time.Sleep(5 * DefaultDebounce)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_IgnoresUnwatchedOps(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "promptvault.db")
	require.NoError(t, os.WriteFile(target, []byte("db"), 0600))

	calls, _ := startWatcher(t, target, fsnotify.Remove)

	require.NoError(t, os.WriteFile(target, []byte("more"), 0600))
	time.Sleep(5 * DefaultDebounce)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "x"), fsnotify.Write, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_MissingParent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", "settings.json"), fsnotify.Write, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
}
