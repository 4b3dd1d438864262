package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchRecorder collects handler calls for assertions.
type dispatchRecorder struct {
	mutex sync.Mutex
	paths []string
}

func (r *dispatchRecorder) handler(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.paths = append(r.paths, path)
}

func (r *dispatchRecorder) dispatched() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.paths...)
}

func newTestWatcher(t *testing.T, clock clockwork.Clock) (*FileWatcher, *dispatchRecorder) {
	t.Helper()

	w, err := New(Options{
		Stabilization: 300 * time.Millisecond,
		Poll:          100 * time.Millisecond,
		Clock:         clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	rec := &dispatchRecorder{}
	w.SetHandler(rec.handler)
	return w, rec
}

func TestNew(t *testing.T) {
	w, err := New(Options{})
	require.NoError(t, err)
	defer w.Stop()

	assert.Equal(t, 2*time.Second, w.stabilization)
	assert.Equal(t, 100*time.Millisecond, w.poll)
	assert.NotNil(t, w.clock)
	assert.Zero(t, w.PendingCount())
}

func TestWatcherDispatchesStableFile(t *testing.T) {
	w, rec := newTestWatcher(t, clockwork.NewRealClock())

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	path := filepath.Join(dir, "IMG_0001.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg data"), 0644))

	assert.Eventually(t, func() bool {
		got := rec.dispatched()
		return len(got) == 1 && got[0] == path
	}, 5*time.Second, 50*time.Millisecond)

	assert.Zero(t, w.PendingCount())
}

func TestWatcherIgnoresExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "backlog.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	w, rec := newTestWatcher(t, clockwork.NewRealClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	// Give the watch time to (not) pick up the backlog file.
	time.Sleep(600 * time.Millisecond)
	assert.Empty(t, rec.dispatched())
}

func TestWatcherAppliesFilters(t *testing.T) {
	w, rec := newTestWatcher(t, clockwork.NewRealClock())
	w.AddFilter(func(path string) bool {
		return filepath.Ext(path) == ".jpg"
	})
	w.AddFilter(NoDotfileFilter)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.jpg"), []byte("x"), 0644))
	keep := filepath.Join(dir, "keep.jpg")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0644))

	assert.Eventually(t, func() bool {
		got := rec.dispatched()
		return len(got) == 1 && got[0] == keep
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherCoalescesDuplicateNotifications(t *testing.T) {
	w, rec := newTestWatcher(t, clockwork.NewRealClock())

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	path := filepath.Join(dir, "IMG_0002.jpg")
	// Several rapid writes produce a burst of notifications for one file.
	for i := 0; i < 5; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		require.NoError(t, err)
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	assert.Eventually(t, func() bool {
		return len(rec.dispatched()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	// And stays exactly one.
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, rec.dispatched(), 1)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, _ := newTestWatcher(t, clockwork.NewRealClock())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcherNoDispatchAfterStop(t *testing.T) {
	w, rec := newTestWatcher(t, clockwork.NewRealClock())

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.jpg"), []byte("x"), 0644))

	// Stop before the stabilization window can elapse.
	require.NoError(t, w.Stop())
	before := len(rec.dispatched())

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, before, len(rec.dispatched()))
}

func TestWatcherWatchMissingDir(t *testing.T) {
	w, _ := newTestWatcher(t, clockwork.NewRealClock())

	err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestNoDotfileFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"photo.jpg", true},
		{filepath.Join("dir", "photo.jpg"), true},
		{".DS_Store", false},
		{filepath.Join("dir", ".hidden.jpg"), false},
		{filepath.Join(".cache", "photo.jpg"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoDotfileFilter(tc.path))
		})
	}
}
