package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advancePoll steps the fake clock by one poll interval once the stabilizer
// is waiting on it.
func advancePoll(t *testing.T, clock *clockwork.FakeClock, w *FileWatcher) {
	t.Helper()
	clock.BlockUntil(1)
	clock.Advance(w.poll)
}

func TestStabilizationWithFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w, rec := newTestWatcher(t, clock)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	path := filepath.Join(dir, "IMG_0100.jpg")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0644))

	// The fsnotify event arrives in real time; wait for tracking to begin.
	require.Eventually(t, func() bool {
		return w.PendingCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Stabilization is 300ms polled at 100ms: the first poll records the
	// size, two more quiet polls are not yet enough.
	advancePoll(t, clock, w)
	advancePoll(t, clock, w)
	advancePoll(t, clock, w)
	assert.Empty(t, rec.dispatched())

	// One more quiet poll completes the window.
	advancePoll(t, clock, w)
	assert.Eventually(t, func() bool {
		return len(rec.dispatched()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, w.PendingCount())
}

func TestStabilizationRestartsOnWrite(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w, rec := newTestWatcher(t, clock)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	path := filepath.Join(dir, "IMG_0101.jpg")
	require.NoError(t, os.WriteFile(path, []byte("part one"), 0644))

	require.Eventually(t, func() bool {
		return w.PendingCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// First poll records the size, second poll is quiet.
	advancePoll(t, clock, w)
	advancePoll(t, clock, w)

	// The copy continues: the file grows inside the stabilization window.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte("part two"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// The next poll sees the new size and resets the quiet counter, so a
	// full window has to elapse again before dispatch.
	advancePoll(t, clock, w) // observes growth
	advancePoll(t, clock, w)
	advancePoll(t, clock, w)
	assert.Empty(t, rec.dispatched())

	advancePoll(t, clock, w)
	assert.Eventually(t, func() bool {
		return len(rec.dispatched()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Exactly one dispatch for the settled file.
	assert.Len(t, rec.dispatched(), 1)
}

func TestStabilizationDropsVanishedFile(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w, rec := newTestWatcher(t, clock)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx, dir))

	path := filepath.Join(dir, "gone.jpg")
	require.NoError(t, os.WriteFile(path, []byte("short lived"), 0644))

	require.Eventually(t, func() bool {
		return w.PendingCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))

	advancePoll(t, clock, w)

	assert.Eventually(t, func() bool {
		return w.PendingCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, rec.dispatched())
}
