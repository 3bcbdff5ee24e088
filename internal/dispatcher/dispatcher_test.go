package dispatcher

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-guardian/internal/audit"
	"go-guardian/internal/models"
)

type call struct {
	kind     string
	guildID  uint64
	userID   uint64
	duration time.Duration
	reason   string
}

type mockExecutor struct {
	mu     sync.Mutex
	calls  []call
	failOn string
}

func (m *mockExecutor) record(c call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == c.kind {
		return errors.New("rest call failed")
	}
	m.calls = append(m.calls, c)
	return nil
}

func (m *mockExecutor) Mute(g, u uint64, d time.Duration, reason string) error {
	return m.record(call{kind: "mute", guildID: g, userID: u, duration: d, reason: reason})
}

func (m *mockExecutor) Kick(g, u uint64, reason string) error {
	return m.record(call{kind: "kick", guildID: g, userID: u, reason: reason})
}

func (m *mockExecutor) Ban(g, u uint64, reason string) error {
	return m.record(call{kind: "ban", guildID: g, userID: u, reason: reason})
}

func (m *mockExecutor) Warn(g, u uint64, reason string) error {
	return m.record(call{kind: "warn", guildID: g, userID: u, reason: reason})
}

func (m *mockExecutor) snapshot() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

func newTestSink(t *testing.T) *audit.Sink {
	t.Helper()
	sink, err := audit.NewSink(filepath.Join(t.TempDir(), "audit.jsonl"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestDispatchDeliversEachKind(t *testing.T) {
	exec := &mockExecutor{}
	d := New(exec, newTestSink(t), 2, 16)
	now := time.Now()

	require.True(t, d.Dispatch(models.NewBanDirective(1, 2, "nuke", now)))
	require.True(t, d.Dispatch(models.NewKickDirective(1, 3, "nuke", now)))
	require.True(t, d.Dispatch(models.NewMuteDirective(1, 4, 10*time.Minute, "spam", now)))
	require.True(t, d.Dispatch(models.NewWarnDirective(1, 5, "spam", now)))

	require.Eventually(t, func() bool {
		return len(exec.snapshot()) == 4
	}, 2*time.Second, 10*time.Millisecond)

	kinds := map[string]call{}
	for _, c := range exec.snapshot() {
		kinds[c.kind] = c
	}
	assert.Equal(t, uint64(2), kinds["ban"].userID)
	assert.Equal(t, uint64(3), kinds["kick"].userID)
	assert.Equal(t, 10*time.Minute, kinds["mute"].duration)
	assert.Equal(t, "spam", kinds["warn"].reason)

	d.Stop()
}

func TestDeliveryFailureDoesNotStopWorkers(t *testing.T) {
	exec := &mockExecutor{failOn: "ban"}
	d := New(exec, newTestSink(t), 1, 16)
	now := time.Now()

	require.True(t, d.Dispatch(models.NewBanDirective(1, 2, "x", now)))
	require.True(t, d.Dispatch(models.NewKickDirective(1, 3, "y", now)))
	require.Eventually(t, func() bool {
		calls := exec.snapshot()
		return len(calls) == 1 && calls[0].kind == "kick"
	}, 2*time.Second, 10*time.Millisecond)

	d.Stop()
}

func TestDispatchRefusedAfterStop(t *testing.T) {
	exec := &mockExecutor{}
	d := New(exec, newTestSink(t), 1, 16)
	d.Stop()

	assert.False(t, d.Dispatch(models.NewBanDirective(1, 2, "late", time.Now())))
}

func TestConcurrentDispatchAndStop(t *testing.T) {
	exec := &mockExecutor{}
	d := New(exec, newTestSink(t), 2, 8)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(u uint64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Dispatch(models.NewWarnDirective(1, u, "w", now))
			}
		}(uint64(i))
	}
	d.Stop()
	wg.Wait()

	// Dispatch after shutdown only ever refuses, it never panics.
	assert.False(t, d.Dispatch(models.NewWarnDirective(1, 99, "late", now)))
}

func TestDispatchShedsWhenSaturated(t *testing.T) {
	exec := &mockExecutor{}
	sink := newTestSink(t)

	// No executor bound yet means workers still drain; use a tiny queue and
	// a blocking executor to hold it full.
	block := make(chan struct{})
	blocking := &blockingExecutor{inner: exec, release: block}
	d := New(blocking, sink, 1, 1)
	now := time.Now()

	// First is picked up by the worker and blocks, second fills the queue.
	require.True(t, d.Dispatch(models.NewBanDirective(1, 2, "a", now)))
	require.Eventually(t, func() bool { return blocking.started.Load() }, 2*time.Second, time.Millisecond)
	require.True(t, d.Dispatch(models.NewBanDirective(1, 3, "b", now)))

	assert.False(t, d.Dispatch(models.NewBanDirective(1, 4, "c", now)))

	close(block)
	d.Stop()
}

type blockingExecutor struct {
	inner   *mockExecutor
	release chan struct{}
	started atomic.Bool
}

func (b *blockingExecutor) Ban(g, u uint64, reason string) error {
	b.started.Store(true)
	<-b.release
	return b.inner.Ban(g, u, reason)
}

func (b *blockingExecutor) Kick(g, u uint64, reason string) error { return b.inner.Kick(g, u, reason) }

func (b *blockingExecutor) Mute(g, u uint64, d time.Duration, reason string) error {
	return b.inner.Mute(g, u, d, reason)
}

func (b *blockingExecutor) Warn(g, u uint64, reason string) error { return b.inner.Warn(g, u, reason) }

func TestBindLateExecutor(t *testing.T) {
	d := New(nil, newTestSink(t), 1, 16)
	exec := &mockExecutor{}
	d.Bind(exec)

	require.True(t, d.Dispatch(models.NewWarnDirective(1, 2, "hello", time.Now())))
	require.Eventually(t, func() bool {
		calls := exec.snapshot()
		return len(calls) == 1 && calls[0].kind == "warn"
	}, 2*time.Second, 10*time.Millisecond)

	d.Stop()
}
