package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoopEveryStopsOnFalse(t *testing.T) {
	l := startLoop(t)
	var calls atomic.Int32
	finished := make(chan struct{})
	l.Every("tick", 5*time.Millisecond, func() bool {
		if calls.Add(1) == 3 {
			close(finished)
			return false
		}
		return true
	})

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic task did not finish")
	}
	require.Eventually(t, func() bool { return l.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoopAfter(t *testing.T) {
	l := startLoop(t)
	fired := make(chan struct{})
	l.After("once", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot task did not fire")
	}
	assert.Equal(t, 0, l.Pending())
}

func TestLoopCancel(t *testing.T) {
	l := startLoop(t)
	var calls atomic.Int32
	l.After("once", 20*time.Millisecond, func() { calls.Add(1) })
	l.Cancel("once")
	l.Cancel("once")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, l.Pending())
}

func TestLoopCallbacksNeverOverlap(t *testing.T) {
	l := startLoop(t)
	var running, overlaps, total atomic.Int32
	body := func() {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		total.Add(1)
	}
	for _, key := range []string{"a", "b", "c", "d"} {
		l.Every(key, 2*time.Millisecond, func() bool {
			body()
			return total.Load() < 40
		})
	}

	require.Eventually(t, func() bool { return l.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), overlaps.Load())
}

func TestLoopStopsTimersOnCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	var calls atomic.Int32
	l.Every("tick", time.Hour, func() bool { calls.Add(1); return true })
	cancel()
	<-done

	assert.Equal(t, 0, l.Pending())
	l.After("late", time.Millisecond, func() { calls.Add(1) })
	assert.Equal(t, 0, l.Pending(), "registration after stop is ignored")
}
