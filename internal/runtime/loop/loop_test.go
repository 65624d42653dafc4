package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnRunsOnlyTasksQueuedBeforeIt(t *testing.T) {
	l := New()
	var order []string

	l.Post(func() {
		order = append(order, "a")
		l.Post(func() { order = append(order, "c") })
	})
	l.Post(func() { order = append(order, "b") })

	assert.Equal(t, 2, l.Turn())
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, l.Pending())

	assert.Equal(t, 1, l.Turn())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, l.Turn())
}

func TestDrainStopsWhenIdle(t *testing.T) {
	l := New()
	count := 0
	var again func()
	again = func() {
		count++
		if count < 5 {
			l.Post(again)
		}
	}
	l.Post(again)

	assert.Equal(t, 5, l.Drain(100))
	assert.Equal(t, 0, l.Pending())
}

func TestDrainIsBounded(t *testing.T) {
	l := New()
	var forever func()
	forever = func() { l.Post(forever) }
	l.Post(forever)

	assert.Equal(t, 10, l.Drain(10))
	assert.Equal(t, 1, l.Pending())
}

func TestPanickingTaskKeepsLaterTasks(t *testing.T) {
	l := New()
	var ran []int

	l.Post(func() { ran = append(ran, 1) })
	l.Post(func() { panic("handler failed") })
	l.Post(func() { ran = append(ran, 3) })
	l.Post(func() { ran = append(ran, 4) })

	func() {
		defer func() {
			r := recover()
			require.Equal(t, "handler failed", r)
		}()
		l.Turn()
	}()

	assert.Equal(t, []int{1}, ran)
	assert.Equal(t, 2, l.Pending())

	l.Turn()
	assert.Equal(t, []int{1, 3, 4}, ran)
}

func TestRequeuedTasksRunBeforeNewerPosts(t *testing.T) {
	l := New()
	var ran []string

	l.Post(func() {
		l.Post(func() { ran = append(ran, "posted-during-turn") })
		panic("boom")
	})
	l.Post(func() { ran = append(ran, "queued-before") })

	func() {
		defer func() { _ = recover() }()
		l.Turn()
	}()
	l.Drain(5)

	assert.Equal(t, []string{"queued-before", "posted-during-turn"}, ran)
}

func TestPostAfter(t *testing.T) {
	l := New()
	fired := make(chan struct{})
	l.PostAfter(10*time.Millisecond, func() { close(fired) })

	assert.Equal(t, 0, l.Turn())
	require.Eventually(t, func() bool { return l.Pending() == 1 }, time.Second, time.Millisecond)
	l.Turn()

	select {
	case <-fired:
	default:
		t.Fatal("expected delayed task to run")
	}
}

func TestPostAfterNonPositiveIsImmediate(t *testing.T) {
	l := New()
	ran := false
	l.PostAfter(0, func() { ran = true })
	assert.Equal(t, 1, l.Pending())
	l.Turn()
	assert.True(t, ran)
}

func TestCloseDropsTasksAndTimers(t *testing.T) {
	l := New()
	l.Post(func() { t.Fatal("closed loop must not run tasks") })
	l.PostAfter(5*time.Millisecond, func() { t.Fatal("closed loop must not run timers") })
	l.Close()

	l.Post(func() { t.Fatal("posts after close are ignored") })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, l.Turn())
}

func TestRunProcessesCrossGoroutinePosts(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var (
		wg    sync.WaitGroup
		count atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Post(func() { count.Add(1) })
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return count.Load() == 20 }, time.Second, time.Millisecond)

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}
