// Package loop provides the cooperative, single-threaded scheduler that runs
// every client callback, event and poll.
//
// Tasks are plain funcs executed in FIFO order. A turn runs exactly the tasks
// that were queued when it began; anything posted during the turn waits for the
// next one. Tasks are never recovered: a panicking task unwinds out of Turn (or
// Run) with its own frames on the stack, and the tasks queued behind it are kept
// for the next turn.
package loop

import (
	"context"
	"sync"
	"time"
)

// Loop is safe for concurrent Post from any goroutine. Turn, Drain and Run must
// not be called concurrently with each other.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	timers map[*time.Timer]struct{}
	wake   chan struct{}
	closed bool
}

// New returns an idle loop.
func New() *Loop {
	return &Loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// Post queues fn for a later turn. Posting to a closed loop is a no-op.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// PostAfter queues fn once d has elapsed. A non-positive d behaves like Post.
func (l *Loop) PostAfter(d time.Duration, fn func()) {
	if d <= 0 {
		l.Post(fn)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || fn == nil {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, timer)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.timers[timer] = struct{}{}
}

// Pending returns the number of queued tasks, excluding unexpired timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Turn runs the tasks queued at the moment it is called and returns how many
// ran.
func (l *Loop) Turn() int {
	l.mu.Lock()
	tasks := l.queue
	l.queue = nil
	l.mu.Unlock()

	ran := 0
	defer func() {
		if ran < len(tasks) {
			l.requeue(tasks[ran+1:])
		}
	}()
	for ran < len(tasks) {
		tasks[ran]()
		ran++
	}
	return ran
}

// requeue puts tasks back at the head of the queue, ahead of anything posted
// while they were waiting.
func (l *Loop) requeue(tasks []func()) {
	if len(tasks) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(append([]func(){}, tasks...), l.queue...)
}

// Drain runs turns until the queue is empty or maxTurns turns have run. It
// returns the number of tasks executed.
func (l *Loop) Drain(maxTurns int) int {
	total := 0
	for i := 0; i < maxTurns; i++ {
		n := l.Turn()
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

// Run turns the loop until ctx is done, sleeping while there is nothing to
// do.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Turn() > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops pending timers and discards queued tasks. Later posts are
// ignored.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
	for timer := range l.timers {
		timer.Stop()
		delete(l.timers, timer)
	}
}
