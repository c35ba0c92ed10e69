// Package loop provides the single-owner executor that serializes all
// callbacks of a client.
//
// Both peers of a client post their decoded messages and status changes to the
// same Loop, so listener code, room state and actor state are only ever touched
// from one goroutine.
package loop

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Executor runs functions in submission order.
type Executor interface {
	// Post schedules fn. It reports false if the executor no longer accepts work.
	Post(fn func()) bool
}

// DefaultQueueSize is the initial task capacity used when New is given a
// size <= 0. The queue grows as needed.
const DefaultQueueSize = 256

// Loop is a goroutine-backed Executor with an unbounded queue, so tasks
// running on the loop may post further tasks without blocking.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	logger *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a loop with the given initial queue capacity. Call Start to run
// posted tasks.
func New(size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		queue:  make([]func(), 0, size),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger,
	}
}

// Start launches the loop goroutine. Calling it more than once has no effect.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Post queues fn without blocking. It returns false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync blocks until every task posted before the call has run.
// It must not be called from the loop goroutine.
func (l *Loop) Sync() {
	ch := make(chan struct{})
	if !l.Post(func() { close(ch) }) {
		return
	}
	select {
	case <-ch:
	case <-l.exited:
	}
}

// Close stops the loop. Tasks still queued are discarded. It waits for the
// running task, so it must not be called from the loop goroutine.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
	// A loop that was never started has no goroutine to wait for.
	l.startOnce.Do(func() { close(l.exited) })
	<-l.exited
}

// Done is closed when the loop stops accepting work.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.wake:
		case <-l.done:
			return
		}

		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.execute(fn)
		}
	}
}

// execute runs one task with panic recovery so a failing listener cannot stop
// the loop.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Inline runs every posted function immediately on the caller's goroutine.
// Useful for tests and for single-goroutine embeddings.
type Inline struct{}

// Post runs fn and returns true.
func (Inline) Post(fn func()) bool {
	fn()
	return true
}
