package main

import "sync"

// Dispatcher runs subscriber callbacks on the execution context the reporter
// was configured with.
type Dispatcher interface {
	Dispatch(fn func())
	Close()
}

// serialQueue runs jobs one at a time, in submission order, on a single
// worker goroutine. Dispatch never blocks.
type serialQueue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
}

func newSerialQueue() *serialQueue {
	q := &serialQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *serialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting jobs, runs what is already queued and waits for the
// worker to exit. Safe to call more than once.
func (q *serialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *serialQueue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()

			fn()
		}
	}
}

// inlineDispatcher runs callbacks on the goroutine that observed the change.
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) { fn() }
func (inlineDispatcher) Close()             {}
