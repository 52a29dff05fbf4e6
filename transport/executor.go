// Package transport performs the socket I/O behind listeners and connectors:
// TCP/TLS listen sockets for inbound connections, AMQP 0-9-1 dialing for
// outbound ones, and the per-connection executors that run deferred actions.
package transport

import (
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/maxpert/amqp-router/interfaces"
)

// Executor runs deferred actions for one connection on its own goroutine,
// in the order they were posted. Invoke never blocks. Once stopped, queued
// and newly posted actions run with discard set.
type Executor struct {
	queue   *queue.Queue
	stopped atomic.Bool
	done    chan struct{}
}

// NewExecutor starts an executor goroutine
func NewExecutor() *Executor {
	e := &Executor{
		queue: queue.New(8),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Invoke posts action to the executor
func (e *Executor) Invoke(action interfaces.DeferredAction) {
	if e.stopped.Load() {
		action(true)
		return
	}
	if err := e.queue.Put(action); err != nil {
		// disposed between the check and the put
		action(true)
	}
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		items, err := e.queue.Get(1)
		if err != nil || len(items) == 0 {
			return
		}
		action := items[0].(interfaces.DeferredAction)
		action(e.stopped.Load())
	}
}

// Stop disposes the queue and discards whatever was still pending. It is
// safe to call from inside an action and more than once.
func (e *Executor) Stop() {
	if e.stopped.Swap(true) {
		return
	}
	for _, item := range e.queue.Dispose() {
		item.(interfaces.DeferredAction)(true)
	}
}

// Done is closed once the executor goroutine has exited
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Pending returns the number of queued actions
func (e *Executor) Pending() int {
	return int(e.queue.Len())
}
