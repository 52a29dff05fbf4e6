package transport

import (
	"sync"

	"github.com/google/uuid"

	"github.com/maxpert/amqp-router/interfaces"
)

// connection is the transport side of a live connection. The closer is
// whatever tears down the underlying socket or AMQP session.
type connection struct {
	id     string
	remote string
	exec   *Executor

	closer    func() error
	closeOnce sync.Once
	closeErr  error
}

func newConnection(remote string, closer func() error) *connection {
	return &connection{
		id:     uuid.NewString(),
		remote: remote,
		exec:   NewExecutor(),
		closer: closer,
	}
}

func (c *connection) ID() string {
	return c.id
}

func (c *connection) RemoteAddr() string {
	return c.remote
}

func (c *connection) Invoke(action interfaces.DeferredAction) {
	c.exec.Invoke(action)
}

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.closer()
	})
	return c.closeErr
}

// release stops the executor once the connection is gone. Actions still
// pending are discarded.
func (c *connection) release() {
	c.exec.Stop()
}
