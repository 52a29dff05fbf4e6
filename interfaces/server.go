package interfaces

import (
	"context"
	"net"
	"time"

	"github.com/maxpert/amqp-router/config"
	"github.com/maxpert/amqp-router/failover"
)

// DeferredAction runs on the goroutine that owns a connection. discard is
// true when the connection was torn down before the action got to run, in
// which case the action must not touch it.
type DeferredAction func(discard bool)

// Connection is a live AMQP connection owned by the transport. Only the
// owning goroutine may act on it directly; everyone else goes through Invoke.
type Connection interface {
	ID() string
	RemoteAddr() string

	// Invoke queues action for the connection's own goroutine
	Invoke(action DeferredAction)

	// Close tears the connection down. Callers outside the owning goroutine
	// must post it through Invoke instead.
	Close() error
}

// ListenSocket is a bound listener accepting inbound connections
type ListenSocket interface {
	Addr() net.Addr
	Close() error
}

// AcceptHandler receives connections accepted by a ListenSocket
type AcceptHandler interface {
	ConnectionAccepted(conn Connection)
	ConnectionClosed(conn Connection, err error)
}

// ConnectHandler receives the outcome of an outbound connection attempt.
// Calls arrive on transport goroutines.
type ConnectHandler interface {
	ConnectionOpened(conn Connection)
	ConnectionFailed(err error)
	ConnectionClosed(conn Connection, err error)
}

// Transport performs the socket I/O for listeners and connectors
type Transport interface {
	// Listen binds cfg.HostPort. It returns once the socket is bound or the
	// bind failed; accepting continues in the background.
	Listen(cfg *config.ServerConfig, handler AcceptHandler) (ListenSocket, error)

	// Connect starts a connection attempt to target and returns immediately
	Connect(ctx context.Context, cfg *config.ServerConfig, target failover.Item, handler ConnectHandler)
}

// HealthStatus represents connection manager health information
type HealthStatus struct {
	Status     string
	Uptime     time.Duration
	Listeners  int
	Connectors int
	Errors     []string
	Timestamp  time.Time
}
