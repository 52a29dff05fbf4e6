package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/interfaces"
	"github.com/maxpert/amqp-router/logging"
)

// ManagerBuilder provides a fluent API for building connection managers
type ManagerBuilder struct {
	transport            interfaces.Transport
	logger               *zap.Logger
	metrics              MetricsCollector
	snapshots            interfaces.SnapshotStore
	reconnectDelay       time.Duration
	exitOnInitialFailure bool
}

// NewManagerBuilder creates a builder with the default settings
func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{
		reconnectDelay:       DefaultReconnectDelay,
		exitOnInitialFailure: true,
	}
}

// WithTransport sets the transport performing listener and connector I/O
func (b *ManagerBuilder) WithTransport(transport interfaces.Transport) *ManagerBuilder {
	b.transport = transport
	return b
}

// WithLogger sets the logger
func (b *ManagerBuilder) WithLogger(logger *zap.Logger) *ManagerBuilder {
	b.logger = logger
	return b
}

// WithZapLogger creates a logger using zap with the specified level
func (b *ManagerBuilder) WithZapLogger(level string) *ManagerBuilder {
	cfg := logging.DefaultConfig()
	cfg.Level = level
	b.logger = logging.MustNew(cfg)
	return b
}

// WithMetrics sets the metrics collector
func (b *ManagerBuilder) WithMetrics(metrics MetricsCollector) *ManagerBuilder {
	b.metrics = metrics
	return b
}

// WithSnapshotStore persists refreshed entity attributes to store
func (b *ManagerBuilder) WithSnapshotStore(store interfaces.SnapshotStore) *ManagerBuilder {
	b.snapshots = store
	return b
}

// WithReconnectDelay sets the pause before a connector retries after a
// failed attempt or a closed connection. Zero disables retries.
func (b *ManagerBuilder) WithReconnectDelay(delay time.Duration) *ManagerBuilder {
	b.reconnectDelay = delay
	return b
}

// WithExitOnInitialListenFailure controls whether a bind failure on the
// first Start is fatal
func (b *ManagerBuilder) WithExitOnInitialListenFailure(exit bool) *ManagerBuilder {
	b.exitOnInitialFailure = exit
	return b
}

// Build constructs the connection manager
func (b *ManagerBuilder) Build() (*ConnectionManager, error) {
	if b.transport == nil {
		return nil, fmt.Errorf("connection manager requires a transport")
	}
	if b.reconnectDelay < 0 {
		return nil, fmt.Errorf("reconnect delay must not be negative: %s", b.reconnectDelay)
	}

	m := NewConnectionManager(b.transport, b.logger)
	m.reconnectDelay = b.reconnectDelay
	m.exitOnInitialFailure = b.exitOnInitialFailure
	m.snapshots = b.snapshots
	if b.metrics != nil {
		m.metrics = b.metrics
	}
	return m, nil
}
