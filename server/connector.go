package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/config"
	"github.com/maxpert/amqp-router/failover"
	"github.com/maxpert/amqp-router/interfaces"
)

// Connector is a configured outbound endpoint with its failover list.
//
// mu guards the connection state and the hand-off of the live connection
// between the transport goroutines and DeleteConnector.
type Connector struct {
	ID     string
	Config *config.ServerConfig

	mu        sync.Mutex
	state     ConnectorState
	conn      interfaces.Connection
	connIndex int
	failover  failover.List
	deleted   bool
	retry     *time.Timer

	transport      interfaces.Transport
	reconnectDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
	log            *zap.Logger
	metrics        MetricsCollector
}

func newConnector(ctx context.Context, cfg *config.ServerConfig, list failover.List, m *ConnectionManager) *Connector {
	ctx, cancel := context.WithCancel(ctx)
	return &Connector{
		ID:             uuid.NewString(),
		Config:         cfg,
		state:          ConnectorIdle,
		connIndex:      1,
		failover:       list,
		transport:      m.transport,
		reconnectDelay: m.reconnectDelay,
		ctx:            ctx,
		cancel:         cancel,
		log:            m.log,
		metrics:        m.metrics,
	}
}

// Name returns the configured connector name
func (c *Connector) Name() string {
	return c.Config.Name
}

// State returns the current connection state
func (c *Connector) State() ConnectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connection returns the live connection, or nil
func (c *Connector) Connection() interfaces.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// ConnIndex returns the 1-based position of the current failover item
func (c *Connector) ConnIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connIndex
}

// FailoverURLs renders the failover list starting at the current item
func (c *Connector) FailoverURLs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failover.Render(c.connIndex)
}

// FailoverList returns a copy of the failover list
func (c *Connector) FailoverList() failover.List {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failover.Clone()
}

// connect starts an attempt against the current failover item. It does
// nothing unless the connector is idle.
func (c *Connector) connect() bool {
	c.mu.Lock()
	if c.deleted || c.state != ConnectorIdle {
		c.mu.Unlock()
		return false
	}
	c.state = ConnectorConnecting
	target := c.failover[c.connIndex-1]
	c.mu.Unlock()

	c.metrics.RecordConnectorState(ConnectorIdle.String(), ConnectorConnecting.String())
	c.metrics.RecordConnectAttempt()
	c.log.Info("Connecting",
		zap.String("connector", c.Name()),
		zap.String("target", target.String()))

	c.transport.Connect(c.ctx, c.Config, target, c)
	return true
}

// scheduleRetry arms the reconnect timer. Must be called with mu held.
func (c *Connector) scheduleRetry() {
	if c.deleted || c.reconnectDelay <= 0 {
		return
	}
	c.retry = time.AfterFunc(c.reconnectDelay, func() { c.connect() })
}

// ConnectionOpened implements interfaces.ConnectHandler
func (c *Connector) ConnectionOpened(conn interfaces.Connection) {
	c.mu.Lock()
	if c.deleted {
		// the connector went away while the attempt was in flight
		conn.Invoke(deferredClose(conn, c.metrics))
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = ConnectorOpen
	c.conn = conn
	c.mu.Unlock()

	c.metrics.RecordConnectorState(from.String(), ConnectorOpen.String())
	c.log.Info("Connection opened",
		zap.String("connector", c.Name()),
		zap.String("connection_id", conn.ID()),
		zap.String("remote", conn.RemoteAddr()))
}

// ConnectionFailed implements interfaces.ConnectHandler. The connector
// rotates to the next failover item for its next attempt.
func (c *Connector) ConnectionFailed(err error) {
	c.mu.Lock()
	if c.deleted || c.state != ConnectorConnecting {
		c.mu.Unlock()
		return
	}
	c.state = ConnectorIdle
	c.connIndex = c.connIndex%len(c.failover) + 1
	next := c.failover[c.connIndex-1]
	c.scheduleRetry()
	c.mu.Unlock()

	c.metrics.RecordConnectorState(ConnectorConnecting.String(), ConnectorIdle.String())
	c.metrics.RecordConnectFailure()
	c.log.Warn("Connection attempt failed",
		zap.String("connector", c.Name()),
		zap.String("next", next.String()),
		zap.Error(err))
}

// ConnectionClosed implements interfaces.ConnectHandler
func (c *Connector) ConnectionClosed(conn interfaces.Connection, err error) {
	c.mu.Lock()
	if c.deleted || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = ConnectorIdle
	c.scheduleRetry()
	c.mu.Unlock()

	c.metrics.RecordConnectorState(ConnectorOpen.String(), ConnectorIdle.String())
	c.log.Info("Connection closed",
		zap.String("connector", c.Name()),
		zap.String("connection_id", conn.ID()),
		zap.Error(err))
}

// detach marks the connector deleted and hands any live connection a
// deferred close on its own goroutine. It returns the state the connector
// was in, which no longer changes afterwards.
func (c *Connector) detach() ConnectorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state
	c.deleted = true
	if c.conn != nil {
		c.conn.Invoke(deferredClose(c.conn, c.metrics))
		c.conn = nil
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	c.cancel()
	return state
}
