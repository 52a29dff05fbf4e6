package server

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/config"
	"github.com/maxpert/amqp-router/interfaces"
)

// Listener is a configured inbound endpoint. It tracks the connections its
// socket has accepted so they can be closed on shutdown.
type Listener struct {
	ID     string
	Config *config.ServerConfig

	// ExitOnError marks a listener whose bind failure is fatal to the node
	ExitOnError bool

	mu      sync.Mutex
	socket  interfaces.ListenSocket
	conns   map[string]interfaces.Connection
	log     *zap.Logger
	metrics MetricsCollector
}

func newListener(cfg *config.ServerConfig, exitOnError bool, log *zap.Logger, metrics MetricsCollector) *Listener {
	return &Listener{
		ID:          uuid.NewString(),
		Config:      cfg,
		ExitOnError: exitOnError,
		conns:       make(map[string]interfaces.Connection),
		log:         log,
		metrics:     metrics,
	}
}

// Name returns the configured listener name
func (l *Listener) Name() string {
	return l.Config.Name
}

// Socket returns the bound socket, or nil when the listener is not listening
func (l *Listener) Socket() interfaces.ListenSocket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.socket
}

func (l *Listener) setSocket(socket interfaces.ListenSocket) {
	l.mu.Lock()
	l.socket = socket
	l.mu.Unlock()
}

// closeSocket closes the bound socket if there is one
func (l *Listener) closeSocket() error {
	l.mu.Lock()
	socket := l.socket
	l.socket = nil
	l.mu.Unlock()

	if socket == nil {
		return nil
	}
	return socket.Close()
}

// Connections returns the number of live inbound connections
func (l *Listener) Connections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// ConnectionAccepted implements interfaces.AcceptHandler
func (l *Listener) ConnectionAccepted(conn interfaces.Connection) {
	l.mu.Lock()
	l.conns[conn.ID()] = conn
	l.mu.Unlock()

	l.metrics.RecordInboundOpened()
	l.log.Debug("Accepted connection",
		zap.String("listener", l.Name()),
		zap.String("connection_id", conn.ID()),
		zap.String("remote", conn.RemoteAddr()))
}

// ConnectionClosed implements interfaces.AcceptHandler
func (l *Listener) ConnectionClosed(conn interfaces.Connection, err error) {
	l.mu.Lock()
	_, ok := l.conns[conn.ID()]
	delete(l.conns, conn.ID())
	l.mu.Unlock()

	if !ok {
		return
	}
	l.metrics.RecordInboundClosed()
	l.log.Debug("Inbound connection closed",
		zap.String("listener", l.Name()),
		zap.String("connection_id", conn.ID()),
		zap.Error(err))
}

// closeConnections posts a deferred close to every inbound connection
func (l *Listener) closeConnections() {
	l.mu.Lock()
	conns := make([]interfaces.Connection, 0, len(l.conns))
	for _, conn := range l.conns {
		conns = append(conns, conn)
	}
	l.mu.Unlock()

	for _, conn := range conns {
		conn.Invoke(deferredClose(conn, l.metrics))
	}
}
