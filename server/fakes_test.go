package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/maxpert/amqp-router/config"
	"github.com/maxpert/amqp-router/entity"
	routererrors "github.com/maxpert/amqp-router/errors"
	"github.com/maxpert/amqp-router/failover"
	"github.com/maxpert/amqp-router/interfaces"
	"github.com/maxpert/amqp-router/metrics"
)

// fakeConnection records deferred actions instead of running them
type fakeConnection struct {
	id      string
	mu      sync.Mutex
	actions []interfaces.DeferredAction
	closes  int
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{id: uuid.NewString()}
}

func (f *fakeConnection) ID() string         { return f.id }
func (f *fakeConnection) RemoteAddr() string { return "10.0.0.1:5672" }

func (f *fakeConnection) Invoke(action interfaces.DeferredAction) {
	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.mu.Unlock()
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

// run executes the queued actions the way the owning goroutine would
func (f *fakeConnection) run(discard bool) {
	f.mu.Lock()
	actions := f.actions
	f.actions = nil
	f.mu.Unlock()
	for _, action := range actions {
		action(discard)
	}
}

func (f *fakeConnection) counts() (invoked, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions), f.closes
}

type fakeSocket struct {
	mu     sync.Mutex
	closes int
}

func (s *fakeSocket) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5672}
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type connectAttempt struct {
	ctx     context.Context
	target  failover.Item
	handler interfaces.ConnectHandler
}

// fakeTransport binds instantly and records connection attempts without
// reporting an outcome
type fakeTransport struct {
	mu        sync.Mutex
	failing   map[string]bool
	listened  []string
	sockets   map[string]*fakeSocket
	attempts  []connectAttempt
	attempted chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failing:   make(map[string]bool),
		sockets:   make(map[string]*fakeSocket),
		attempted: make(chan struct{}, 16),
	}
}

func (t *fakeTransport) failListen(hostPort string, fail bool) {
	t.mu.Lock()
	t.failing[hostPort] = fail
	t.mu.Unlock()
}

func (t *fakeTransport) Listen(cfg *config.ServerConfig, handler interfaces.AcceptHandler) (interfaces.ListenSocket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listened = append(t.listened, cfg.HostPort)
	if t.failing[cfg.HostPort] {
		return nil, routererrors.NewListenFailed(cfg.HostPort, &net.OpError{Op: "listen", Err: errAddrInUse})
	}
	s := &fakeSocket{}
	t.sockets[cfg.HostPort] = s
	return s, nil
}

func (t *fakeTransport) Connect(ctx context.Context, cfg *config.ServerConfig, target failover.Item, handler interfaces.ConnectHandler) {
	t.mu.Lock()
	t.attempts = append(t.attempts, connectAttempt{ctx: ctx, target: target, handler: handler})
	t.mu.Unlock()
	t.attempted <- struct{}{}
}

func (t *fakeTransport) socket(hostPort string) *fakeSocket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sockets[hostPort]
}

func (t *fakeTransport) listenCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listened)
}

func (t *fakeTransport) attempt(i int) connectAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[i]
}

func (t *fakeTransport) attemptCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.attempts)
}

var errAddrInUse = errors.New("address already in use")

// memSnapshots is an in-memory interfaces.SnapshotStore
type memSnapshots struct {
	mu    sync.Mutex
	items map[string]interfaces.EntitySnapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{items: make(map[string]interfaces.EntitySnapshot)}
}

func (s *memSnapshots) Put(snapshot interfaces.EntitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snapshot.Kind+"/"+snapshot.ID] = snapshot
	return nil
}

func (s *memSnapshots) Get(kind, id string) (interfaces.EntitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.items[kind+"/"+id]
	if !ok {
		return interfaces.EntitySnapshot{}, interfaces.ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (s *memSnapshots) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[kind+"/"+id]; !ok {
		return interfaces.ErrSnapshotNotFound
	}
	delete(s.items, kind+"/"+id)
	return nil
}

func (s *memSnapshots) List() ([]interfaces.EntitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interfaces.EntitySnapshot, 0, len(s.items))
	for _, snapshot := range s.items {
		out = append(out, snapshot)
	}
	return out, nil
}

func (s *memSnapshots) Close() error { return nil }

type testEnv struct {
	manager   *ConnectionManager
	transport *fakeTransport
	collector *metrics.Collector
	snapshots *memSnapshots
	logs      *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	env := &testEnv{
		transport: newFakeTransport(),
		collector: metrics.NewCollector("test"),
		snapshots: newMemSnapshots(),
		logs:      logs,
	}

	m, err := NewManagerBuilder().
		WithTransport(env.transport).
		WithLogger(zap.New(core)).
		WithMetrics(env.collector).
		WithSnapshotStore(env.snapshots).
		WithReconnectDelay(0).
		Build()
	require.NoError(t, err)
	env.manager = m
	t.Cleanup(m.Close)
	return env
}

func listenerEntity(name, port string) entity.Entity {
	return entity.Entity{
		"name":                           name,
		"host":                           "0.0.0.0",
		"port":                           port,
		"role":                           "normal",
		"maxFrameSize":                   16384,
		"maxSessions":                    100,
		"idleTimeoutSeconds":             16,
		"initialHandshakeTimeoutSeconds": 5,
	}
}

func connectorEntity(name string) entity.Entity {
	return entity.Entity{
		"name":               name,
		"host":               "broker.local",
		"port":               "5672",
		"role":               "normal",
		"maxFrameSize":       16384,
		"maxSessions":        100,
		"idleTimeoutSeconds": 16,
	}
}
