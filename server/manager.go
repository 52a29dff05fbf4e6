package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maxpert/amqp-router/config"
	"github.com/maxpert/amqp-router/entity"
	routererrors "github.com/maxpert/amqp-router/errors"
	"github.com/maxpert/amqp-router/failover"
	"github.com/maxpert/amqp-router/interfaces"
	"github.com/maxpert/amqp-router/logging"
	"github.com/maxpert/amqp-router/profiles"
)

// ErrInitialListen is returned by Start when a listener cannot bind during
// the first start. The node must not run with that configuration.
var ErrInitialListen = errors.New("listen failed during initial config")

const (
	SnapshotKindListener  = "listener"
	SnapshotKindConnector = "connector"

	// DefaultReconnectDelay is the pause before a connector retries
	DefaultReconnectDelay = 5 * time.Second
)

// ConnectionManager owns the listeners, connectors and the TLS and SASL
// plugin profiles of a node, and drives their lifecycle.
//
// Management operations (Configure*, Delete*, Start) are expected to come
// from a single control goroutine. The collections are still guarded so
// that read-side helpers such as Health may run concurrently.
type ConnectionManager struct {
	mu                   sync.RWMutex
	state                LifecycleState
	startTime            time.Time
	firstStart           bool
	exitOnInitialFailure bool
	reconnectDelay       time.Duration

	log       *zap.Logger
	transport interfaces.Transport
	metrics   MetricsCollector
	snapshots interfaces.SnapshotStore
	errors    routererrors.Register

	tlsProfiles *profiles.Registry[*config.TLSProfile]
	saslPlugins *profiles.Registry[*config.SASLPluginProfile]
	listeners   []*Listener
	connectors  []*Connector

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a manager that performs I/O through transport
func NewConnectionManager(transport interfaces.Transport, log *zap.Logger) *ConnectionManager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		state:                StateStopped,
		firstStart:           true,
		exitOnInitialFailure: true,
		log:                  log.Named(logging.ConnectionManager),
		transport:            transport,
		metrics:              &NoOpMetricsCollector{},
		tlsProfiles:          profiles.NewRegistry[*config.TLSProfile](),
		saslPlugins:          profiles.NewRegistry[*config.SASLPluginProfile](),
		ctx:                  ctx,
		cancel:               cancel,
	}
}

// FindTLSProfile implements config.ProfileResolver
func (m *ConnectionManager) FindTLSProfile(name string) (*config.TLSProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tlsProfiles.Find(name)
}

// FindSASLPlugin implements config.ProfileResolver
func (m *ConnectionManager) FindSASLPlugin(name string) (*config.SASLPluginProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saslPlugins.Find(name)
}

// Errors returns the register holding the latest management error
func (m *ConnectionManager) Errors() *routererrors.Register {
	return &m.errors
}

// configFailed records err as the latest error and reports it
func (m *ConnectionManager) configFailed(kind, message string, err error) error {
	m.errors.Set(err)
	m.metrics.RecordConfigError(kind)
	m.log.Error(message, zap.Error(err))
	return err
}

func (m *ConnectionManager) updateProfileMetrics() {
	m.mu.RLock()
	tls, sasl := m.tlsProfiles.Len(), m.saslPlugins.Len()
	m.mu.RUnlock()
	m.metrics.SetProfiles(tls, sasl)
}

// ConfigureSSLProfile declares a TLS profile from its entity
func (m *ConnectionManager) ConfigureSSLProfile(ent entity.Entity) (*config.TLSProfile, error) {
	p, err := config.DeclareTLSProfile(ent, m.log)
	if err != nil {
		return nil, m.configFailed("sslProfile", "Unable to create ssl profile", err)
	}

	m.mu.Lock()
	_, dup := m.tlsProfiles.Find(p.Name)
	m.tlsProfiles.Declare(p)
	m.mu.Unlock()
	if dup {
		m.log.Warn("Duplicate ssl profile name, lookups use the first one declared",
			zap.String("ssl_profile", p.Name))
	}
	m.updateProfileMetrics()
	return p, nil
}

// ConfigureSASLPlugin declares an authentication service plugin from its entity
func (m *ConnectionManager) ConfigureSASLPlugin(ent entity.Entity) (*config.SASLPluginProfile, error) {
	p, err := config.DeclareSASLPlugin(ent, m.log)
	if err != nil {
		return nil, m.configFailed("authServicePlugin", "Unable to create SASL plugin config", err)
	}

	m.mu.Lock()
	_, dup := m.saslPlugins.Find(p.Name)
	m.saslPlugins.Declare(p)
	m.mu.Unlock()
	if dup {
		m.log.Warn("Duplicate SASL plugin name, lookups use the first one declared",
			zap.String("sasl_plugin", p.Name))
	}
	m.updateProfileMetrics()
	return p, nil
}

// ConfigureListener creates and registers a listener. It does not bind
// until the next Start.
func (m *ConnectionManager) ConfigureListener(ent entity.Entity) (*Listener, error) {
	cfg, err := config.LoadServerConfig(ent, true, m, m.log)
	if err != nil {
		return nil, m.configFailed("listener", "Unable to create listener", err)
	}

	urls, err := ent.OptString("failoverUrls", "")
	if err != nil {
		return nil, m.configFailed("listener", "Unable to create listener", err)
	}
	if urls != "" {
		list, err := failover.Parse(urls)
		if err != nil {
			return nil, m.configFailed("listener", "Unable to create listener, bad failover list", err)
		}
		cfg.FailoverList = list
	}

	l := newListener(cfg, false, m.log, m.metrics)
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	m.metrics.RecordListenerAdded()
	m.logConfig("Listener", cfg)
	return l, nil
}

// ConfigureConnector creates and registers a connector. Its failover list
// starts with its own address, followed by any failoverUrls entries.
func (m *ConnectionManager) ConfigureConnector(ent entity.Entity) (*Connector, error) {
	cfg, err := config.LoadServerConfig(ent, false, m, m.log)
	if err != nil {
		return nil, m.configFailed("connector", "Unable to create connector", err)
	}

	list := failover.List{failover.NewPrimary(cfg.SSLRequired, cfg.Host, cfg.Port)}
	urls, err := ent.OptString("failoverUrls", "")
	if err != nil {
		return nil, m.configFailed("connector", "Unable to create connector", err)
	}
	if urls != "" {
		backups, err := failover.Parse(urls)
		if err != nil {
			return nil, m.configFailed("connector", "Unable to create connector", err)
		}
		list = append(list, backups...)
	}

	c := newConnector(m.ctx, cfg, list, m)
	m.mu.Lock()
	m.connectors = append(m.connectors, c)
	m.mu.Unlock()

	m.metrics.RecordConnectorAdded()
	m.logConfig("Connector", cfg)
	return c, nil
}

func (m *ConnectionManager) logConfig(what string, cfg *config.ServerConfig) {
	proto := cfg.ProtocolFamily
	if proto == "" {
		proto = "any"
	}
	fields := []zap.Field{
		zap.String("host_port", cfg.HostPort),
		zap.String("proto", proto),
		zap.String("role", cfg.Role),
	}
	if cfg.HTTP {
		fields = append(fields, zap.Bool("http", true))
	}
	if cfg.SSLProfile != "" {
		fields = append(fields, zap.String("ssl_profile", cfg.SSLProfile))
	}
	m.log.Info("Configured "+what, fields...)
}

// Apply configures every profile and endpoint of cfg in dependency order:
// TLS profiles, SASL plugins, listeners, connectors. Failed entities are
// skipped; their errors are returned combined.
func (m *ConnectionManager) Apply(cfg *config.NodeConfig) error {
	m.mu.Lock()
	m.exitOnInitialFailure = cfg.ExitOnInitialListenFailure
	m.mu.Unlock()

	var errs error
	for _, ent := range cfg.SSLProfiles {
		_, err := m.ConfigureSSLProfile(ent)
		errs = multierr.Append(errs, err)
	}
	for _, ent := range cfg.AuthServicePlugins {
		_, err := m.ConfigureSASLPlugin(ent)
		errs = multierr.Append(errs, err)
	}
	for _, ent := range cfg.Listeners {
		_, err := m.ConfigureListener(ent)
		errs = multierr.Append(errs, err)
	}
	for _, ent := range cfg.Connectors {
		_, err := m.ConfigureConnector(ent)
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Start binds every listener without a socket and starts a connection
// attempt for every idle connector. A bind failure during the first start
// returns ErrInitialListen; later failures are logged and the listener is
// retried on the next Start.
func (m *ConnectionManager) Start() error {
	if m.ctx.Err() != nil {
		return errors.New("connection manager is closed")
	}

	m.mu.Lock()
	if !canTransition(m.state, StateStarting) {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot start connection manager in state: %s", state)
	}
	if m.state == StateStopped {
		m.startTime = time.Now()
	}
	m.state = StateStarting
	first := m.firstStart
	fatal := first && m.exitOnInitialFailure
	listeners := append([]*Listener(nil), m.listeners...)
	connectors := append([]*Connector(nil), m.connectors...)
	m.mu.Unlock()

	for _, l := range listeners {
		if l.Socket() != nil {
			continue
		}
		if err := m.listen(l); err != nil && fatal {
			m.log.Error("Listen failed during initial config",
				zap.String("host_port", l.Config.HostPort),
				zap.Error(err))
			m.setState(StateStopped)
			return fmt.Errorf("%w: %w", ErrInitialListen, err)
		}
		l.ExitOnError = fatal
	}

	for _, c := range connectors {
		c.connect()
	}

	m.mu.Lock()
	m.state = StateRunning
	m.firstStart = false
	m.mu.Unlock()
	return nil
}

func (m *ConnectionManager) listen(l *Listener) error {
	socket, err := m.transport.Listen(l.Config, l)
	if err != nil {
		m.errors.Set(err)
		m.metrics.RecordListenFailure()
		m.log.Warn("Listen failed",
			zap.String("listener", l.Name()),
			zap.String("host_port", l.Config.HostPort),
			zap.Error(err))
		return err
	}
	l.setSocket(socket)
	m.log.Info("Listening",
		zap.String("listener", l.Name()),
		zap.String("address", socket.Addr().String()))
	return nil
}

func (m *ConnectionManager) setState(state LifecycleState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// State returns the lifecycle state of the manager
func (m *ConnectionManager) State() LifecycleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Listeners returns the registered listeners in creation order
func (m *ConnectionManager) Listeners() []*Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Listener(nil), m.listeners...)
}

// Connectors returns the registered connectors in creation order
func (m *ConnectionManager) Connectors() []*Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Connector(nil), m.connectors...)
}

// DeleteListener closes the listener's socket if it is bound and removes
// it from the manager. Accepted connections stay up.
func (m *ConnectionManager) DeleteListener(l *Listener) error {
	if l == nil {
		return nil
	}
	err := l.closeSocket()
	if err != nil {
		m.log.Warn("Closing listen socket failed", zap.String("listener", l.Name()), zap.Error(err))
	}

	m.mu.Lock()
	removed := false
	for i, existing := range m.listeners {
		if existing == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()

	if removed {
		m.metrics.RecordListenerRemoved()
	}
	return err
}

// DeleteConnector removes a connector and its persisted snapshot. A live
// connection is never closed from here: a close is posted to the goroutine
// that owns it.
func (m *ConnectionManager) DeleteConnector(c *Connector) {
	m.removeConnector(c, true)
}

func (m *ConnectionManager) removeConnector(c *Connector, forget bool) {
	if c == nil {
		return
	}
	state := c.detach()

	m.mu.Lock()
	removed := false
	for i, existing := range m.connectors {
		if existing == c {
			m.connectors = append(m.connectors[:i], m.connectors[i+1:]...)
			removed = true
			break
		}
	}
	m.mu.Unlock()

	if !removed {
		return
	}
	m.metrics.RecordConnectorRemoved(state.String())
	if forget && m.snapshots != nil {
		if err := m.snapshots.Delete(SnapshotKindConnector, c.ID); err != nil && !errors.Is(err, interfaces.ErrSnapshotNotFound) {
			m.log.Warn("Removing connector snapshot failed", zap.String("connector", c.Name()), zap.Error(err))
		}
	}
}

// DeleteSSLProfile removes a TLS profile. Configs that already copied it
// keep their values.
func (m *ConnectionManager) DeleteSSLProfile(p *config.TLSProfile) bool {
	m.mu.Lock()
	removed := m.tlsProfiles.Remove(p)
	m.mu.Unlock()
	m.updateProfileMetrics()
	return removed
}

// DeleteSASLPlugin removes an authentication service plugin profile
func (m *ConnectionManager) DeleteSASLPlugin(p *config.SASLPluginProfile) bool {
	m.mu.Lock()
	removed := m.saslPlugins.Remove(p)
	m.mu.Unlock()
	m.updateProfileMetrics()
	return removed
}

// RefreshConnector returns the computed attributes of a connector for the
// management layer and persists them when a snapshot store is configured.
func (m *ConnectionManager) RefreshConnector(c *Connector) (entity.Entity, error) {
	urls := c.FailoverURLs()
	attrs := entity.Entity{}
	attrs.SetString("failoverUrls", urls)

	if m.snapshots != nil {
		err := m.snapshots.Put(interfaces.EntitySnapshot{
			Kind:       SnapshotKindConnector,
			ID:         c.ID,
			Name:       c.Name(),
			Attributes: map[string]string{"failoverUrls": urls},
			UpdatedAt:  time.Now(),
		})
		if err != nil {
			return attrs, fmt.Errorf("persist connector snapshot: %w", err)
		}
	}
	return attrs, nil
}

// RefreshListener returns the computed attributes of a listener. Listeners
// have none.
func (m *ConnectionManager) RefreshListener(l *Listener) (entity.Entity, error) {
	return entity.Entity{}, nil
}

// ConnectorName returns the configured name of c, or "" for nil
func ConnectorName(c *Connector) string {
	if c == nil {
		return ""
	}
	return c.Name()
}

// Health returns the manager health status
func (m *ConnectionManager) Health() interfaces.HealthStatus {
	m.mu.RLock()
	state := m.state
	startTime := m.startTime
	status := interfaces.HealthStatus{
		Listeners:  len(m.listeners),
		Connectors: len(m.connectors),
		Timestamp:  time.Now(),
	}
	m.mu.RUnlock()

	switch state {
	case StateRunning:
		status.Status = "healthy"
		status.Uptime = time.Since(startTime)
	case StateStarting:
		status.Status = "starting"
	case StateStopping:
		status.Status = "stopping"
	default:
		status.Status = "stopped"
	}
	if err := m.errors.Latest(); err != nil {
		status.Errors = []string{err.Error()}
	}
	return status
}

// Shutdown closes every listener socket and posts a close to every live
// connection, then releases everything the manager owns. It returns early
// with ctx's error if ctx ends first.
func (m *ConnectionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStopping {
		m.mu.Unlock()
		return nil
	}
	m.state = StateStopping
	listeners := append([]*Listener(nil), m.listeners...)
	connectors := append([]*Connector(nil), m.connectors...)
	m.mu.Unlock()

	m.log.Info("Shutting down",
		zap.Int("listeners", len(listeners)),
		zap.Int("connectors", len(connectors)))

	var g errgroup.Group
	for _, l := range listeners {
		g.Go(func() error {
			err := l.closeSocket()
			l.closeConnections()
			return err
		})
	}
	for _, c := range connectors {
		g.Go(func() error {
			c.detach()
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.Close()
	return err
}

// Close releases listeners, connectors, TLS profiles and SASL plugins, in
// that order. Persisted snapshots are kept. A closed manager cannot be
// started again.
func (m *ConnectionManager) Close() {
	m.cancel()

	for _, l := range m.Listeners() {
		m.DeleteListener(l)
	}
	for _, c := range m.Connectors() {
		m.removeConnector(c, false)
	}

	m.mu.Lock()
	m.tlsProfiles.Clear()
	m.saslPlugins.Clear()
	m.state = StateStopped
	m.mu.Unlock()
	m.updateProfileMetrics()
}

func deferredClose(conn interfaces.Connection, metrics MetricsCollector) interfaces.DeferredAction {
	return func(discard bool) {
		metrics.RecordDeferredClose(discard)
		if discard {
			return
		}
		conn.Close()
	}
}
