package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connector state labels
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateOpen       = "open"
)

// Collector holds the Prometheus metrics of the connection manager. Each
// collector owns its registry so several managers can coexist in a process.
type Collector struct {
	Registry *prometheus.Registry

	// Endpoint metrics
	ListenersTotal     prometheus.Gauge
	ConnectorsTotal    prometheus.Gauge
	ConnectorsByState  *prometheus.GaugeVec
	SSLProfilesTotal   prometheus.Gauge
	SASLPluginsTotal   prometheus.Gauge
	InboundConnections prometheus.Gauge

	// Lifecycle metrics
	ListenFailures          prometheus.Counter
	ConnectAttempts         prometheus.Counter
	ConnectFailures         prometheus.Counter
	DeferredCloses          prometheus.Counter
	DeferredClosesDiscarded prometheus.Counter
	ConfigErrors            *prometheus.CounterVec

	// Server metrics
	ServerUptime prometheus.Gauge

	startTime time.Time
}

// NewCollector creates a collector registered on a fresh registry
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "router"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,

		ListenersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners_total",
			Help:      "Current number of registered listeners",
		}),
		ConnectorsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectors_total",
			Help:      "Current number of registered connectors",
		}),
		ConnectorsByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectors_by_state",
			Help:      "Registered connectors per connection state",
		}, []string{"state"}),
		SSLProfilesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ssl_profiles_total",
			Help:      "Current number of declared TLS profiles",
		}),
		SASLPluginsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sasl_plugins_total",
			Help:      "Current number of declared SASL plugin profiles",
		}),
		InboundConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbound_connections",
			Help:      "Current number of connections accepted by listeners",
		}),

		ListenFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listen_failures_total",
			Help:      "Total number of failed listener binds",
		}),
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of outbound connection attempts",
		}),
		ConnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Total number of failed outbound connection attempts",
		}),
		DeferredCloses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_closes_total",
			Help:      "Total number of deferred close actions posted to connections",
		}),
		DeferredClosesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deferred_closes_discarded_total",
			Help:      "Deferred close actions discarded because the connection was already gone",
		}),
		ConfigErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_errors_total",
			Help:      "Entity configuration failures by entity type",
		}, []string{"entity"}),

		ServerUptime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Connection manager uptime in seconds",
		}),

		startTime: time.Now(),
	}
}

// RecordListenerAdded increments the listener gauge
func (c *Collector) RecordListenerAdded() {
	c.ListenersTotal.Inc()
}

// RecordListenerRemoved decrements the listener gauge
func (c *Collector) RecordListenerRemoved() {
	c.ListenersTotal.Dec()
}

// RecordConnectorAdded counts a new connector in the idle state
func (c *Collector) RecordConnectorAdded() {
	c.ConnectorsTotal.Inc()
	c.ConnectorsByState.WithLabelValues(StateIdle).Inc()
}

// RecordConnectorRemoved drops a connector that was in state
func (c *Collector) RecordConnectorRemoved(state string) {
	c.ConnectorsTotal.Dec()
	c.ConnectorsByState.WithLabelValues(state).Dec()
}

// RecordConnectorState moves a connector between state gauges
func (c *Collector) RecordConnectorState(from, to string) {
	if from == to {
		return
	}
	c.ConnectorsByState.WithLabelValues(from).Dec()
	c.ConnectorsByState.WithLabelValues(to).Inc()
}

// SetProfiles records the declared profile counts
func (c *Collector) SetProfiles(tls, sasl int) {
	c.SSLProfilesTotal.Set(float64(tls))
	c.SASLPluginsTotal.Set(float64(sasl))
}

func (c *Collector) RecordInboundOpened() {
	c.InboundConnections.Inc()
}

func (c *Collector) RecordInboundClosed() {
	c.InboundConnections.Dec()
}

func (c *Collector) RecordListenFailure() {
	c.ListenFailures.Inc()
}

func (c *Collector) RecordConnectAttempt() {
	c.ConnectAttempts.Inc()
}

func (c *Collector) RecordConnectFailure() {
	c.ConnectFailures.Inc()
}

// RecordDeferredClose counts a posted close, or one that found its
// connection already torn down
func (c *Collector) RecordDeferredClose(discarded bool) {
	if discarded {
		c.DeferredClosesDiscarded.Inc()
		return
	}
	c.DeferredCloses.Inc()
}

// RecordConfigError counts a failed configure call for an entity type
func (c *Collector) RecordConfigError(entity string) {
	c.ConfigErrors.WithLabelValues(entity).Inc()
}

// UpdateServerUptime sets the uptime gauge from the collector start time
func (c *Collector) UpdateServerUptime() {
	c.ServerUptime.Set(time.Since(c.startTime).Seconds())
}
