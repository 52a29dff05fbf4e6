package server

// MetricsCollector defines the interface for metrics collection
type MetricsCollector interface {
	// Endpoint metrics
	RecordListenerAdded()
	RecordListenerRemoved()
	RecordConnectorAdded()
	RecordConnectorRemoved(state string)
	RecordConnectorState(from, to string)

	// Profile metrics
	SetProfiles(tls, sasl int)

	// Connection metrics
	RecordInboundOpened()
	RecordInboundClosed()
	RecordListenFailure()
	RecordConnectAttempt()
	RecordConnectFailure()
	RecordDeferredClose(discarded bool)

	// Error metrics
	RecordConfigError(entity string)
}

// NoOpMetricsCollector is a metrics collector that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordListenerAdded()                 {}
func (n *NoOpMetricsCollector) RecordListenerRemoved()               {}
func (n *NoOpMetricsCollector) RecordConnectorAdded()                {}
func (n *NoOpMetricsCollector) RecordConnectorRemoved(state string)  {}
func (n *NoOpMetricsCollector) RecordConnectorState(from, to string) {}
func (n *NoOpMetricsCollector) SetProfiles(tls, sasl int)            {}
func (n *NoOpMetricsCollector) RecordInboundOpened()                 {}
func (n *NoOpMetricsCollector) RecordInboundClosed()                 {}
func (n *NoOpMetricsCollector) RecordListenFailure()                 {}
func (n *NoOpMetricsCollector) RecordConnectAttempt()                {}
func (n *NoOpMetricsCollector) RecordConnectFailure()                {}
func (n *NoOpMetricsCollector) RecordDeferredClose(discarded bool)   {}
func (n *NoOpMetricsCollector) RecordConfigError(entity string)      {}
