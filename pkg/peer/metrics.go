package peer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures peer Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "arena").
	Namespace string

	// Subsystem is the metrics subsystem (default: "peer").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures peer metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "arena",
		Subsystem: "peer",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors shared by all peers of a process.
// Every series carries a "peer" label with the peer name.
// A nil *Metrics records nothing.
type Metrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	bytesSent        *prometheus.CounterVec
	bytesReceived    *prometheus.CounterVec
	envelopes        *prometheus.CounterVec
	pings            *prometheus.CounterVec
	statuses         *prometheus.CounterVec
	protocolErrors   *prometheus.CounterVec
	staleDropped     *prometheus.CounterVec
	unhandled        *prometheus.CounterVec
}

// NewMetrics creates and registers peer metrics.
//
// Metrics collected:
//   - arena_peer_messages_sent_total: socket messages written
//   - arena_peer_messages_received_total: socket messages read
//   - arena_peer_bytes_sent_total / arena_peer_bytes_received_total
//   - arena_peer_envelopes_total: decoded envelopes by kind
//   - arena_peer_pings_total: keep-alive pings sent
//   - arena_peer_status_total: peer-status broadcasts by status
//   - arena_peer_protocol_errors_total: undecodable envelopes
//   - arena_peer_stale_dropped_total: messages dropped after disconnect
//   - arena_peer_unhandled_total: events/responses with no listener by kind
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, append([]string{"peer"}, labels...))
	}

	return &Metrics{
		messagesSent:     counter("messages_sent_total", "Socket messages written"),
		messagesReceived: counter("messages_received_total", "Socket messages read"),
		bytesSent:        counter("bytes_sent_total", "Bytes written to the socket"),
		bytesReceived:    counter("bytes_received_total", "Bytes read from the socket"),
		envelopes:        counter("envelopes_total", "Decoded envelopes by kind", "kind"),
		pings:            counter("pings_total", "Keep-alive pings sent"),
		statuses:         counter("status_total", "Peer status broadcasts", "status"),
		protocolErrors:   counter("protocol_errors_total", "Envelopes that failed to decode"),
		staleDropped:     counter("stale_dropped_total", "Messages dropped because their connection was torn down"),
		unhandled:        counter("unhandled_total", "Events and responses without a listener", "kind"),
	}
}

func (m *Metrics) recordSent(peer string, n int) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(peer).Inc()
	m.bytesSent.WithLabelValues(peer).Add(float64(n))
}

func (m *Metrics) recordReceived(peer string, n int) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(peer).Inc()
	m.bytesReceived.WithLabelValues(peer).Add(float64(n))
}

func (m *Metrics) recordEnvelope(peer, kind string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(peer, kind).Inc()
}

func (m *Metrics) recordPing(peer string) {
	if m == nil {
		return
	}
	m.pings.WithLabelValues(peer).Inc()
}

func (m *Metrics) recordStatus(peer string, s Status) {
	if m == nil {
		return
	}
	m.statuses.WithLabelValues(peer, s.String()).Inc()
}

func (m *Metrics) recordProtocolError(peer string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(peer).Inc()
}

func (m *Metrics) recordStale(peer string) {
	if m == nil {
		return
	}
	m.staleDropped.WithLabelValues(peer).Inc()
}

func (m *Metrics) recordUnhandled(peer, kind string) {
	if m == nil {
		return
	}
	m.unhandled.WithLabelValues(peer, kind).Inc()
}
