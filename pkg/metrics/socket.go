package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SocketMetrics records connection and delivery counters for the realtime layer.
type SocketMetrics struct {
	connections *prometheus.GaugeVec
	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	authFailed  prometheus.Counter
}

// NewSocketMetrics registers the socket metrics on the provided registerer.
func NewSocketMetrics(reg prometheus.Registerer) *SocketMetrics {
	if reg == nil {
		return &SocketMetrics{}
	}
	connections := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "socket_connections",
		Help: "Currently open socket connections.",
	}, []string{"state"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_messages_published",
		Help: "Messages published to the channel transport.",
	}, []string{"kind"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socket_messages_delivered",
		Help: "Messages re-emitted to subscribed socket connections.",
	}, []string{"kind"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socket_messages_dropped",
		Help: "Messages dropped because a connection's send buffer was full.",
	}, []string{"kind"})
	authFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socket_auth_failures",
		Help: "Socket connections closed without completing authentication.",
	})
	reg.MustRegister(connections, published, delivered, dropped, authFailed)
	return &SocketMetrics{
		connections: connections,
		published:   published,
		delivered:   delivered,
		dropped:     dropped,
		authFailed:  authFailed,
	}
}

// ConnOpened tracks a connection entering the given state.
func (s *SocketMetrics) ConnOpened(state string) {
	if s == nil || s.connections == nil {
		return
	}
	s.connections.WithLabelValues(normalizeLabel(state)).Inc()
}

// ConnClosed tracks a connection leaving the given state.
func (s *SocketMetrics) ConnClosed(state string) {
	if s == nil || s.connections == nil {
		return
	}
	s.connections.WithLabelValues(normalizeLabel(state)).Dec()
}

// IncPublished counts a message handed to the transport.
func (s *SocketMetrics) IncPublished(kind string) {
	if s == nil || s.published == nil {
		return
	}
	s.published.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncDelivered counts a message re-emitted to a connection.
func (s *SocketMetrics) IncDelivered(kind string) {
	if s == nil || s.delivered == nil {
		return
	}
	s.delivered.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncDropped counts a frame dropped for a slow consumer.
func (s *SocketMetrics) IncDropped(kind string) {
	if s == nil || s.dropped == nil {
		return
	}
	s.dropped.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncAuthFailed counts a connection torn down before authenticating.
func (s *SocketMetrics) IncAuthFailed() {
	if s == nil || s.authFailed == nil {
		return
	}
	s.authFailed.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
