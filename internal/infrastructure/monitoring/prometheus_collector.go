package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes relay counters. Registration goes through the supplied
// registerer so tests can use an isolated registry.
type Collector struct {
	connectionsTotal      prometheus.Counter
	connectedParticipants prometheus.Gauge
	joinsTotal            prometheus.Counter
	forwardedTotal        *prometheus.CounterVec
	droppedTotal          *prometheus.CounterVec
	broadcastFanout       prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_connections_total",
			Help: "Total number of accepted signaling connections",
		}),

		connectedParticipants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamcast_connected_participants",
			Help: "Number of currently connected participants",
		}),

		joinsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_room_joins_total",
			Help: "Total number of room join messages processed",
		}),

		forwardedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcast_messages_forwarded_total",
			Help: "Negotiation messages forwarded to room members",
		}, []string{"type"}),

		droppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcast_messages_dropped_total",
			Help: "Messages dropped without forwarding",
		}, []string{"reason"}),

		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamcast_broadcast_fanout",
			Help:    "Number of recipients per broadcast",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

func (c *Collector) RecordConnect() {
	c.connectionsTotal.Inc()
	c.connectedParticipants.Inc()
}

func (c *Collector) RecordDisconnect() {
	c.connectedParticipants.Dec()
}

func (c *Collector) RecordJoin() {
	c.joinsTotal.Inc()
}

func (c *Collector) RecordForwarded(messageType string, recipients int) {
	c.forwardedTotal.WithLabelValues(messageType).Add(float64(recipients))
	c.broadcastFanout.Observe(float64(recipients))
}

func (c *Collector) RecordDropped(reason string) {
	c.droppedTotal.WithLabelValues(reason).Inc()
}
