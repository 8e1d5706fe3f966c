package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	Broadcasts         prometheus.Counter
	QueueDrops         prometheus.Counter
	BackpressureCloses prometheus.Counter
	SessionsCreated    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mesh_ws_active_connections",
			Help: "Currently connected WebSocket clients.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_ws_broadcasts_total",
			Help: "Bus messages fanned out to clients.",
		}),
		QueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_ws_queue_drops_total",
			Help: "Outbound frames dropped because a client queue was full.",
		}),
		BackpressureCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_ws_backpressure_closes_total",
			Help: "Connections closed for persistent backpressure.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mesh_sessions_created_total",
			Help: "Sessions created via the REST API.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ActiveConnections, m.Broadcasts, m.QueueDrops, m.BackpressureCloses, m.SessionsCreated)
	}
	return m
}
