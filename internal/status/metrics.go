package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

type metrics struct {
	queueDepth prometheus.Gauge
	online     prometheus.Gauge
	clients    prometheus.Gauge
	flushes    prometheus.Counter
	flushOps   *prometheus.CounterVec
	levelUps   prometheus.Counter
	warnings   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixeltennis", Subsystem: "sync", Name: "queue_depth",
			Help: "Operations waiting in the sync queue.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixeltennis", Subsystem: "sync", Name: "online",
			Help: "1 when the remote is reachable.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pixeltennis", Subsystem: "status", Name: "clients",
			Help: "Connected WebSocket clients.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixeltennis", Subsystem: "sync", Name: "flushes_total",
			Help: "Completed queue flushes.",
		}),
		flushOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixeltennis", Subsystem: "sync", Name: "flush_ops_total",
			Help: "Queued operations sent during flushes, by result.",
		}, []string{"result"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixeltennis", Subsystem: "journal", Name: "level_ups_total",
			Help: "Level-ups recorded by this process.",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pixeltennis", Subsystem: "journal", Name: "storage_warnings_total",
			Help: "Storage pressure warnings.",
		}),
	}
	reg.MustRegister(m.queueDepth, m.online, m.clients, m.flushes, m.flushOps, m.levelUps, m.warnings)
	return m
}

func (m *metrics) observe(ev syncengine.Event) {
	switch ev.Type {
	case syncengine.EventStatus:
		if ev.Status != nil {
			m.observeStatus(*ev.Status)
		}
	case syncengine.EventFlushComplete:
		if ev.Flush == nil {
			return
		}
		m.flushes.Inc()
		m.flushOps.WithLabelValues("succeeded").Add(float64(ev.Flush.Succeeded))
		m.flushOps.WithLabelValues("failed").Add(float64(ev.Flush.Failed))
		m.queueDepth.Set(float64(ev.Flush.Remaining))
	case syncengine.EventLevelUp:
		m.levelUps.Inc()
	case syncengine.EventStorageWarning:
		m.warnings.Inc()
	}
}

func (m *metrics) observeStatus(st syncengine.Status) {
	m.queueDepth.Set(float64(st.Pending))
	if st.Online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}
