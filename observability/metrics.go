package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "charity_chat"

// Metrics groups every collector exposed on /metrics.
// Each instance owns its registry so tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesPersisted prometheus.Counter
	MessagesRejected  *prometheus.CounterVec
	EventsDelivered   *prometheus.CounterVec
	DeliveryFailures  prometheus.Counter
	ActiveConnections prometheus.Gauge
	RoomMemberships   prometheus.Gauge
	ChatsCreated      prometheus.Counter
	WorkerRestarts    *prometheus.CounterVec
	ChannelUsage      *prometheus.GaugeVec
	ProcessCPU        prometheus.Gauge
	ProcessRSS        prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_persisted_total",
			Help: "Messages appended to the message store.",
		}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_rejected_total",
			Help: "Send attempts refused, by error code.",
		}, []string{"code"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_delivered_total",
			Help: "Realtime events pushed to room connections, by event name.",
		}, []string{"event"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_failures_total",
			Help: "Realtime deliveries that failed or timed out.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_connections",
			Help: "Open realtime connections.",
		}),
		RoomMemberships: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "room_memberships",
			Help: "Connection/room memberships currently held by the registry.",
		}),
		ChatsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "chats_created_total",
			Help: "Chats created (existing pairs are not counted).",
		}),
		WorkerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "worker_restarts_total",
			Help: "Supervised workers restarted after a panic.",
		}, []string{"worker"}),
		ChannelUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channel_usage_ratio",
			Help: "Buffered channel length divided by capacity.",
		}, []string{"channel"}),
		ProcessCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_cpu_percent",
			Help: "CPU usage of the server process.",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_rss_bytes",
			Help: "Resident memory of the server process.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "REST requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		m.MessagesPersisted, m.MessagesRejected, m.EventsDelivered, m.DeliveryFailures,
		m.ActiveConnections, m.RoomMemberships, m.ChatsCreated, m.WorkerRestarts,
		m.ChannelUsage, m.ProcessCPU, m.ProcessRSS, m.HTTPRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
