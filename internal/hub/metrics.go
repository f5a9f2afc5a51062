package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	framesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_routed_total",
			Help: "Inbound frames routed, by wire tag.",
		},
		[]string{"tag"},
	)

	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_dropped_total",
			Help: "Frames dropped, by reason (malformed, offline, backpressure, misdirected, no_session).",
		},
		[]string{"reason"},
	)

	fanoutDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_fanout_delivered_total",
			Help: "Chat lines delivered to room members.",
		},
	)

	notificationsPushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_notifications_pushed_total",
			Help: "Notification records pushed to live connections.",
		},
	)

	connectionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_live",
			Help: "Currently open WebSocket sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(framesRouted, framesDropped, fanoutDelivered, notificationsPushed, connectionsLive)
}
