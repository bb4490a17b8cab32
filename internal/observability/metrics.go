package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch_client"

var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "realtime_events_received_total", Help: "Realtime events decoded, by type"},
		[]string{"type"},
	)
	EventsMalformed  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "realtime_events_malformed_total", Help: "Inbound frames that failed to decode"})
	OutboundDropped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "realtime_outbound_dropped_total", Help: "Outbound messages dropped because the socket was not open"})
	ChannelReconnect = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "realtime_reconnects_total", Help: "Reconnect attempts after a dropped connection"})
	ChannelConnected = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_connected", Help: "1 while the realtime channel is connected"})

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_status_transitions_total", Help: "Booking status changes applied locally, by resulting status"},
		[]string{"status"},
	)
	RequestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "driver_request_queue_depth", Help: "Pending booking requests offered to this driver"})

	RouteFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_fetches_total", Help: "Directions lookups, by result"},
		[]string{"result"},
	)
	GeocodeLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "geocode_lookups_total", Help: "Reverse geocoding lookups, by result"},
		[]string{"result"},
	)
	LocationSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_samples_total", Help: "Location tracker samples, by result"},
		[]string{"result"},
	)

	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "relay_messages_total", Help: "Location records read by the relay, by result"},
		[]string{"result"},
	)

	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "backend_requests_total", Help: "Backend REST calls"},
		[]string{"method", "path", "status"},
	)
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend REST call latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled by the status server"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Status server request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
