package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NoticesPushed counts events accepted into the queue.
	NoticesPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aisen_notices_pushed_total",
			Help: "Total number of notices accepted into the delivery queue",
		},
	)

	// NoticesDelivered counts events accepted by the backend.
	NoticesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aisen_notices_delivered_total",
			Help: "Total number of notices delivered",
		},
	)

	// NoticesRetried counts scheduled retries.
	NoticesRetried = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aisen_notices_retried_total",
			Help: "Total number of delivery retries scheduled",
		},
	)

	// NoticesDropped counts events dropped, by reason.
	NoticesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisen_notices_dropped_total",
			Help: "Total number of notices dropped without delivery",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks queued plus retrying notices.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aisen_queue_depth",
			Help: "Notices waiting for delivery, including scheduled retries",
		},
	)

	// DeliveryLatency tracks backend delivery latency.
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aisen_delivery_latency_seconds",
			Help:    "Backend delivery latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)
