package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photopipe",
		Name:      "photos_ingested_total",
		Help:      "Total number of photos run through face ingestion",
	})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photopipe",
		Name:      "faces_detected_total",
		Help:      "Total number of faces persisted from detection results",
	})

	FacesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photopipe",
		Name:      "faces_matched_total",
		Help:      "Total number of faces attached to an existing person",
	})

	PeopleCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photopipe",
		Name:      "people_created_total",
		Help:      "Total number of people created by the clustering pipeline",
	})

	ThumbnailsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photopipe",
		Name:      "thumbnails_generated_total",
		Help:      "Total number of derivative images written",
	}, []string{"size"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photopipe",
		Name:      "job_duration_seconds",
		Help:      "Duration of background jobs",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"job"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photopipe",
		Name:      "queue_depth",
		Help:      "Number of pending photo jobs in the work queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photopipe",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photopipe",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
