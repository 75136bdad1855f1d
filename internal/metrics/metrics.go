package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response size in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 5),
	}, []string{"method", "path"})

	// gRPC метрики
	GRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of gRPC requests",
	}, []string{"method", "status"})

	GRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grpc_request_duration_seconds",
		Help:    "gRPC request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	// DB метрики
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Database query duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	DBActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_active_connections",
		Help: "Number of active database connections",
	})

	DBIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "db_idle_connections",
		Help: "Number of idle database connections",
	})

	// метрики приёма показаний
	IngestReadingsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_readings_received_total",
		Help: "Total number of readings received by the ingest workers",
	})

	IngestReadingsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_readings_processed_total",
		Help: "Total number of readings successfully stored",
	})

	IngestReadingsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_readings_failed_total",
		Help: "Total number of readings failed during processing",
	})

	IngestProcessingTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_reading_processing_seconds",
		Help:    "Histogram of reading processing durations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // от 1ms до ~16 секунд
	})

	IngestActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_active_workers",
		Help: "Current number of active ingest workers",
	})

	// метрики потока
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_clients",
		Help: "Number of connected telemetry stream clients",
	})

	StreamFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_frames_sent_total",
		Help: "Total number of telemetry envelopes written to stream clients",
	})

	// метрики получения телеметрии на портале
	FeedSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_sessions",
		Help: "Number of acquisition sessions by state",
	}, []string{"state"})

	FeedFramesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_frames_accepted_total",
		Help: "Live frames that replaced the displayed snapshot set",
	})

	FeedFramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_frames_dropped_total",
		Help: "Live frames discarded by the acquirer",
	}, []string{"reason"})

	FeedFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_fallbacks_total",
		Help: "Sessions that switched from live to synthetic snapshots",
	})

	FeedSyntheticBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_synthetic_batches_total",
		Help: "Synthetic snapshot batches produced",
	})
)
