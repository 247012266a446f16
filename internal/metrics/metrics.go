package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coderoom_executions_total",
			Help: "Total number of code executions",
		},
		[]string{"language", "status"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coderoom_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"language"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderoom_queue_depth",
			Help: "Current number of jobs in the execution queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderoom_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	Rooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderoom_rooms",
			Help: "Number of live rooms",
		},
	)

	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coderoom_connections",
			Help: "Number of open websocket connections",
		},
	)

	RoomsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderoom_rooms_swept_total",
			Help: "Total number of idle rooms evicted by the reaper",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coderoom_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
