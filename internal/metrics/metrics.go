package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// escrow operation outcomes, result is "ok" or the error kind
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_operations_total",
			Help: "Total number of escrow operations by outcome",
		},
		[]string{"op", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_operation_duration_seconds",
			Help:    "Escrow operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
		},
		[]string{"op"},
	)

	ValueLocked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escrow_value_locked",
			Help: "Value currently held in custody across all projects, smallest unit",
		},
	)

	ProjectsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escrow_projects_total",
			Help: "Number of projects ever created",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_events_published_total",
			Help: "Lifecycle notifications published on the event bus",
		},
		[]string{"event"},
	)
)

func ObserveOperation(op string, result string, start time.Time) {
	OperationsTotal.WithLabelValues(op, result).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func SetValueLocked(total *big.Int) {
	f, _ := new(big.Float).SetInt(total).Float64()
	ValueLocked.Set(f)
}
