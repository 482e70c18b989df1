// Package metrics holds the Prometheus collectors updated by the review engine.
//
//   - review_runs_total{outcome}            completed | failed | rejected | skipped
//   - review_run_duration_seconds{outcome}  wall time of one agent run
//   - review_analyst_calls_total{stage,outcome}
//   - review_cache_lookups_total{outcome}   hit | computed | skipped | failed
//   - review_limit_orders_total{side,outcome}
//   - news_items_ingested_total
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReviewRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_runs_total",
			Help: "Agent review runs by outcome",
		},
		[]string{"outcome"},
	)

	ReviewRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_run_duration_seconds",
			Help:    "Duration of one agent review run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	AnalystCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_analyst_calls_total",
			Help: "Analyst invocations by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_cache_lookups_total",
			Help: "Keyed work cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	LimitOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_limit_orders_total",
			Help: "Rebalance limit orders by side and outcome",
		},
		[]string{"side", "outcome"},
	)

	NewsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "news_items_ingested_total",
			Help: "News items stored by the RSS ingester",
		},
	)
)

var registerOnce sync.Once

// Register adds every collector to reg (the default registerer when nil).
// Calling it more than once is a no-op.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			ReviewRuns,
			ReviewRunDuration,
			AnalystCalls,
			CacheLookups,
			LimitOrders,
			NewsIngested,
		)
	})
}
