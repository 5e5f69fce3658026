package rpcserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the per-process counters/histograms spec.md §9 calls out
// as implementation-defined observability: call counts by outcome and
// the queueing-delay distribution that Config.MaxQueueingDelay guards
// against. The teacher's go.mod already pulls in client_golang; nothing
// in the retained teacher source exercised it, so this is new wiring
// rather than an adaptation of an existing metrics site.
var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flare",
		Subsystem: "rpcserver",
		Name:      "calls_total",
		Help:      "RPC calls dispatched by a Connection, labeled by outcome.",
	}, []string{"outcome"})

	queueingDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flare",
		Subsystem: "rpcserver",
		Name:      "queueing_delay_seconds",
		Help:      "Time a fast call spent queued between receive and dispatch.",
		Buckets:   prometheus.DefBuckets,
	})

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flare",
		Subsystem: "rpcserver",
		Name:      "in_flight_calls",
		Help:      "Calls currently dispatched (goroutine running) across all connections.",
	})
)

func (o HandlerOutcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Completed:
		return "completed"
	case Overloaded:
		return "overloaded"
	case Dropped:
		return "dropped"
	case Corrupted:
		return "corrupted"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

func observeOutcome(o HandlerOutcome) {
	callsTotal.WithLabelValues(o.String()).Inc()
}
