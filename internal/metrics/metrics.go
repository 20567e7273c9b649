// Package metrics exposes engine counters through the default Prometheus
// registry. Labels never carry document ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Response outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeEmpty   = "empty"
	OutcomeStale   = "stale"
	OutcomeParse   = "parse_error"
	OutcomeError   = "transport_error"
)

var (
	// documentsAttached tracks live documents.
	documentsAttached = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "margin",
		Subsystem: "engine",
		Name:      "documents_attached",
		Help:      "Number of documents currently attached",
	})

	// cyclesTotal counts debounce fires.
	// Labels: result (empty_diff, below_minimum, skipped, requested)
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "margin",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Annotation cycles by result",
	}, []string{"result"})

	// gateDecisions counts gate outcomes.
	// Labels: decision (proceed, skip)
	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "margin",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Request gate decisions",
	}, []string{"decision"})

	// responsesTotal counts resolved requests.
	// Labels: outcome (applied, empty, stale, parse_error, transport_error)
	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "margin",
		Subsystem: "requests",
		Name:      "responses_total",
		Help:      "Annotation responses by outcome",
	}, []string{"outcome"})

	// requestLatency measures transport round trips.
	// Labels: outcome
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "margin",
		Subsystem: "requests",
		Name:      "latency_seconds",
		Help:      "Annotation request latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"outcome"})

	// invalidations counts annotations removed by overlapping edits.
	invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "margin",
		Subsystem: "store",
		Name:      "invalidated_total",
		Help:      "Annotations removed because an edit overlapped them",
	})

	// queueDepth tracks dispatch queue items.
	// Labels: stage (pending, active)
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "margin",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Annotation requests waiting or running",
	}, []string{"stage"})

	// droppedAnnotations counts incoming annotations discarded before install.
	// Labels: reason (out_of_range, edited_in_flight)
	droppedAnnotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "margin",
		Subsystem: "store",
		Name:      "dropped_total",
		Help:      "Incoming annotations dropped before install",
	}, []string{"reason"})
)

// DocumentAttached increments the attached gauge.
func DocumentAttached() { documentsAttached.Inc() }

// DocumentDetached decrements the attached gauge.
func DocumentDetached() { documentsAttached.Dec() }

// Cycle records a debounce fire and what came of it.
func Cycle(result string) { cyclesTotal.WithLabelValues(result).Inc() }

// GateDecision records a gate outcome.
func GateDecision(decision string) { gateDecisions.WithLabelValues(decision).Inc() }

// Response records a resolved request and its latency.
func Response(outcome string, latency time.Duration) {
	responsesTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeStale {
		requestLatency.WithLabelValues(outcome).Observe(latency.Seconds())
	}
}

// Invalidated records annotations removed by an edit.
func Invalidated(n int) { invalidations.Add(float64(n)) }

// Dropped records incoming annotations discarded before install.
func Dropped(reason string, n int) {
	if n > 0 {
		droppedAnnotations.WithLabelValues(reason).Add(float64(n))
	}
}

// QueueDepth records how many requests are waiting and running.
func QueueDepth(pending, active int) {
	queueDepth.WithLabelValues("pending").Set(float64(pending))
	queueDepth.WithLabelValues("active").Set(float64(active))
}
