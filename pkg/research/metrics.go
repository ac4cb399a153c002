package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// passDecisions counts gating outcomes. Labels: decision
	passDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "research_analyst",
		Subsystem: "pipeline",
		Name:      "decisions_total",
		Help:      "Gating decisions per analysis pass",
	}, []string{"decision"})

	// passLatency measures one retrieval + fusion pass. Labels: status (ok, error)
	passLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "research_analyst",
		Subsystem: "pipeline",
		Name:      "pass_seconds",
		Help:      "Latency of a single analysis pass",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})

	// graphTriples tracks triples gathered per pass before the context cap.
	graphTriples = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "research_analyst",
		Subsystem: "pipeline",
		Name:      "graph_triples",
		Help:      "Graph triples gathered per analysis pass",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	// acquisitions counts acquisition rounds. Labels: status (ok, error, empty)
	acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "research_analyst",
		Subsystem: "pipeline",
		Name:      "acquisitions_total",
		Help:      "Evidence acquisition rounds triggered by need_more_info",
	}, []string{"status"})
)
