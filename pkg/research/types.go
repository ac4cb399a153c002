package research

import (
	"github.com/mikeboe/research-analyst/pkg/fusion"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
)

// Options holds the driver's retrieval knobs
type Options struct {
	TopK         int `json:"top_k"`          // vector hits requested per pass
	TokensPerHit int `json:"tokens_per_hit"` // anchor tokens taken from each hit
	GraphWorkers int `json:"graph_workers"`  // concurrent graph lookups; <= 1 is sequential
	MaxPasses    int `json:"max_passes"`     // analysis passes when an Acquirer is configured
}

// DefaultOptions mirrors the stock pipeline: k=10, 5 anchors per hit, one pass.
func DefaultOptions() Options {
	return Options{
		TopK:         10,
		TokensPerHit: 5,
		GraphWorkers: 1,
		MaxPasses:    1,
	}
}

// ResearchState is the record threaded through one query's pipeline run.
// It is owned by a single run and must not be shared across queries.
type ResearchState struct {
	Query            string                `json:"query"`
	Pass             int                   `json:"pass"`
	VectorResults    []retrieval.VectorHit `json:"vector_results"`
	GraphResults     []retrieval.Triple    `json:"graph_results"`
	AnalysisDecision fusion.Decision       `json:"analysis_decision,omitempty"`
	AvgScore         float64               `json:"avg_score"`
	Reason           string                `json:"reason,omitempty"`
	AssembledContext string                `json:"assembled_context,omitempty"`
	HasContext       bool                  `json:"has_context"`
	SynthesisOutput  string                `json:"synthesis_output,omitempty"`
}

// NewState starts a state for query.
func NewState(query string) *ResearchState {
	return &ResearchState{Query: query}
}

// Ready reports whether the last pass gated the evidence as sufficient.
func (s *ResearchState) Ready() bool {
	return s.AnalysisDecision == fusion.DecisionReady
}

// beginPass clears everything derived from a previous pass. Query is kept.
func (s *ResearchState) beginPass(pass int) {
	*s = ResearchState{Query: s.Query, Pass: pass}
}

func (s *ResearchState) apply(a fusion.Assessment) {
	s.AnalysisDecision = a.Decision
	s.AvgScore = a.AvgScore
	s.Reason = a.Reason
	s.AssembledContext = a.Context
	s.HasContext = a.HasContext
}
