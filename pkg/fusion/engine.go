// Package fusion decides whether retrieved evidence is sufficient and
// serializes it into a context bundle. It performs no I/O.
package fusion

import (
	"fmt"
	"strings"

	"github.com/mikeboe/research-analyst/pkg/retrieval"
)

// Decision is the sufficiency verdict for one pipeline pass.
type Decision string

const (
	DecisionReady        Decision = "ready"
	DecisionNeedMoreInfo Decision = "need_more_info"
)

// Thresholds are the gating knobs.
type Thresholds struct {
	MinVectorHits  int     `json:"min_vector_hits"`
	MinAvgScore    float64 `json:"min_avg_score"`
	MinGraphHits   int     `json:"min_graph_hits"` // inert: graph evidence never blocks readiness
	MaxGraphBlocks int     `json:"max_graph_blocks"`
}

// DefaultThresholds returns the stock gating policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinVectorHits:  3,
		MinAvgScore:    0.6,
		MinGraphHits:   1,
		MaxGraphBlocks: 10,
	}
}

// Assessment is the engine output. Context is only meaningful when HasContext is true.
type Assessment struct {
	Decision   Decision `json:"decision"`
	AvgScore   float64  `json:"avg_score"`
	Reason     string   `json:"reason"`
	Context    string   `json:"context,omitempty"`
	HasContext bool     `json:"has_context"`
}

// Engine applies a fixed set of thresholds.
type Engine struct {
	thresholds Thresholds
}

// NewEngine returns an engine for t.
func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// Thresholds returns the policy the engine was built with.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate runs the gating rules in order; the first match wins.
func (e *Engine) Evaluate(vector []retrieval.VectorHit, graph []retrieval.Triple) Assessment {
	t := e.thresholds

	if len(vector) == 0 {
		return Assessment{
			Decision: DecisionNeedMoreInfo,
			Reason:   "no vector hits",
		}
	}

	avg := meanScore(vector)

	if len(vector) < t.MinVectorHits {
		return Assessment{
			Decision: DecisionNeedMoreInfo,
			AvgScore: avg,
			Reason:   fmt.Sprintf("%d vector hits, need at least %d", len(vector), t.MinVectorHits),
		}
	}

	if avg < t.MinAvgScore {
		return Assessment{
			Decision: DecisionNeedMoreInfo,
			AvgScore: avg,
			Reason:   fmt.Sprintf("average score %.4f below %.4f", avg, t.MinAvgScore),
		}
	}

	reason := fmt.Sprintf("%d vector hits, average score %.4f", len(vector), avg)
	if len(graph) < t.MinGraphHits {
		reason += fmt.Sprintf(", %d graph hits (below %d, not required)", len(graph), t.MinGraphHits)
	} else {
		reason += fmt.Sprintf(", %d graph hits", len(graph))
	}

	return Assessment{
		Decision:   DecisionReady,
		AvgScore:   avg,
		Reason:     reason,
		Context:    Assemble(vector, graph, t.MaxGraphBlocks),
		HasContext: true,
	}
}

// Assemble serializes one source block per vector hit followed by at most
// maxGraph graph blocks, separated by blank lines.
func Assemble(vector []retrieval.VectorHit, graph []retrieval.Triple, maxGraph int) string {
	if maxGraph < 0 {
		maxGraph = 0
	}
	if len(graph) > maxGraph {
		graph = graph[:maxGraph]
	}

	blocks := make([]string, 0, len(vector)+len(graph))
	for _, v := range vector {
		blocks = append(blocks, SourceBlock(v))
	}
	for _, g := range graph {
		blocks = append(blocks, GraphBlock(g))
	}
	return strings.Join(blocks, "\n\n")
}

// SourceBlock renders a vector hit verbatim under a [SOURCE] tag.
func SourceBlock(v retrieval.VectorHit) string {
	return "[SOURCE]\n" + v.Chunk
}

// GraphBlock renders a triple as "[GRAPH] source --relation--> target".
func GraphBlock(g retrieval.Triple) string {
	return fmt.Sprintf("[GRAPH] %s --%s--> %s", g.Source, g.Relation, g.Target)
}

func meanScore(hits []retrieval.VectorHit) float64 {
	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	return sum / float64(len(hits))
}
