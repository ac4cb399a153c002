package fusion

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mikeboe/research-analyst/pkg/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hits(scores ...float64) []retrieval.VectorHit {
	out := make([]retrieval.VectorHit, len(scores))
	for i, s := range scores {
		out[i] = retrieval.VectorHit{Chunk: fmt.Sprintf("chunk %d text", i), Score: s}
	}
	return out
}

func triples(n int) []retrieval.Triple {
	out := make([]retrieval.Triple, n)
	for i := range out {
		out[i] = retrieval.Triple{Source: fmt.Sprintf("s%d", i), Relation: "rel", Target: fmt.Sprintf("t%d", i)}
	}
	return out
}

func TestEvaluateEmptyVector(t *testing.T) {
	e := NewEngine(DefaultThresholds())

	for _, graph := range [][]retrieval.Triple{nil, triples(3)} {
		a := e.Evaluate(nil, graph)
		assert.Equal(t, DecisionNeedMoreInfo, a.Decision)
		assert.False(t, a.HasContext)
		assert.Empty(t, a.Context)
	}
}

func TestEvaluateCountThresholdDominates(t *testing.T) {
	e := NewEngine(DefaultThresholds())

	a := e.Evaluate(hits(1.0, 1.0), triples(5))
	assert.Equal(t, DecisionNeedMoreInfo, a.Decision)
	assert.Equal(t, 1.0, a.AvgScore)
	assert.False(t, a.HasContext)
}

func TestEvaluateScoreThreshold(t *testing.T) {
	e := NewEngine(DefaultThresholds())

	a := e.Evaluate(hits(0.9, 0.9, 0.1, 0.1, 0.1), triples(5))
	assert.Equal(t, DecisionNeedMoreInfo, a.Decision)
	assert.InDelta(t, 0.42, a.AvgScore, 1e-9)
	assert.False(t, a.HasContext)
	assert.Contains(t, a.Reason, "below")
}

func TestEvaluateGraphIsNotRequired(t *testing.T) {
	e := NewEngine(DefaultThresholds())

	a := e.Evaluate(hits(0.8, 0.8, 0.8, 0.8, 0.8), nil)
	assert.Equal(t, DecisionReady, a.Decision)
	assert.True(t, a.HasContext)
	assert.Equal(t, 0, strings.Count(a.Context, "[GRAPH] "))
	assert.Equal(t, 5, strings.Count(a.Context, "[SOURCE]\n"))
}

func TestEvaluateMinGraphHitsIsInert(t *testing.T) {
	th := DefaultThresholds()
	th.MinGraphHits = 100
	strict := NewEngine(th)
	lax := NewEngine(DefaultThresholds())

	vec := hits(0.7, 0.8, 0.9)
	graph := triples(2)
	a, b := strict.Evaluate(vec, graph), lax.Evaluate(vec, graph)

	assert.Equal(t, DecisionReady, a.Decision)
	assert.Equal(t, b.Decision, a.Decision)
	assert.Equal(t, b.Context, a.Context)
}

func TestEvaluateCapsGraphBlocks(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	vec := hits(0.9, 0.8, 0.7, 0.9)
	graph := triples(15)

	a := e.Evaluate(vec, graph)
	require.Equal(t, DecisionReady, a.Decision)

	blocks := strings.Split(a.Context, "\n\n")
	require.Len(t, blocks, len(vec)+10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("[GRAPH] s%d --rel--> t%d", i, i), blocks[len(vec)+i])
	}
	assert.NotContains(t, a.Context, "s10")
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	vec := hits(0.9, 0.7, 0.65, 0.99)
	graph := triples(12)

	first := e.Evaluate(vec, graph)
	for i := 0; i < 20; i++ {
		again := e.Evaluate(vec, graph)
		require.Equal(t, first, again)
	}
}

func TestEvaluatePreservesSourceOrder(t *testing.T) {
	e := NewEngine(DefaultThresholds())
	vec := []retrieval.VectorHit{
		{Chunk: "zeta", Score: 0.7},
		{Chunk: "alpha", Score: 0.95},
		{Chunk: "mu", Score: 0.8},
	}

	a := e.Evaluate(vec, nil)
	require.True(t, a.HasContext)
	assert.Equal(t, "[SOURCE]\nzeta\n\n[SOURCE]\nalpha\n\n[SOURCE]\nmu", a.Context)
}

func TestEvaluateBoundaries(t *testing.T) {
	tests := []struct {
		name string
		vec  []retrieval.VectorHit
		want Decision
	}{
		{"min hits above score", hits(0.75, 0.75, 0.75), DecisionReady},
		{"just below score", hits(0.6, 0.6, 0.5), DecisionNeedMoreInfo},
		{"negative scores", hits(-1, -1, -1), DecisionNeedMoreInfo},
		{"single perfect hit", hits(1), DecisionNeedMoreInfo},
	}

	e := NewEngine(DefaultThresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(tt.vec, nil).Decision)
		})
	}
}

func TestEvaluateScoreEqualToThresholdIsReady(t *testing.T) {
	th := DefaultThresholds()
	th.MinAvgScore = 0.5
	e := NewEngine(th)

	assert.Equal(t, DecisionReady, e.Evaluate(hits(0.5, 0.5, 0.5), nil).Decision)
}

func TestAssembleNegativeCap(t *testing.T) {
	out := Assemble(hits(0.5), triples(3), -1)
	assert.Equal(t, "[SOURCE]\nchunk 0 text", out)
}
