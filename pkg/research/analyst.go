package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikeboe/research-analyst/pkg/anchors"
	"github.com/mikeboe/research-analyst/pkg/fusion"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
)

// ErrEmptyQuery is returned by Run for a blank query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Acquirer gathers and indexes fresh evidence for a query.
// It returns the number of chunks added to the vector store.
type Acquirer interface {
	Acquire(ctx context.Context, query string) (int, error)
}

// Analyst drives one query through retrieval, gating and synthesis.
type Analyst struct {
	Vector        retrieval.VectorSearcher
	Graph         retrieval.GraphQuerier
	Summarizer    Summarizer // optional
	Acquirer      Acquirer   // optional
	Engine        *fusion.Engine
	Options       Options
	Logger        *slog.Logger
	OnStateUpdate func(state ResearchState)
}

// NewAnalyst wires the pipeline. summarizer may be nil, in which case Run stops after gating.
func NewAnalyst(vector retrieval.VectorSearcher, graph retrieval.GraphQuerier, summarizer Summarizer, thresholds fusion.Thresholds, opts Options) *Analyst {
	return &Analyst{
		Vector:     vector,
		Graph:      graph,
		Summarizer: summarizer,
		Engine:     fusion.NewEngine(thresholds),
		Options:    opts,
		Logger:     slog.Default(),
	}
}

// Run executes the pipeline for query and returns the final state.
// Adapter errors are returned as-is alongside the partial state; need_more_info is not an error.
func (a *Analyst) Run(ctx context.Context, query string) (*ResearchState, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	state := NewState(query)
	a.Logger.Info("Starting analysis", "query", query)

	maxPasses := a.Options.MaxPasses
	if maxPasses < 1 || a.Acquirer == nil {
		maxPasses = 1
	}

	for pass := 1; pass <= maxPasses; pass++ {
		state.beginPass(pass)

		start := time.Now()
		err := a.Analyze(ctx, state)
		if err != nil {
			passLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
			return state, err
		}
		passLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		passDecisions.WithLabelValues(string(state.AnalysisDecision)).Inc()
		a.notify(state)

		a.Logger.Info("Analysis pass complete",
			"pass", pass,
			"decision", state.AnalysisDecision,
			"vector_hits", len(state.VectorResults),
			"graph_hits", len(state.GraphResults),
			"avg_score", state.AvgScore,
			"reason", state.Reason)

		if state.Ready() || pass == maxPasses {
			break
		}

		added, err := a.Acquirer.Acquire(ctx, query)
		if err != nil {
			acquisitions.WithLabelValues("error").Inc()
			return state, fmt.Errorf("acquisition failed: %w", err)
		}
		if added == 0 {
			acquisitions.WithLabelValues("empty").Inc()
			a.Logger.Info("Acquisition found nothing new, stopping", "pass", pass)
			break
		}
		acquisitions.WithLabelValues("ok").Inc()
		a.Logger.Info("Acquired new evidence", "chunks", added)
	}

	if !state.Ready() || a.Summarizer == nil {
		return state, nil
	}

	out, err := a.Summarizer.Summarize(ctx, state.Query, state.AssembledContext)
	if err != nil {
		return state, fmt.Errorf("synthesis failed: %w", err)
	}
	state.SynthesisOutput = out
	a.notify(state)

	a.Logger.Info("Synthesis complete", "length", len(out))
	return state, nil
}

// Analyze runs one retrieval + gating pass and writes the outcome into state.
// Graph retrieval is skipped entirely when the vector store returns nothing.
func (a *Analyst) Analyze(ctx context.Context, state *ResearchState) error {
	topK := a.Options.TopK
	if topK <= 0 {
		topK = DefaultOptions().TopK
	}

	hits, err := a.Vector.Search(ctx, state.Query, topK)
	if err != nil {
		return fmt.Errorf("vector retrieval: %w", err)
	}
	if err := retrieval.ValidateHits(hits); err != nil {
		return err
	}
	state.VectorResults = hits

	if len(hits) == 0 {
		state.apply(a.Engine.Evaluate(nil, nil))
		return nil
	}

	tokens := anchors.Extract(hits, a.Options.TokensPerHit)
	triples, err := anchors.Traverse(ctx, a.Graph, tokens, a.Options.GraphWorkers)
	if err != nil {
		return fmt.Errorf("graph retrieval: %w", err)
	}
	if err := retrieval.ValidateTriples(triples); err != nil {
		return err
	}
	state.GraphResults = triples
	graphTriples.Observe(float64(len(triples)))

	state.apply(a.Engine.Evaluate(hits, triples))
	return nil
}

func (a *Analyst) notify(state *ResearchState) {
	if a.OnStateUpdate != nil {
		a.OnStateUpdate(*state)
	}
}
