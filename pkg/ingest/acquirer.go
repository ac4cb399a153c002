package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mikeboe/research-analyst/pkg/research/tools"
)

// PageFetcher searches the web and returns readable page text.
type PageFetcher interface {
	FetchQuery(ctx context.Context, query string, n int) ([]tools.Page, error)
}

// PaperSearcher returns paper abstracts for a query.
type PaperSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]tools.SearchResult, error)
}

// SourceCounter reports how many chunks the vector store already holds for a source.
type SourceCounter interface {
	CountBySource(ctx context.Context, source string) (int, error)
}

// WebAcquirer gathers fresh evidence from the web (and optionally arXiv) and indexes it.
// Sources already in the store, or being indexed by another run, are skipped.
// A source whose indexing fails is released so a later run can retry it.
type WebAcquirer struct {
	Web     PageFetcher
	Papers  PaperSearcher // optional
	Indexed SourceCounter // optional
	Indexer *Indexer
	Results int
	Logger  *slog.Logger

	mu        sync.Mutex
	processed map[string]bool
}

// NewWebAcquirer fetches up to results pages per query.
func NewWebAcquirer(web PageFetcher, indexer *Indexer, results int) *WebAcquirer {
	return &WebAcquirer{
		Web:       web,
		Indexer:   indexer,
		Results:   results,
		Logger:    slog.Default(),
		processed: make(map[string]bool),
	}
}

// Acquire indexes new pages and abstracts for query and returns the number of chunks added.
func (w *WebAcquirer) Acquire(ctx context.Context, query string) (int, error) {
	pages, err := w.Web.FetchQuery(ctx, query, w.Results)
	if err != nil {
		return 0, fmt.Errorf("web fetch failed: %w", err)
	}

	added := 0
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		n, err := w.index(ctx, p.URL, p.URL, p.Text)
		if err != nil {
			return added, err
		}
		added += n
	}

	if w.Papers != nil {
		papers, err := w.Papers.Search(ctx, query, w.Results)
		if err != nil {
			w.Logger.Warn("Paper search failed, continuing with web pages", "error", err)
		}
		for _, p := range papers {
			if p.Snippet == "" {
				continue
			}
			n, err := w.index(ctx, p.URL, p.Title, p.Title+"\n\n"+p.Snippet)
			if err != nil {
				return added, err
			}
			added += n
		}
	}

	w.Logger.Info("Acquisition complete", "query", query, "pages", len(pages), "chunks", added)
	return added, nil
}

// index writes one source unless it is claimed or already stored. It returns the chunks added.
func (w *WebAcquirer) index(ctx context.Context, source, title, text string) (int, error) {
	if !w.claim(source) {
		return 0, nil
	}

	if w.Indexed != nil {
		stored, err := w.Indexed.CountBySource(ctx, source)
		if err != nil {
			w.release(source)
			return 0, err
		}
		if stored > 0 {
			w.Logger.Debug("Source already indexed", "source", source, "chunks", stored)
			return 0, nil
		}
	}

	n, err := w.Indexer.IndexText(ctx, source, title, text)
	if err != nil {
		w.release(source)
		return 0, err
	}
	return n, nil
}

// claim marks source as processed and reports whether it was new.
func (w *WebAcquirer) claim(source string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processed == nil {
		w.processed = make(map[string]bool)
	}
	if w.processed[source] {
		return false
	}
	w.processed[source] = true
	return true
}

func (w *WebAcquirer) release(source string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processed, source)
}
