// Package ingest fills the vector and graph stores the analyst reads from.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/mikeboe/research-analyst/pkg/vectorstore"
)

// TextsEmbedder embeds a batch of texts, preserving order.
type TextsEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentWriter persists embedded chunks.
type DocumentWriter interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
}

// Indexer splits text into chunks, embeds them and writes them to the vector store.
type Indexer struct {
	Store    DocumentWriter
	Embedder TextsEmbedder
	Splitter textsplitter.TextSplitter
	Logger   *slog.Logger
}

// NewIndexer uses a recursive character splitter with the given chunk size and overlap.
func NewIndexer(store DocumentWriter, embedder TextsEmbedder, chunkSize, chunkOverlap int) *Indexer {
	return &Indexer{
		Store:    store,
		Embedder: embedder,
		Splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		Logger: slog.Default(),
	}
}

// IndexText stores text under source and returns the number of chunks written.
func (ix *Indexer) IndexText(ctx context.Context, source, title, text string) (int, error) {
	chunks, err := ix.Splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("failed to split text: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := ix.Embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vectorstore.Document{
			Content: chunk,
			Metadata: map[string]interface{}{
				"source": source,
				"title":  title,
				"chunk":  i,
			},
			Embedding: vectors[i],
		}
	}

	if err := ix.Store.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to add documents to vector store: %w", err)
	}

	ix.Logger.Info("Indexed source", "source", source, "chunks", len(docs))
	return len(docs), nil
}
