package research

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// Summarizer turns a query and its assembled evidence into research directions.
type Summarizer interface {
	Summarize(ctx context.Context, query, assembledContext string) (string, error)
}

// LLMSummarizer prompts a langchaingo model for potential research areas.
type LLMSummarizer struct {
	LLM llms.Model
}

// NewLLMSummarizer wraps llm.
func NewLLMSummarizer(llm llms.Model) *LLMSummarizer {
	return &LLMSummarizer{LLM: llm}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, query, assembledContext string) (string, error) {
	resp, err := s.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, SynthesisPrompt(query, assembledContext)),
	})
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// SynthesisPrompt builds the prompt sent to the summarizer model.
func SynthesisPrompt(query, assembledContext string) string {
	return fmt.Sprintf(`Give some potential research areas using the context below.

Query:
%s

Context:
%s`, query, assembledContext)
}
