package ai

import (
	"context"
	"log"
)

// FallbackService tries a primary CompletionService and falls back to a
// secondary one when the primary fails. The retrieval result is unaffected;
// only synthesis moves between providers.
type FallbackService struct {
	primary   CompletionService
	secondary CompletionService
}

// NewFallbackService creates a CompletionService with a fallback provider
func NewFallbackService(primary, secondary CompletionService) *FallbackService {
	return &FallbackService{
		primary:   primary,
		secondary: secondary,
	}
}

// Generate implements CompletionService
func (f *FallbackService) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := f.primary.Generate(ctx, prompt)
	if err == nil {
		return text, nil
	}

	if ctx.Err() != nil {
		// Do not fall back on cancellation.
		return "", err
	}

	log.Printf("[AI] Primary provider failed, trying fallback: %v", err)
	return f.secondary.Generate(ctx, prompt)
}
