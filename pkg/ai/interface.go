package ai

import "context"

// CompletionService is the interface for the text-completion provider used to
// synthesize answers from retrieved passages. Implement this interface to add
// new providers (Gemini, Ollama, OpenAI, etc.)
type CompletionService interface {
	// Generate sends a prompt and returns the model's text response.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
