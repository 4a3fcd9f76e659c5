package ai

import "fmt"

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini" or "ollama"

	// Gemini config
	GeminiAPIKey string

	// Ollama config
	OllamaBaseURL string // e.g., "http://127.0.0.1:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// NewCompletionService creates a CompletionService based on the config
// This is the factory function - switch AI provider by changing config.Provider
func NewCompletionService(cfg Config) (CompletionService, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiService(cfg.GeminiAPIKey), nil

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	default:
		// Prefer the local model; fall back to Gemini when it is unreachable
		// and an API key is available.
		ollama := NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
		if cfg.GeminiAPIKey != "" {
			return NewFallbackService(ollama, NewGeminiService(cfg.GeminiAPIKey)), nil
		}
		return ollama, nil
	}
}

// DynamicConfig is Config with getter-backed Ollama settings so the base URL
// and model can be updated while the service is running.
type DynamicConfig struct {
	Provider         ProviderType
	GeminiAPIKey     string
	GetOllamaBaseURL func() string
	GetOllamaModel   func() string
}

// NewCompletionServiceWithDynamicConfig is the factory variant backing the
// runtime settings API.
func NewCompletionServiceWithDynamicConfig(cfg DynamicConfig) (CompletionService, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiService(cfg.GeminiAPIKey), nil

	case ProviderOllama:
		return NewDynamicOllamaService(cfg.GetOllamaBaseURL, cfg.GetOllamaModel), nil

	default:
		ollama := NewDynamicOllamaService(cfg.GetOllamaBaseURL, cfg.GetOllamaModel)
		if cfg.GeminiAPIKey != "" {
			return NewFallbackService(ollama, NewGeminiService(cfg.GeminiAPIKey)), nil
		}
		return ollama, nil
	}
}
