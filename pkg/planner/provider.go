package planner

import (
	"context"
	"fmt"
)

// Generator is the capability interface over the external completion
// provider. It isolates the planner's parsing and validation logic
// from any concrete provider, which is nondeterministic by nature.
type Generator interface {
	// Generate returns the provider's raw textual completion
	Generate(ctx context.Context, system, prompt string) (string, error)

	// Provider returns the provider name
	Provider() string
}

// Profile selects and authenticates a completion provider.
type Profile struct {
	Provider string // anthropic, openai
	Model    string
	APIKey   string
}

// NewGenerator creates a generator for the given profile.
func NewGenerator(profile Profile) (Generator, error) {
	if profile.APIKey == "" {
		return nil, fmt.Errorf("api key is required for provider %s", profile.Provider)
	}

	switch profile.Provider {
	case "anthropic":
		return NewAnthropicGenerator(profile.APIKey, profile.Model), nil
	case "openai":
		return NewOpenAIGenerator(profile.APIKey, profile.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
