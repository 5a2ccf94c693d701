package infrastructure

import (
	"context"
	"fmt"

	"taiyari/internal/config"
	"taiyari/internal/interfaces"
)

// NewGenerator returns the generation client for the configured provider,
// or nil when no credentials are set. The chat path answers with its
// fallback reply while no generator is available.
func NewGenerator(ctx context.Context, cfg config.GenerationConfig) (interfaces.Generator, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}), nil
	case config.ProviderArk:
		chatModel, err := NewArkChatModel(ctx, ArkConfig{
			APIKey:    cfg.APIKey,
			AccessKey: cfg.ArkAccessKey,
			SecretKey: cfg.ArkSecretKey,
			BaseURL:   cfg.BaseURL,
			Region:    cfg.ArkRegion,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init ark chat model: %w", err)
		}
		return NewEinoGenerator(chatModel), nil
	}
	return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
}
