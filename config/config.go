// Package config loads the settings shared by all example programs: the
// GitHub Models endpoint, the token used as API key, and the model id. Values
// come from the environment, optionally seeded from a .env file.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/semkit/semkit/model/openai"
)

// DefaultBaseURL is the OpenAI-compatible inference endpoint of GitHub
// Models.
const DefaultBaseURL = "https://models.github.ai/inference"

// Config holds the endpoint settings resolved from the environment.
type Config struct {
	// GitHubToken authenticates against the GitHub Models endpoint. A
	// classic personal access token without extra scopes is sufficient.
	GitHubToken string `env:"GITHUB_TOKEN, required"`

	// BaseURL is the OpenAI-compatible endpoint to talk to.
	BaseURL string `env:"MODELS_BASE_URL, default=https://models.github.ai/inference"`

	// ModelID selects the model, publisher-qualified (e.g.
	// "openai/gpt-4.1-mini").
	ModelID string `env:"MODELS_MODEL_ID, default=openai/gpt-4.1-mini"`

	// RequestTimeout bounds a single example invocation.
	RequestTimeout time.Duration `env:"MODELS_REQUEST_TIMEOUT, default=120s"`
}

// Load reads an optional .env file from the working directory, then resolves
// the configuration from the environment.
func Load(ctx context.Context) (*Config, error) {
	// a missing .env file is fine; real env vars win either way
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &cfg, nil
}

// NewChatModel builds an OpenAI-compatible adapter pointed at the configured
// endpoint. Additional option functions run after the endpoint wiring and may
// override generation parameters.
func (c *Config) NewChatModel(optFns ...func(o *openai.Options)) *openai.Model {
	return openai.NewModel(append([]func(o *openai.Options){
		func(o *openai.Options) {
			o.Model = c.ModelID
			o.APIKey = c.GitHubToken
			o.BaseURL = c.BaseURL
		},
	}, optFns...)...)
}
