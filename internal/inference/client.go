package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coutlabs/cout-backend/pkg/config"
	dbtypes "github.com/coutlabs/cout-backend/pkg/db/types"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

// Typed failures surfaced by inference providers. Callers branch on these to
// decide retry and billing behavior.
var (
	ErrTimeout       = errors.New("inference: deadline exceeded")
	ErrRateLimited   = errors.New("inference: rate limited")
	ErrInvalidConfig = errors.New("inference: invalid configuration")
	ErrUpstream      = errors.New("inference: upstream failure")
)

// Params is the per-call agent configuration handed to a provider.
type Params struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Model        string
	Category     enums.AgentCategory
}

// ParamsFromConfig builds call params from a stored agent configuration.
func ParamsFromConfig(cfg dbtypes.AgentConfig, category enums.AgentCategory) Params {
	return Params{
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Model:        cfg.Model,
		Category:     category,
	}
}

// Client produces a completion for a prompt under an agent configuration.
type Client interface {
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}

const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
)

// NewClient selects the provider implementation from configuration.
func NewClient(cfg config.InferenceConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderMock:
		return NewMockClient(), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

func validateParams(params Params) error {
	if strings.TrimSpace(params.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if params.Temperature < 0 || params.Temperature > 2 {
		return fmt.Errorf("%w: temperature out of range", ErrInvalidConfig)
	}
	if params.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive", ErrInvalidConfig)
	}
	return nil
}
