package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coutlabs/cout-backend/pkg/enums"
)

func validParams(category enums.AgentCategory) Params {
	return Params{
		SystemPrompt: "You are a helpful assistant.",
		Temperature:  0.5,
		MaxTokens:    512,
		Model:        "mock-model",
		Category:     category,
	}
}

func TestMockCompleteEcho(t *testing.T) {
	client := NewMockClient()

	out, err := client.Complete(context.Background(), "ECHO:hello", validParams(enums.AgentCategoryResearch))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestMockCompleteFail(t *testing.T) {
	client := NewMockClient()

	_, err := client.Complete(context.Background(), "FAIL:boom", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrUpstream)
}

func TestMockCompleteCategoryRouting(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	research, err := client.Complete(ctx, "tell me about compilers", validParams(enums.AgentCategoryResearch))
	require.NoError(t, err)
	marketing, err := client.Complete(ctx, "tell me about compilers", validParams(enums.AgentCategoryMarketing))
	require.NoError(t, err)

	assert.NotEqual(t, research, marketing)

	again, err := client.Complete(ctx, "something else entirely", validParams(enums.AgentCategoryResearch))
	require.NoError(t, err)
	assert.Equal(t, research, again, "mock must be deterministic per category")
}

func TestMockCompleteUnknownCategory(t *testing.T) {
	client := NewMockClient()

	out, err := client.Complete(context.Background(), "prompt", validParams("UNMAPPED"))
	require.NoError(t, err)
	assert.Equal(t, defaultCannedResponse, out)
}

func TestMockCompleteInvalidParams(t *testing.T) {
	client := NewMockClient()
	params := validParams(enums.AgentCategoryResearch)
	params.Model = ""

	_, err := client.Complete(context.Background(), "prompt", params)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMockCompleteCanceledContext(t *testing.T) {
	client := NewMockClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "prompt", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrTimeout)
}
