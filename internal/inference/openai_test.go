package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/enums"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient(config.InferenceConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client, server
}

func TestOpenAICompleteSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatRequest
	client, _ := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: "completion text"}},
			},
		})
	})

	out, err := client.Complete(context.Background(), "summarize this", validParams(enums.AgentCategoryResearch))
	require.NoError(t, err)
	assert.Equal(t, "completion text", out)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "mock-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
	assert.Equal(t, "summarize this", gotBody.Messages[1].Content)
	assert.False(t, gotBody.Stream)
}

func TestOpenAICompleteRateLimited(t *testing.T) {
	client, _ := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), "prompt", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAICompleteBadRequest(t *testing.T) {
	client, _ := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"unknown model"}}`, http.StatusBadRequest)
	})

	_, err := client.Complete(context.Background(), "prompt", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAICompleteUpstreamError(t *testing.T) {
	client, _ := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := client.Complete(context.Background(), "prompt", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrUpstream)
}

func TestOpenAICompleteDeadline(t *testing.T) {
	client, _ := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, "prompt", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestOpenAICompleteEmptyChoices(t *testing.T) {
	client, _ := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	})

	_, err := client.Complete(context.Background(), "prompt", validParams(enums.AgentCategoryResearch))
	require.ErrorIs(t, err, ErrUpstream)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(config.InferenceConfig{BaseURL: "https://api.openai.com/v1"})
	require.Error(t, err)
}

func TestNewClientSelectsProvider(t *testing.T) {
	mock, err := NewClient(config.InferenceConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, mock)

	openai, err := NewClient(config.InferenceConfig{
		Provider: "openai",
		BaseURL:  "https://api.openai.com/v1",
		APIKey:   "sk-test",
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, openai)

	_, err = NewClient(config.InferenceConfig{Provider: "bogus"})
	require.Error(t, err)
}
