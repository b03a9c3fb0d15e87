package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/pkg/config"
)

func completionBody(content, finishReason, refusal string) string {
	message := map[string]any{"role": "assistant", "content": content}
	if refusal != "" {
		message["refusal"] = refusal
	}
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{
			{"index": 0, "message": message, "finish_reason": finishReason},
		},
		"usage": map[string]int{"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&config.OpenAIConfig{
		APIKey:       "test-key",
		Model:        "gpt-4o-mini",
		BaseURL:      srv.URL + "/v1",
		RateLimitRPM: 0,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
	})
	require.NoError(t, err)
	client.retry.InitialDelay = time.Millisecond
	client.retry.MaxDelay = 5 * time.Millisecond
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(&config.OpenAIConfig{Model: "gpt-4o-mini"})
	require.Error(t, err)

	_, err = NewClient(nil)
	require.Error(t, err)
}

func TestComplete_Success(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("  Your hemoglobin A1c has been rising.  ", "stop", "")))
	})

	resp, err := client.Complete(context.Background(), providers.ModelRequest{
		Prompt:      "Explain this trend.",
		MaxTokens:   300,
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "Your hemoglobin A1c has been rising.", resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.EqualValues(t, 300, captured["max_tokens"])
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	user := messages[1].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, providers.SafetyPreamble, system["content"])
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "Explain this trend.", user["content"])
}

func TestComplete_CustomPreamble(t *testing.T) {
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(completionBody("ok", "stop", "")))
	})

	_, err := client.Complete(context.Background(), providers.ModelRequest{
		Prompt:         "p",
		SystemPreamble: "Be brief.",
	})
	require.NoError(t, err)
	messages := captured["messages"].([]any)
	assert.Equal(t, "Be brief.", messages[0].(map[string]any)["content"])
}

func TestComplete_DeclinedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"content filter finish", completionBody("", "content_filter", "")},
		{"refusal", completionBody("", "stop", "I can't help with that.")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Complete(context.Background(), providers.ModelRequest{Prompt: "p"})
			require.Error(t, err)
			assert.ErrorIs(t, err, providers.ErrModelDeclined)
			assert.NotErrorIs(t, err, providers.ErrModelUnavailable)
		})
	}
}

func TestComplete_ContentPolicyErrorIsDeclined(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"filtered","type":"invalid_request_error","code":"content_filter"}}`))
	})

	_, err := client.Complete(context.Background(), providers.ModelRequest{Prompt: "p"})
	assert.ErrorIs(t, err, providers.ErrModelDeclined)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error","code":null}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody("recovered", "stop", "")))
	})

	resp, err := client.Complete(context.Background(), providers.ModelRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestComplete_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := client.Complete(context.Background(), providers.ModelRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrModelUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_ExhaustedRetriesAreUnavailable(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Complete(context.Background(), providers.ModelRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrModelUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_EmptyContentIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionBody("   ", "stop", "")))
	})

	_, err := client.Complete(context.Background(), providers.ModelRequest{Prompt: "p"})
	assert.ErrorIs(t, err, providers.ErrModelUnavailable)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(0, 0), "zero rpm disables limiting")

	l := newLimiter(60, 0)
	require.NotNil(t, l)
	assert.Equal(t, defaultBurst, l.Burst())
	assert.InDelta(t, 1.0, float64(l.Limit()), 1e-9)

	l = newLimiter(120, 10)
	assert.Equal(t, 10, l.Burst())
	assert.InDelta(t, 2.0, float64(l.Limit()), 1e-9)
}
