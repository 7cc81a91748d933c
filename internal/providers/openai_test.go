package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(serverURL, provider string, reasoning bool) *OpenAI {
	return &OpenAI{
		name:      provider,
		apiKey:    "test-key",
		model:     "test-model",
		baseURL:   serverURL,
		reasoning: reasoning,
		client:    http.DefaultClient,
	}
}

func TestOpenAI_Generate(t *testing.T) {
	tests := map[string]struct {
		provider  string
		reasoning bool

		wantSystemRole      string
		wantMaxTokens       int
		wantCompletionLimit int
		wantTemperature     bool
	}{
		"Chat model": {
			provider: ProviderOpenAI, wantSystemRole: "system", wantMaxTokens: 10, wantTemperature: true,
		},
		"OpenAI reasoning model": {
			provider: ProviderOpenAI, reasoning: true, wantSystemRole: "developer", wantCompletionLimit: 10,
		},
		"DeepSeek reasoning model": {
			provider: ProviderDeepSeek, reasoning: true, wantSystemRole: "system", wantMaxTokens: 10,
		},
		"Llama chat model": {
			provider: ProviderLlama, wantSystemRole: "system", wantMaxTokens: 10, wantTemperature: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var got openaiRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

				resp := openaiResponse{
					Choices: []openaiChoice{
						{Message: openaiMessage{Role: "assistant", Content: "A fine review."}},
					},
					Usage: openaiUsage{TotalTokens: 50},
				}
				_ = json.NewEncoder(w).Encode(resp)
			}))
			defer server.Close()

			o := newTestOpenAI(server.URL, tc.provider, tc.reasoning)
			resp, err := o.Generate(context.Background(), Request{
				SystemPrompt: "system",
				UserPrompt:   "user",
				MaxTokens:    10,
				Temperature:  0.5,
			})
			require.NoError(t, err)
			assert.Equal(t, "A fine review.", resp.Content)
			assert.Equal(t, 50, resp.TokensUsed)

			require.Len(t, got.Messages, 2)
			assert.Equal(t, tc.wantSystemRole, got.Messages[0].Role)
			assert.Equal(t, "user", got.Messages[1].Role)
			assert.Equal(t, tc.wantMaxTokens, got.MaxTokens)
			assert.Equal(t, tc.wantCompletionLimit, got.MaxCompletionTokens)
			assert.Equal(t, tc.wantTemperature, got.Temperature != nil)
		})
	}
}

func TestOpenAI_RateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			return
		}
		resp := openaiResponse{
			Choices: []openaiChoice{
				{Message: openaiMessage{Role: "assistant", Content: "ok"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	o := newTestOpenAI(server.URL, ProviderOpenAI, false)
	resp, err := o.Generate(context.Background(), Request{UserPrompt: "test"})
	require.NoError(t, err, "Generate should succeed after retries")
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, attempts, "expected 3 attempts (2 retries)")
}

func TestOpenAI_StripsThinking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openaiResponse{
			Choices: []openaiChoice{
				{Message: openaiMessage{Content: "<think>internal notes</think>\n\nFinal review."}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	o := newTestOpenAI(server.URL, ProviderDeepSeek, true)
	resp, err := o.Generate(context.Background(), Request{UserPrompt: "test"})
	require.NoError(t, err)
	assert.Equal(t, "Final review.", resp.Content)
}

func TestOpenAI_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	o := newTestOpenAI(server.URL, ProviderOpenAI, false)
	_, err := o.Generate(context.Background(), Request{UserPrompt: "test"})
	require.Error(t, err)
}

func TestOpenAI_ErrorBodyRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad key sk-abcdefghijklmnopqrstuvwxyz0123"}`))
	}))
	defer server.Close()

	o := newTestOpenAI(server.URL, ProviderOpenAI, false)
	_, err := o.Generate(context.Background(), Request{UserPrompt: "test"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "sk-abcdefghijklmnopqrstuvwxyz0123")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestNormalizeChatURL(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"Full endpoint":  {in: "https://api.example.com/v1/chat/completions", want: "https://api.example.com/v1/chat/completions"},
		"V1 root":        {in: "https://api.example.com/v1", want: "https://api.example.com/v1/chat/completions"},
		"Trailing slash": {in: "http://localhost:8080/v1/", want: "http://localhost:8080/v1/chat/completions"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, normalizeChatURL(tc.in))
		})
	}
}
