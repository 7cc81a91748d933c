package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dshills/ai-peer-review/internal/redact"
)

// Request contains the prompts sent to a model.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response contains the raw text returned by a model.
type Response struct {
	Content    string
	TokensUsed int
}

// Generator is the provider abstraction interface.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// New creates a client for the given catalog model using apiKey.
// A missing key is reported as an authentication error so callers can
// treat it like a rejected credential.
func New(info ModelInfo, apiKey string) (Generator, error) {
	if apiKey == "" {
		return nil, &authError{message: fmt.Sprintf("no API key configured for %s", info.Service)}
	}

	switch info.Provider {
	case ProviderAnthropic:
		return NewAnthropic(info.APIModel, apiKey), nil
	case ProviderGemini:
		return NewGemini(info.APIModel, apiKey), nil
	case ProviderOpenAI, ProviderDeepSeek, ProviderLlama:
		return NewOpenAICompatible(info, apiKey), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", info.Provider)
	}
}

// baseURLOverride returns AI_PEER_REVIEW_<PROVIDER>_BASE_URL when set.
func baseURLOverride(provider, fallback string) string {
	key := "AI_PEER_REVIEW_" + strings.ToUpper(provider) + "_BASE_URL"
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// checkStatus maps a non-200 HTTP status to the typed errors the retry loop
// understands. Bodies are scrubbed of secrets before they reach error text.
func checkStatus(statusCode int, body []byte) error {
	msg := redact.Secrets(string(body))
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return &rateLimitError{}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &authError{message: msg}
	case statusCode >= 500:
		return &serverError{statusCode: statusCode, body: msg}
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, msg)
	}
}
