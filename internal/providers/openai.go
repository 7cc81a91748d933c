package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default chat-completions endpoints for OpenAI-compatible providers.
const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultDeepSeekURL = "https://api.deepseek.com/chat/completions"
	defaultLlamaURL    = "https://api.together.xyz/v1/chat/completions"
)

// OpenAI implements the Generator interface for OpenAI's chat completions
// API and the OpenAI-compatible endpoints served by DeepSeek and Together.
type OpenAI struct {
	name      string
	apiKey    string
	model     string
	baseURL   string
	reasoning bool
	client    *http.Client
}

// NewOpenAICompatible creates a chat-completions client for info.
func NewOpenAICompatible(info ModelInfo, apiKey string) *OpenAI {
	var fallback string
	switch info.Provider {
	case ProviderDeepSeek:
		fallback = defaultDeepSeekURL
	case ProviderLlama:
		fallback = defaultLlamaURL
	default:
		fallback = defaultOpenAIURL
	}
	return &OpenAI{
		name:      info.Provider,
		apiKey:    apiKey,
		model:     info.APIModel,
		baseURL:   normalizeChatURL(baseURLOverride(info.Provider, fallback)),
		reasoning: info.Reasoning,
		client:    &http.Client{Timeout: 600 * time.Second},
	}
}

// normalizeChatURL accepts either a server root, a /v1 root, or the full
// chat-completions endpoint and returns the full endpoint.
func normalizeChatURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var messages []openaiMessage
	if req.SystemPrompt != "" {
		role := "system"
		if o.reasoning && o.name == ProviderOpenAI {
			role = "developer"
		}
		messages = append(messages, openaiMessage{Role: role, Content: req.SystemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.UserPrompt})

	body := openaiRequest{
		Model:    o.model,
		Messages: messages,
	}
	// OpenAI reasoning models reject max_tokens and temperature.
	if o.reasoning && o.name == ProviderOpenAI {
		body.MaxCompletionTokens = maxTokens
	} else {
		body.MaxTokens = maxTokens
		if req.Temperature > 0 && !o.reasoning {
			body.Temperature = &req.Temperature
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp Response
	err = retryWithBackoff(ctx, 3, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if err := checkStatus(httpResp.StatusCode, respBody); err != nil {
			return err
		}

		var result openaiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		content := stripThinking(result.Choices[0].Message.Content)
		if content == "" {
			return fmt.Errorf("empty text content in API response")
		}

		resp = Response{
			Content:    content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})

	return resp, err
}

// stripThinking removes a leading <think>...</think> block that some
// open-weight reasoning models emit inline with the answer.
func stripThinking(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "<think>") {
		return trimmed
	}
	end := strings.Index(trimmed, "</think>")
	if end < 0 {
		return trimmed
	}
	return strings.TrimSpace(trimmed[end+len("</think>"):])
}

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}
