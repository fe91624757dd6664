package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterBaseURL  = "https://openrouter.ai/api/v1"
	DefaultRouterModel = "google/gemini-2.5-flash"
	openRouterTimeout  = 90 * time.Second
	maxRetries         = 3
	initialBackoff     = 500 * time.Millisecond
)

// OpenRouter generates text through the OpenRouter chat completions API.
type OpenRouter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates an OpenRouter backend.
func NewOpenRouter(apiKey, model string) *OpenRouter {
	if model == "" {
		model = DefaultRouterModel
	}
	return &OpenRouter{
		apiKey:  apiKey,
		model:   model,
		baseURL: openRouterBaseURL,
		httpClient: &http.Client{
			Timeout: openRouterTimeout,
		},
		referer: "https://github.com/kalambet/profilestack",
		title:   "profilestack",
	}
}

// NewOpenRouterWithBaseURL creates a backend pointing at a custom base URL (for testing).
func NewOpenRouterWithBaseURL(apiKey, model, baseURL string) *OpenRouter {
	c := NewOpenRouter(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *OpenRouter) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText sends prompt as a single user message. Rate-limited
// requests are retried with exponential backoff.
func (c *OpenRouter) GenerateText(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		text, err := c.doChat(ctx, body)
		if err == nil {
			return text, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", &Error{
		Provider: "openrouter",
		Message:  fmt.Sprintf("rate limited after %d retries", maxRetries),
		Err:      lastErr,
	}
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

func (c *OpenRouter) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Provider: "openrouter", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Provider: "openrouter", Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Provider: "openrouter", Message: providerMessage(resp.StatusCode, respBody)}
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &Error{Provider: "openrouter", Message: fmt.Sprintf("decoding response: %v", err), Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &Error{Provider: "openrouter", Message: "response has no choices"}
	}
	return out.Choices[0].Message.Content, nil
}

// providerMessage extracts error.message from an OpenAI-style error body,
// falling back to the raw body.
func providerMessage(status int, body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return fmt.Sprintf("unexpected status %d", status)
}
