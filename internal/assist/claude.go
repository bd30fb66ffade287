package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	generatePrompt = "You are a coding assistant on a kanban board.\n" +
		"Generate a minimal code snippet (skeleton plus doc comment) for the " +
		"following task. Return only the code, no explanation.\n\nTask description:\n"

	reviewPrompt = "You are a code reviewer on a kanban board.\n" +
		"Review the generated snippet against the task description. Return a " +
		"short list of issues, or state that there are none.\n\n"
)

// ClaudeOption configures a ClaudeAssistant.
type ClaudeOption func(*ClaudeAssistant)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(url string) ClaudeOption {
	return func(a *ClaudeAssistant) {
		a.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClaudeOption {
	return func(a *ClaudeAssistant) {
		a.client = c
	}
}

// WithModel sets the model used for both generation and review.
func WithModel(model string) ClaudeOption {
	return func(a *ClaudeAssistant) {
		a.model = model
	}
}

// ClaudeAssistant implements Generator and Reviewer over the Anthropic
// messages API.
type ClaudeAssistant struct {
	apiKey  string
	baseURL string
	client  *http.Client
	model   string
}

// NewClaudeAssistant creates an assistant backed by the Claude API.
func NewClaudeAssistant(apiKey string, opts ...ClaudeOption) *ClaudeAssistant {
	a := &ClaudeAssistant{
		apiKey:  apiKey,
		baseURL: "https://api.anthropic.com",
		client:  &http.Client{Timeout: 120 * time.Second},
		model:   "claude-sonnet-4-20250514",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate produces a code snippet for the task description.
func (a *ClaudeAssistant) Generate(ctx context.Context, description string) (string, error) {
	return a.complete(ctx, generatePrompt+description)
}

// Review produces review notes for the description and artifact.
func (a *ClaudeAssistant) Review(ctx context.Context, description, artifact string) (string, error) {
	prompt := fmt.Sprintf("%sTask description:\n%s\n\nGenerated snippet:\n%s",
		reviewPrompt, description, artifact)
	return a.complete(ctx, prompt)
}

// claudeRequest is the Anthropic API request body.
type claudeRequest struct {
	Model     string      `json:"model"`
	MaxTokens int         `json:"max_tokens"`
	Messages  []claudeMsg `json:"messages"`
}

type claudeMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the Anthropic API response body.
type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// claudeErrorResponse is used to parse API errors.
type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *ClaudeAssistant) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		Model:     a.model,
		MaxTokens: 1024,
		Messages:  []claudeMsg{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("claude: marshal request: %w", err)
	}

	url := a.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("claude: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claude: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("claude: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr claudeErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("claude: api error %d (%s): %s",
				resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return "", fmt.Errorf("claude: api error %d", resp.StatusCode)
	}

	var cr claudeResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("claude: unmarshal response: %w", err)
	}

	var out string
	for _, c := range cr.Content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("claude: empty completion (stop_reason=%s)", cr.StopReason)
	}
	return out, nil
}
