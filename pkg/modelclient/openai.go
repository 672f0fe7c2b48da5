package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/beargallbladder/domain-runner-sub003/internal/resilience"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// chatRequest is the request body for POST /chat/completions.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

// chatMessage represents a single message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from POST /chat/completions.
type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

// chatChoice is a single completion choice.
type chatChoice struct {
	Index   int         `json:"index"`
	Message chatMessage `json:"message"`
}

// Option configures the OpenAI-compatible client.
type Option func(*openAIClient)

// WithBaseURL overrides the default API base URL. Most chat-completions
// vendors differ only here.
func WithBaseURL(url string) Option {
	return func(c *openAIClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *openAIClient) {
		c.http = hc
	}
}

// WithMaxTokens sets the completion token cap sent with each request.
func WithMaxTokens(n int) Option {
	return func(c *openAIClient) {
		c.maxTokens = n
	}
}

type openAIClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

// NewOpenAICompatible creates a Client for any OpenAI-style
// chat-completions endpoint. OpenAI, Mistral, Deepseek, Together,
// Perplexity, Groq and XAI all speak this shape.
func NewOpenAICompatible(apiKey, model string, opts ...Option) Client {
	c := &openAIClient{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		model:   model,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *openAIClient) Call(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if c.maxTokens > 0 {
		req.MaxTokens = &c.maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", eris.Wrap(err, "modelclient: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "modelclient: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", eris.Wrap(err, "modelclient: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "modelclient: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("modelclient: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return "", statusErr
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrap(err, "modelclient: unmarshal response")
	}
	if len(result.Choices) == 0 {
		return "", eris.New("modelclient: response contained no choices")
	}

	return result.Choices[0].Message.Content, nil
}
