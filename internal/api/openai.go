package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sorare-coach/internal/config"
	"sorare-coach/internal/constants"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

var ErrCoachDisabled = errors.New("chat completion API key is not configured")

type OpenAIClient struct {
	apiKey string
	url    string
	model  string
	client *fasthttp.Client
}

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage ChatUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return &OpenAIClient{
		apiKey: cfg.OpenAIAPIKey,
		url:    cfg.OpenAIAPIURL,
		model:  cfg.OpenAIModel,
		client: &fasthttp.Client{
			MaxConnsPerHost:     8,
			ReadTimeout:         constants.CoachTimeout,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *OpenAIClient) Enabled() bool {
	return c.apiKey != ""
}

// Complete sends messages to the chat-completion endpoint and returns the
// first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage) (string, ChatUsage, error) {
	if !c.Enabled() {
		return "", ChatUsage{}, ErrCoachDisabled
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	if err != nil {
		return "", ChatUsage{}, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.SetBody(body)

	deadline := time.Now().Add(constants.CoachTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return "", ChatUsage{}, fmt.Errorf("chat completion request failed: %w", err)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", ChatUsage{}, fmt.Errorf("failed to decode chat response (status %d): %w", resp.StatusCode(), err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		msg := "unexpected status"
		if result.Error != nil {
			msg = result.Error.Message
		}
		return "", ChatUsage{}, fmt.Errorf("chat completion API error %d: %s", resp.StatusCode(), msg)
	}
	if len(result.Choices) == 0 {
		return "", result.Usage, fmt.Errorf("chat completion returned no choices")
	}

	return result.Choices[0].Message.Content, result.Usage, nil
}
