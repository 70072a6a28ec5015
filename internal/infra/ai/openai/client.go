package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
	"github.com/bryanwahyu/leasecheck/internal/infra/ai/prompt"
	"github.com/bryanwahyu/leasecheck/internal/pkg/logger"
)

const (
	module       = "openai"
	maxTokens    = 4096
	defaultModel = "gpt-4o"
)

// Client analyzes lease pages with a vision model. It answers in the same
// page payload shape as the lease backend so the orchestrator cannot tell
// them apart.
type Client struct {
	*openai.Client
	Model  string
	Logger logger.ILogger
}

func NewClient(apiKey, model string, log logger.ILogger) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model, Logger: log}
}

// NewClientWithBaseURL points the client at a compatible endpoint.
func NewClientWithBaseURL(apiKey, baseURL, model string, log logger.ILogger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model, Logger: log}
}

func (c *Client) AnalyzePage(ctx context.Context, identity string, page lease.Page) (lease.PageResponse, error) {
	dataURL, err := pageDataURL(page)
	if err != nil {
		return lease.PageResponse{}, err
	}

	model := c.Model
	if model == "" {
		model = defaultModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		User:  identity,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt(page.Name, page.Number, page.Total)},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}
	// Reasoning models take MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return lease.PageResponse{}, c.mapError(page, err)
	}
	if len(resp.Choices) == 0 {
		return lease.PageResponse{}, &lease.RejectedError{StatusCode: http.StatusBadGateway, Message: "model returned no answer"}
	}
	return decodeContent(resp.Choices[0].Message.Content)
}

// decodeContent wraps the model's JSON as a successful page response.
func decodeContent(content string) (lease.PageResponse, error) {
	content = strings.TrimSpace(content)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return lease.PageResponse{}, &lease.RejectedError{
			StatusCode: http.StatusBadGateway,
			Message:    "model returned invalid JSON",
			Err:        err,
		}
	}
	return lease.DecodePageResponse([]byte(`{"success":true,"data":` + content + `}`))
}

func (c *Client) mapError(page lease.Page, err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("failed to create chat completion: %w", err)
	}
	c.Logger.Warn(module, "Vision request refused", map[string]interface{}{
		"page":   page.Name,
		"status": apiErr.HTTPStatusCode,
		"error":  apiErr.Message,
	})
	if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &lease.RejectedError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    "AI quota exceeded, please try again later",
			Err:        fmt.Errorf("%w: %v", lease.ErrQuotaExceeded, apiErr),
		}
	}
	if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
		return &lease.RejectedError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: apiErr}
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}

func pageDataURL(p lease.Page) (string, error) {
	if p.Open == nil {
		return "", fmt.Errorf("page %q has no content", p.Name)
	}
	rc, err := p.Open()
	if err != nil {
		return "", fmt.Errorf("open page %q: %w", p.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, lease.MaxPageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read page %q: %w", p.Name, err)
	}
	if int64(len(data)) > lease.MaxPageBytes {
		return "", fmt.Errorf("page %q: %w", p.Name, lease.ErrPageTooLarge)
	}
	ct := p.ContentType
	if ct == "" {
		ct = mimetype.Detect(data).String()
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
