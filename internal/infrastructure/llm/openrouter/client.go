package openrouter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/resilience"
)

const (
	chatCompletionsPath = "/api/v1/chat/completions"
	maxResponseTokens   = 10000
)

// Client talks to the hosted vision-model endpoint (OpenRouter chat
// completions). One call sends one page image plus the fixed extraction
// instruction and returns the structured result for that page.
type Client struct {
	baseURL       string
	apiKey        string
	referer       string
	appTitle      string
	allowedModels []string
	defaultModel  string
	httpClient    *http.Client
	executor      *resilience.Executor
}

func New(baseURL, apiKey, referer, appTitle string, allowedModels []string, executor *resilience.Executor) *Client {
	defaultModel := ""
	if len(allowedModels) > 0 {
		defaultModel = allowedModels[0]
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		referer:       referer,
		appTitle:      appTitle,
		allowedModels: allowedModels,
		defaultModel:  defaultModel,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		executor:      executor,
	}
}

// AllowedModels returns the model identifiers a caller may select.
func (c *Client) AllowedModels() []string {
	return append([]string(nil), c.allowedModels...)
}

func (c *Client) Extract(ctx context.Context, image []byte, mimeType, model string) (*domain.InvoiceDraft, error) {
	if len(image) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract", errors.New("no image provided"))
	}
	model, err := c.resolveModel(model)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	payload := chatRequest{
		Model:          model,
		MaxTokens:      maxResponseTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: extractionPrompt},
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: userInstruction},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			},
		},
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, chatCompletionsPath, payload, &response, "chat")
	}
	if err := c.executor.Execute(ctx, "openrouter.chat", call, classifyUpstreamError); err != nil {
		return nil, wrapTemporaryIfNeeded("extract invoice page", err)
	}

	if len(response.Choices) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "extract", errors.New("empty completion"))
	}
	content := response.Choices[0].Message.Content

	draft, err := parseExtraction(content)
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (c *Client) resolveModel(model string) (string, error) {
	if model == "" {
		if c.defaultModel == "" {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract", errors.New("no model configured"))
		}
		return c.defaultModel, nil
	}
	for _, allowed := range c.allowedModels {
		if model == allowed {
			return model, nil
		}
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("model %q is not on the allow-list", model))
}
