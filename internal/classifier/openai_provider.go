package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
)

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(cfg config.ClassifierConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (p *OpenAIProvider) Name() string { return config.ProviderOpenAI }

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapOpenAIErr(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", models.Malformed("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.GetModel(ctx, p.model); err != nil {
		return mapOpenAIErr(err)
	}
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

func mapOpenAIErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return models.Transient("openai", err)
		}
		return fmt.Errorf("[OpenAIClient] request rejected (%d): %w", apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return models.Transient("openai", err)
		}
		return fmt.Errorf("[OpenAIClient] request failed (%d): %w", reqErr.HTTPStatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return models.Transient("openai", err)
	}
	return fmt.Errorf("[OpenAIClient] request failed: %w", err)
}
