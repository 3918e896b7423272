package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, cfg config.ClassifierConfig) (*GeminiProvider, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("[GeminiClient] failed to create client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (p *GeminiProvider) Name() string { return config.ProviderGemini }

func (p *GeminiProvider) Close() error { return p.client.Close() }

// Safety filters are relaxed: the model has to read hostile comments to
// score and paraphrase them.
var relaxedSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
}

func (p *GeminiProvider) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SafetySettings = relaxedSafety
	model.SetTemperature(0.2)
	if jsonMode {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", mapGeminiErr(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", models.Malformed("empty candidate list")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", models.Malformed("empty completion")
	}
	return sb.String(), nil
}

func (p *GeminiProvider) Ping(ctx context.Context) error {
	if _, err := p.client.GenerativeModel(p.model).Info(ctx); err != nil {
		return mapGeminiErr(err)
	}
	return nil
}

func mapGeminiErr(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return models.Malformed("response blocked: %v", blocked)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if retryableStatus(gerr.Code) {
			return models.Transient("gemini", err)
		}
		return fmt.Errorf("[GeminiClient] request rejected (%d): %w", gerr.Code, err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return models.Transient("gemini", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return models.Transient("gemini", err)
	}
	return fmt.Errorf("[GeminiClient] request failed: %w", err)
}
