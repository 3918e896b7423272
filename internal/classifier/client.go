package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
	"golang.org/x/time/rate"
)

// Provider is a generative text service. Complete returns the raw model
// output for a system/user prompt pair; implementations map their failures
// to models.TransientError where a retry may help.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
	Ping(ctx context.Context) error
}

type Options struct {
	MaxRetries           int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	RequestsPerMinute    int
	ToxicParaphraseStyle string
	ReplyStyle           string
}

// Client classifies comments and drafts replies through a Provider, with
// client-side rate limiting and bounded retries of transient failures.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	opts     Options
}

func New(provider Provider, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &Client{
		provider: provider,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
	}
}

// NewFromConfig builds the configured provider and wraps it in a Client.
// The returned close func releases provider resources.
func NewFromConfig(ctx context.Context, cfg config.ClassifierConfig, mod config.ModerationConfig) (*Client, func() error, error) {
	var (
		provider Provider
		closeFn  = func() error { return nil }
	)

	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := NewGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		provider = gemini
		closeFn = gemini.Close
	case config.ProviderOpenAI:
		provider = NewOpenAIProvider(cfg)
	default:
		return nil, nil, fmt.Errorf("[Classifier] unknown provider %q", cfg.Provider)
	}

	slog.Info("[Classifier] Provider initialized",
		slog.String("provider", provider.Name()),
		slog.String("model", cfg.Model),
		slog.Int("requests_per_minute", cfg.RequestsPerMinute))

	return New(provider, Options{
		MaxRetries:           cfg.MaxRetries,
		InitialBackoff:       cfg.InitialBackoff,
		MaxBackoff:           cfg.MaxBackoff,
		RequestsPerMinute:    cfg.RequestsPerMinute,
		ToxicParaphraseStyle: mod.ToxicParaphraseStyle,
		ReplyStyle:           mod.ReplyStyle,
	}), closeFn, nil
}

// Classify returns a validated judgment for text. Malformed output is
// returned as a MalformedResponseError without retrying.
func (c *Client) Classify(ctx context.Context, text string) (*models.ClassificationResult, error) {
	content, err := c.complete(ctx, "classify", classificationPrompt(c.opts.ToxicParaphraseStyle), text, true)
	if err != nil {
		return nil, err
	}
	return parseClassification(content)
}

// SuggestReply drafts a reply to mildText. It never sees the original text.
func (c *Client) SuggestReply(ctx context.Context, mildText string) (string, error) {
	content, err := c.complete(ctx, "suggest reply", replyPrompt(c.opts.ReplyStyle), mildText, false)
	if err != nil {
		return "", err
	}

	reply := cleanReply(content)
	if reply == "" {
		return "", models.Malformed("empty reply suggestion")
	}
	return reply, nil
}

// Ping reports whether the provider is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.provider.Ping(ctx)
}

func (c *Client) complete(ctx context.Context, op, system, user string, jsonMode bool) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", models.Malformed("empty input")
	}

	backoff := c.opts.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", models.Transient("classifier "+op, err)
		}

		start := time.Now()
		content, err := c.provider.Complete(ctx, system, user, jsonMode)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if !models.IsTransient(err) {
			return "", err
		}
		if attempt == c.opts.MaxRetries {
			break
		}

		slog.Warn("[Classifier] Transient provider failure, retrying",
			slog.String("op", op),
			slog.String("provider", c.provider.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("elapsed", time.Since(start)),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return "", models.Transient("classifier "+op, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}

	return "", fmt.Errorf("[Classifier] %s failed after %d attempts: %w", op, c.opts.MaxRetries, lastErr)
}
