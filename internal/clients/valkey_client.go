package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/commentguard/config"
	"github.com/valkey-io/valkey-go"
)

// ValkeyClient caches the ids of comments that already carry a committed
// classification so repeated sync runs can skip the store lookup.
type ValkeyClient struct {
	Client valkey.Client
	opts   valkey.ClientOption
	ttl    time.Duration
	mu     sync.Mutex
}

func valkeyOptions(cfg config.ValkeyConfig) valkey.ClientOption {
	opts := valkey.ClientOption{
		InitAddress: []string{
			cfg.Address,
		},
		Password:         cfg.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}
	return opts
}

func connectValkey(ctx context.Context, opts valkey.ClientOption) (valkey.Client, error) {
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}
	return client, nil
}

func NewValkeyClient(ctx context.Context, cfg config.ValkeyConfig) (*ValkeyClient, error) {
	opts := valkeyOptions(cfg)
	client, err := connectValkey(ctx, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey",
		slog.Duration("ttl", cfg.TTL))
	return &ValkeyClient{Client: client, opts: opts, ttl: cfg.TTL}, nil
}

func (vc *ValkeyClient) recreateClient(ctx context.Context) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	client, err := connectValkey(ctx, vc.opts)
	if err != nil {
		slog.Error("[ValkeyClient] Recreate failed",
			slog.String("error", err.Error()))
		return
	}
	vc.Client.Close()
	vc.Client = client
	slog.Info("[ValkeyClient] Successfully reconnected to valkey")
}

func (vc *ValkeyClient) client() valkey.Client {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.Client
}

func (vc *ValkeyClient) Close() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.Client.Close()
}

// MarkProcessed adds id to the processed set and refreshes the set TTL.
func (vc *ValkeyClient) MarkProcessed(ctx context.Context, id string) error {
	responses := vc.DoMultiWithRetry(ctx, func(c valkey.Client) []valkey.Completed {
		return []valkey.Completed{
			c.B().Sadd().Key(VALKEY_PROCESSED_KEY).Member(id).Build(),
			c.B().Expire().Key(VALKEY_PROCESSED_KEY).Seconds(int64(vc.ttl.Seconds())).Build(),
		}
	}, 3)
	for _, res := range responses {
		if err := res.Error(); err != nil {
			return fmt.Errorf("[ValkeyClient] failed to mark %s processed: %w", id, err)
		}
	}
	return nil
}

// IsProcessed reports a cache hit. Any cache failure reads as a miss so the
// caller falls back to the store.
func (vc *ValkeyClient) IsProcessed(ctx context.Context, id string) bool {
	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Sismember().Key(VALKEY_PROCESSED_KEY).Member(id).Build()
	}, 1)

	if err := res.Error(); isConnectionError(err) {
		vc.recreateClient(ctx)
	}

	ok, err := res.AsBool()
	if err != nil {
		return false
	}
	return ok
}

// Commands are rebuilt per attempt since valkey-go recycles a command once
// it has been sent.
func (vc *ValkeyClient) DoMultiWithRetry(ctx context.Context, build func(valkey.Client) []valkey.Completed, retries int) []valkey.ValkeyResult {
	var results []valkey.ValkeyResult

	backoff := INITIAL_BACKOFF
	for i := 0; i < retries; i++ {
		c := vc.client()
		results = c.DoMulti(ctx, build(c)...)
		hasErr := false
		for _, r := range results {
			if r.Error() != nil {
				hasErr = true
				slog.Warn("[ValkeyClient] Do Multi failed",
					slog.Int("attempt", i+1),
					slog.String("error", r.Error().Error()))
				if isConnectionError(r.Error()) {
					vc.recreateClient(ctx)
				}
				break
			}
		}
		if !hasErr || i == retries-1 {
			break
		}
		backoff = sleepBackoff(backoff)
	}

	return results
}

func (vc *ValkeyClient) DoWithRetry(ctx context.Context, build func(valkey.Client) valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	backoff := INITIAL_BACKOFF
	for i := 0; i < retries; i++ {
		c := vc.client()
		result = c.Do(ctx, build(c))
		if result.Error() == nil || valkey.IsValkeyNil(result.Error()) {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", result.Error().Error()))

		if i < retries-1 {
			backoff = sleepBackoff(backoff)
		}
	}

	return result
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
