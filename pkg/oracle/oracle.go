// Package oracle talks to a covenant-emulation oracle: a service holding a
// key pair per template hash and promising to sign only the committed
// template. Where a deployment lacks native covenant support, branch
// guards substitute the oracle's attested key for the commitment.
package oracle

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/clause"
	"github.com/22388o/sapio/pkg/contract"
)

// Cache stores attested keys by template hash. Implementations must be
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, hash string) (string, bool, error)
	Set(ctx context.Context, hash, key string, ttl time.Duration) error
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	key     string
	expires time.Time
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, hash string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[hash]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.entries, hash)
		return "", false, nil
	}
	return e.key, true, nil
}

func (m *MemoryCache) Set(_ context.Context, hash, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{key: key}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	m.entries[hash] = e
	return nil
}

// RedisCache is a Cache on Redis, for sharing attestations between engine
// replicas.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects a cache to the Redis instance at addr.
func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb}
}

func redisKey(hash string) string {
	return "sapio:oracle:" + hash
}

func (r *RedisCache) Get(ctx context.Context, hash string) (string, bool, error) {
	val, err := r.client.Get(ctx, redisKey(hash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("oracle: redis get: %w", err)
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, hash, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, redisKey(hash), key, ttl).Err(); err != nil {
		return fmt.Errorf("oracle: redis set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Config sets up an oracle client.
type Config struct {
	// BaseURL of the oracle, e.g. "https://oracle.example".
	BaseURL string
	// Timeout for one HTTP attempt. Defaults to 10s.
	Timeout time.Duration
	// RPS and Burst bound the request rate to the oracle. Defaults: 10, 20.
	RPS   float64
	Burst int
	// CacheTTL bounds how long attested keys are reused. Defaults to 5m.
	CacheTTL time.Duration
}

// Client fetches attested keys over HTTP, rate limited, with a cache in
// front.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	cache   Cache
	ttl     time.Duration
	log     *slog.Logger
}

// NewClient builds an oracle client. cache may be nil, disabling reuse.
func NewClient(cfg Config, cache Cache, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("oracle: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cache:   cache,
		ttl:     cfg.CacheTTL,
		log:     log.With("component", "oracle"),
	}, nil
}

// attestation is the oracle's response body.
type attestation struct {
	Key string `json:"key"`
}

// SignerFor returns the key clause the oracle attests for the given
// template hash.
func (c *Client) SignerFor(ctx context.Context, templateHash string) (clause.Clause, error) {
	if !canonical.ValidHash(templateHash) {
		return clause.Clause{}, fmt.Errorf("oracle: malformed template hash %q", templateHash)
	}

	if c.cache != nil {
		key, hit, err := c.cache.Get(ctx, templateHash)
		if err != nil {
			c.log.Warn("attestation cache read failed", "error", err)
		} else if hit {
			return clause.Key(key), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return clause.Clause{}, fmt.Errorf("oracle: rate limit wait: %w", err)
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/signer/" + url.PathEscape(templateHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return clause.Clause{}, fmt.Errorf("oracle: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return clause.Clause{}, fmt.Errorf("oracle: fetch signer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return clause.Clause{}, fmt.Errorf("oracle: signer lookup returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var att attestation
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&att); err != nil {
		return clause.Clause{}, fmt.Errorf("oracle: decode attestation: %w", err)
	}
	if _, err := hex.DecodeString(att.Key); err != nil || att.Key == "" {
		return clause.Clause{}, fmt.Errorf("oracle: attested key is not hex: %q", att.Key)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, templateHash, att.Key, c.ttl); err != nil {
			c.log.Warn("attestation cache write failed", "error", err)
		}
	}
	return clause.Key(att.Key), nil
}

// KeyGuard binds a branch to the oracle's signing key for the template
// hash hashFn computes. The guard is cached: within one pass the oracle is
// consulted once per guard. Lookup failures veto the branch with an
// unsatisfiable clause rather than aborting the pass.
func KeyGuard[S any](c *Client, hashFn func(S, *contract.Context) (string, error)) contract.Guard[S] {
	return contract.CacheGuard(func(self S, ctx *contract.Context) clause.Clause {
		h, err := hashFn(self, ctx)
		if err != nil {
			ctx.Logger().Warn("oracle guard hash failed", "error", err)
			return clause.Unsatisfiable()
		}
		cl, err := c.SignerFor(ctx.Context(), h)
		if err != nil {
			ctx.Logger().Warn("oracle attestation failed", "hash", h, "error", err)
			return clause.Unsatisfiable()
		}
		return cl
	})
}
