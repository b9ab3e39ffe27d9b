package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

const (
	defaultTTL    = 10 * time.Minute
	keyPrefix     = "claim-assistant:ref:"
	opTimeout     = 500 * time.Millisecond
	currenciesKey = keyPrefix + "currencies"
)

// NewClient builds a go-redis client from a redis:// URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return redis.NewClient(opts), nil
}

// Backend caches reference lookups of the wrapped backend in Redis.
// Submissions always go straight through. Redis failures degrade to
// uncached calls.
type Backend struct {
	next   ports.ClaimBackend
	client *redis.Client
	ttl    time.Duration
}

func NewBackend(next ports.ClaimBackend, client *redis.Client, ttl time.Duration) *Backend {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Backend{next: next, client: client, ttl: ttl}
}

func (b *Backend) EligiblePolicies(ctx context.Context, clientID string) ([]domain.EligiblePolicy, error) {
	return cached(ctx, b, keyPrefix+"policies:"+clientID, func() ([]domain.EligiblePolicy, error) {
		return b.next.EligiblePolicies(ctx, clientID)
	})
}

func (b *Backend) Currencies(ctx context.Context) ([]domain.Currency, error) {
	return cached(ctx, b, currenciesKey, func() ([]domain.Currency, error) {
		return b.next.Currencies(ctx)
	})
}

func (b *Backend) RequiredDocuments(ctx context.Context, claimType domain.ClaimType) ([]domain.RequiredDocument, error) {
	return cached(ctx, b, keyPrefix+"checklist:"+string(claimType), func() ([]domain.RequiredDocument, error) {
		return b.next.RequiredDocuments(ctx, claimType)
	})
}

func (b *Backend) PayoutMethods(ctx context.Context, policyID string) ([]domain.PayoutMethod, error) {
	return cached(ctx, b, keyPrefix+"payout:"+policyID, func() ([]domain.PayoutMethod, error) {
		return b.next.PayoutMethods(ctx, policyID)
	})
}

func (b *Backend) SubmitClaim(ctx context.Context, submission domain.ClaimSubmission) (*domain.SubmissionResult, error) {
	result, err := b.next.SubmitClaim(ctx, submission)
	if err != nil {
		return nil, err
	}
	// Payout methods can change once a claim is filed against the policy.
	b.invalidate(ctx, keyPrefix+"payout:"+submission.PolicyID)
	return result, nil
}

func cached[T any](ctx context.Context, b *Backend, key string, load func() (T, error)) (T, error) {
	getCtx, cancel := context.WithTimeout(ctx, opTimeout)
	raw, err := b.client.Get(getCtx, key).Bytes()
	cancel()
	switch {
	case err == nil:
		var out T
		if jsonErr := json.Unmarshal(raw, &out); jsonErr == nil {
			return out, nil
		}
		slog.Warn("reference_cache_decode_failed", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("reference_cache_get_failed", "key", key, "error", err)
	}

	out, err := load()
	if err != nil {
		return out, err
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	setCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := b.client.Set(setCtx, key, encoded, b.ttl).Err(); err != nil {
		slog.Warn("reference_cache_set_failed", "key", key, "error", err)
	}
	return out, nil
}

func (b *Backend) invalidate(ctx context.Context, key string) {
	delCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := b.client.Del(delCtx, key).Err(); err != nil {
		slog.Warn("reference_cache_invalidate_failed", "key", key, "error", err)
	}
}
