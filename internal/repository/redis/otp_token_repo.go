package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/portfolio-api/internal/domain/entity"
	apperrors "github.com/yourusername/portfolio-api/internal/pkg/errors"
)

// ttlGrace keeps a key alive a little past the challenge expiry so the engine
// can observe an expired row and answer "expired" instead of "not found".
// Either way the caller sees the same failure; the grace just makes sweeps
// and TTLs non-load-bearing.
const ttlGrace = time.Minute

// OtpTokenRepo implements repository.OtpTokenRepository on Redis. Each scope
// key (email, purpose) maps to exactly one JSON document, so Create is a
// plain SET and naturally supersedes the previous challenge. Key TTLs give
// the store the self-reclaiming behavior the engine treats as garbage
// collection only.
type OtpTokenRepo struct {
	client redis.UniversalClient
}

// NewOtpTokenRepo creates the repository and returns an error when the client is missing.
func NewOtpTokenRepo(client redis.UniversalClient) (*OtpTokenRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for OtpTokenRepo")
	}
	return &OtpTokenRepo{client: client}, nil
}

func otpKey(email string, purpose entity.OtpPurpose) string {
	return fmt.Sprintf("otp:%s:%s", purpose, email)
}

// indexKey is a sorted set of live keys scored by expiry, used by DeleteExpired.
const indexKey = "otp:by-expiry"

// Create stores the challenge, replacing any live one for the same scope key.
func (r *OtpTokenRepo) Create(ctx context.Context, token *entity.OtpToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal otp token: %w", err)
	}

	key := otpKey(token.Email, token.Purpose)
	ttl := time.Until(token.ExpiresAt) + ttlGrace
	if ttl <= 0 {
		ttl = ttlGrace
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.ZAdd(ctx, indexKey, &redis.Z{
		Score:  float64(token.ExpiresAt.Unix()),
		Member: key,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the live challenge for the scope key, or ErrNotFound.
func (r *OtpTokenRepo) Get(ctx context.Context, email string, purpose entity.OtpPurpose) (*entity.OtpToken, error) {
	data, err := r.client.Get(ctx, otpKey(email, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	var token entity.OtpToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal otp token: %w", err)
	}
	return &token, nil
}

// Update rewrites the stored challenge without touching its TTL window.
// Concurrent updates for the same scope key resolve last-write-wins; the
// attempt cap is a courtesy limit, not a security boundary.
func (r *OtpTokenRepo) Update(ctx context.Context, token *entity.OtpToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal otp token: %w", err)
	}

	key := otpKey(token.Email, token.Purpose)
	ttl := time.Until(token.ExpiresAt) + ttlGrace
	if ttl <= 0 {
		ttl = ttlGrace
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// DeleteAll removes the challenge for the scope key, if any.
func (r *OtpTokenRepo) DeleteAll(ctx context.Context, email string, purpose entity.OtpPurpose) error {
	key := otpKey(email, purpose)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, indexKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteExpired drops challenges whose expiry has passed. Key TTLs already
// evict the values themselves; this keeps the expiry index from growing and
// catches keys whose TTL grace has not elapsed yet. The index score is only a
// hint: a send can supersede a listed key with a fresh challenge after the
// scan, so every candidate is re-checked against the stored expiry before
// its key is touched.
func (r *OtpTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now()
	cutoff := fmt.Sprintf("%d", now.Unix())

	keys, err := r.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	expired := make([]string, 0, len(keys))
	stale := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// TTL already evicted the value; only the index entry is left.
				stale = append(stale, key)
				continue
			}
			return 0, err
		}

		var token entity.OtpToken
		if err := json.Unmarshal(data, &token); err != nil || token.IsExpired(now) {
			expired = append(expired, key)
			stale = append(stale, key)
			continue
		}

		// Superseded after the scan: the key holds a live challenge under an
		// outdated score. Repair the score instead of deleting the challenge.
		r.client.ZAdd(ctx, indexKey, &redis.Z{
			Score:  float64(token.ExpiresAt.Unix()),
			Member: key,
		})
	}

	if len(stale) == 0 {
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	if len(expired) > 0 {
		pipe.Del(ctx, expired...)
	}
	pipe.ZRem(ctx, indexKey, stale...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int64(len(expired)), nil
}
