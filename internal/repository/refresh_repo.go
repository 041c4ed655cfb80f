package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-auth/internal/model"
)

const refreshKeyPrefix = "refresh_token:"

// RefreshTokenRepository is the single source of truth for refresh-token
// validity: exactly one live token per subject, overwritten on every login
// and signup, deleted on logout. Entries carry a TTL equal to the refresh
// token lifetime so stale ones self-expire.
type RefreshTokenRepository struct {
	client *redis.Client
}

func NewRefreshTokenRepository(client *redis.Client) *RefreshTokenRepository {
	return &RefreshTokenRepository{client: client}
}

// Put unconditionally overwrites the subject's current refresh token.
func (r *RefreshTokenRepository) Put(ctx context.Context, subjectID string, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, refreshKeyPrefix+subjectID, token, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) Get(ctx context.Context, subjectID string) (string, error) {
	token, err := r.client.Get(ctx, refreshKeyPrefix+subjectID).Result()
	if errors.Is(err, redis.Nil) {
		return "", model.ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return token, nil
}

// Delete is idempotent; a missing entry is not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, subjectID string) error {
	if err := r.client.Del(ctx, refreshKeyPrefix+subjectID).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Active counts live refresh sessions; served on the admin sessions endpoint.
func (r *RefreshTokenRepository) Active(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, refreshKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scan refresh tokens: %w", err)
		}

		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
