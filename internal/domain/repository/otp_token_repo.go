package repository

import (
	"context"

	"github.com/yourusername/portfolio-api/internal/domain/entity"
)

// OtpTokenRepository persists short-lived verification challenges. The store
// guarantees at most one live challenge per (email, purpose) scope key:
// Create supersedes any previous row for the same key. The store also
// reclaims rows past their expiry on its own, but that is storage cleanup,
// not a correctness guarantee; callers re-check expiry explicitly.
type OtpTokenRepository interface {
	Create(ctx context.Context, token *entity.OtpToken) error
	Get(ctx context.Context, email string, purpose entity.OtpPurpose) (*entity.OtpToken, error)
	// Update persists mutated challenge state (attempt counter, verified flag).
	Update(ctx context.Context, token *entity.OtpToken) error
	DeleteAll(ctx context.Context, email string, purpose entity.OtpPurpose) error
	// DeleteExpired removes challenges past expiry and returns how many went.
	DeleteExpired(ctx context.Context) (int64, error)
}
