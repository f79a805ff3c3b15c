// Package repository declares the storage contracts the service layer depends on.
//
// Two implementations exist: repository/sqlite (embedded, the default) and
// repository/postgres (gorm over pgx, selected when DATABASE_URL is set).
// Both must enforce the same invariants in storage, not in Go code:
//   - username, email, github_id and payment_id uniqueness via UNIQUE constraints
//   - counter updates as single "x = x + 1" statements
//   - CreateIdentity, RecordAttempt and ResetAnalytics as one transaction each
package repository

import (
	"context"

	"github.com/sakif/payapp/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is the Identity Store.
type UserRepository interface {
	// CreateIdentity inserts the user together with its profile and analytics
	// rows. On a unique violation it returns apperror.DuplicateField naming
	// the column, and nothing is written.
	CreateIdentity(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	// UpdateProfile writes payment id, bio and avatar key. A payment id held
	// by another profile yields apperror.DuplicateField("payment_id", ...).
	UpdateProfile(ctx context.Context, profile *model.Profile) error
	PaymentIDTaken(ctx context.Context, paymentID, exceptUserID string) (bool, error)
	// SearchCreators matches query against username or bio, case-insensitive,
	// oldest accounts first. An empty query lists everyone.
	SearchCreators(ctx context.Context, query string, opts ListOptions) ([]model.Creator, error)
}

type AnalyticsRepository interface {
	// RecordAttempt appends the attempt and bumps qr_generations atomically.
	RecordAttempt(ctx context.Context, userID string, amount int64) (*model.DonationAttempt, error)
	IncrementPageViews(ctx context.Context, userID string) error
	// ResetAnalytics zeroes both counters and deletes every attempt atomically.
	ResetAnalytics(ctx context.Context, userID string) error
	GetCounters(ctx context.Context, userID string) (*model.AnalyticsCounters, error)
	AttemptStats(ctx context.Context, userID string) (model.Stats, error)
	ListAttempts(ctx context.Context, userID string, opts ListOptions) ([]model.DonationAttempt, error)
}

// Store is everything the server needs from a storage backend.
type Store interface {
	UserRepository
	ProfileRepository
	AnalyticsRepository
	Ping(ctx context.Context) error
	Close() error
}
