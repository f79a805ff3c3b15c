// Package postgres implements the repository interfaces on PostgreSQL via gorm.
//
// It is selected at startup when DATABASE_URL is set; otherwise the server
// uses the embedded SQLite store. Both backends satisfy repository.Store and
// enforce the same invariants in the database itself (UNIQUE, CHECK, FK).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// pgUniqueViolation is SQLSTATE 23505.
const pgUniqueViolation = "23505"

// =========================================================================
// ROW TYPES
// =========================================================================
//
// WHY SEPARATE ROW STRUCTS INSTEAD OF TAGGING model.User?
// gorm wants nullable columns as pointers (GitHubID, PaymentID) and relation
// fields for foreign keys. Keeping those here means the model package stays
// free of storage concerns and the SQLite store never sees gorm tags.

type userRow struct {
	ID           string    `gorm:"primaryKey;type:varchar(20)"`
	Username     string    `gorm:"type:varchar(150);not null;uniqueIndex:users_username_key"`
	Email        string    `gorm:"type:varchar(254);not null;uniqueIndex:users_email_key"`
	PasswordHash string    `gorm:"not null;default:''"`
	GitHubID     *int64    `gorm:"column:github_id;uniqueIndex:users_github_id_key"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`

	Profile   profileRow   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Analytics analyticsRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Attempts  []attemptRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (userRow) TableName() string { return "users" }

type profileRow struct {
	UserID    string    `gorm:"primaryKey;type:varchar(20)"`
	PaymentID *string   `gorm:"type:varchar(255);uniqueIndex:profiles_payment_id_key"`
	Bio       string    `gorm:"type:text;not null;default:''"`
	AvatarKey string    `gorm:"not null;default:''"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (profileRow) TableName() string { return "profiles" }

type analyticsRow struct {
	UserID        string `gorm:"primaryKey;type:varchar(20)"`
	PageViews     int64  `gorm:"not null;default:0;check:page_views >= 0"`
	QRGenerations int64  `gorm:"column:qr_generations;not null;default:0;check:qr_generations >= 0"`
}

func (analyticsRow) TableName() string { return "analytics" }

type attemptRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(20)"`
	UserID    string    `gorm:"type:varchar(20);not null;index:idx_donation_attempts_user_id,priority:1"`
	Amount    int64     `gorm:"not null;check:donation_attempts_amount_range,amount > 0 AND amount <= 1000000000"` // model.MaxAmount
	CreatedAt time.Time `gorm:"not null;index:idx_donation_attempts_user_id,priority:2"`
}

func (attemptRow) TableName() string { return "donation_attempts" }

// =========================================================================
// CONNECTION
// =========================================================================

// DB wraps a gorm handle and provides repository methods.
type DB struct {
	gorm *gorm.DB
}

// New connects to dsn and migrates the schema.
// log receives gorm's warnings (slow queries, errors) through slog.
func New(dsn string, log *slog.Logger) (*DB, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.NewSlogLogger(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	if err := g.AutoMigrate(&userRow{}, &profileRow{}, &analyticsRow{}, &attemptRow{}); err != nil {
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return &DB{gorm: g}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the pool can reach the server.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// uniqueViolation maps a 23505 error to the column named in its constraint.
func uniqueViolation(err error) (column string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return "", false
	}
	for _, col := range []string{"username", "email", "github_id", "payment_id"} {
		if strings.Contains(pgErr.ConstraintName, col) {
			return col, true
		}
	}
	return "", true
}

func duplicateError(column string) *apperror.AppError {
	switch column {
	case "username":
		return apperror.DuplicateField("username", "This username is already taken.")
	case "email":
		return apperror.DuplicateField("email", "This email address is already in use.")
	case "github_id":
		return apperror.DuplicateField("github_id", "This GitHub account is already linked.")
	case "payment_id":
		return apperror.DuplicateField("payment_id", "This UPI ID is already used by another creator.")
	default:
		return apperror.DuplicateField("", "A record with these details already exists.")
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt64(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clamp(opts repository.ListOptions, def, max int) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit, max0(opts.Offset)
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
