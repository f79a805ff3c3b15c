package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
)

// =========================================================================
// USERS
// =========================================================================

// CreateIdentity stores emails lowercased so the plain unique index on
// users.email compares the way SQLite's NOCASE column does.
func (db *DB) CreateIdentity(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	row := userRow{
		ID:           xid.New().String(),
		Username:     user.Username,
		Email:        strings.ToLower(user.Email),
		PasswordHash: user.PasswordHash,
		GitHubID:     optionalInt64(user.GitHubID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Create(&profileRow{UserID: row.ID, Bio: model.DefaultBio, UpdatedAt: now}).Error; err != nil {
			return err
		}
		return tx.Create(&analyticsRow{UserID: row.ID}).Error
	})
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			return duplicateError(col)
		}
		return fmt.Errorf("postgres: creating identity %q: %w", user.Username, err)
	}

	user.ID = row.ID
	user.Email = row.Email
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.firstUser(ctx, "user", id, "id = ?", id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.firstUser(ctx, "creator", username, "username = ?", username)
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.firstUser(ctx, "github user", fmt.Sprint(githubID), "github_id = ?", githubID)
}

func (db *DB) firstUser(ctx context.Context, resource, key string, query string, args ...any) (*model.User, error) {
	var row userRow
	err := db.gorm.WithContext(ctx).Where(query, args...).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("postgres: getting %s %s: %w", resource, key, err)
	}
	return toUser(&row), nil
}

func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	return db.exists(ctx, &userRow{}, "username = ?", username)
}

func (db *DB) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.exists(ctx, &userRow{}, "LOWER(email) = LOWER(?)", email)
}

func (db *DB) exists(ctx context.Context, table any, query string, args ...any) (bool, error) {
	var count int64
	if err := db.gorm.WithContext(ctx).Model(table).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("postgres: existence check: %w", err)
	}
	return count > 0, nil
}

func toUser(r *userRow) *model.User {
	return &model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		GitHubID:     deref(r.GitHubID),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// =========================================================================
// PROFILES
// =========================================================================

func (db *DB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var row profileRow
	err := db.gorm.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("postgres: getting profile %s: %w", userID, err)
	}
	return toProfile(&row), nil
}

// UpdateProfile uses a map so gorm writes NULL and empty strings instead of
// skipping zero values the way Updates(struct) would.
func (db *DB) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = time.Now().UTC()

	result := db.gorm.WithContext(ctx).Model(&profileRow{}).
		Where("user_id = ?", profile.UserID).
		Updates(map[string]any{
			"payment_id": optionalString(profile.PaymentID),
			"bio":        profile.Bio,
			"avatar_key": profile.AvatarKey,
			"updated_at": profile.UpdatedAt,
		})
	if result.Error != nil {
		if col, ok := uniqueViolation(result.Error); ok {
			return duplicateError(col)
		}
		return fmt.Errorf("postgres: updating profile %s: %w", profile.UserID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("profile", profile.UserID)
	}
	return nil
}

func (db *DB) PaymentIDTaken(ctx context.Context, paymentID, exceptUserID string) (bool, error) {
	return db.exists(ctx, &profileRow{}, "payment_id = ? AND user_id <> ?", paymentID, exceptUserID)
}

func (db *DB) SearchCreators(ctx context.Context, query string, opts repository.ListOptions) ([]model.Creator, error) {
	limit, offset := clamp(opts, 50, 100)
	pattern := "%" + escapeLike(query) + "%"

	rows, err := db.gorm.WithContext(ctx).Raw(
		`SELECT u.id, u.username, u.email, u.password_hash, u.github_id, u.created_at, u.updated_at,
		        p.payment_id, p.bio, p.avatar_key, p.updated_at
		 FROM users u
		 JOIN profiles p ON p.user_id = u.id
		 WHERE ? = '' OR u.username ILIKE ? OR p.bio ILIKE ?
		 ORDER BY u.created_at ASC, u.id ASC
		 LIMIT ? OFFSET ?`,
		query, pattern, pattern, limit, offset,
	).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: searching creators: %w", err)
	}
	defer rows.Close()

	creators := make([]model.Creator, 0)
	for rows.Next() {
		var (
			u userRow
			p profileRow
		)
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.GitHubID, &u.CreatedAt, &u.UpdatedAt,
			&p.PaymentID, &p.Bio, &p.AvatarKey, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scanning creator row: %w", err)
		}
		p.UserID = u.ID
		creators = append(creators, model.Creator{User: *toUser(&u), Profile: *toProfile(&p)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating creator rows: %w", err)
	}
	return creators, nil
}

func toProfile(r *profileRow) *model.Profile {
	return &model.Profile{
		UserID:    r.UserID,
		PaymentID: deref(r.PaymentID),
		Bio:       r.Bio,
		AvatarKey: r.AvatarKey,
		UpdatedAt: r.UpdatedAt,
	}
}

// =========================================================================
// ANALYTICS
// =========================================================================

func (db *DB) RecordAttempt(ctx context.Context, userID string, amount int64) (*model.DonationAttempt, error) {
	row := attemptRow{
		ID:        xid.New().String(),
		UserID:    userID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}

	err := db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpCounter(tx, userID, "qr_generations"); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if apperror.IsKind(err) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: recording attempt for %s: %w", userID, err)
	}

	return &model.DonationAttempt{ID: row.ID, UserID: row.UserID, Amount: row.Amount, CreatedAt: row.CreatedAt}, nil
}

func (db *DB) IncrementPageViews(ctx context.Context, userID string) error {
	err := bumpCounter(db.gorm.WithContext(ctx), userID, "page_views")
	if err != nil && !apperror.IsKind(err) {
		return fmt.Errorf("postgres: incrementing page views for %s: %w", userID, err)
	}
	return err
}

// bumpCounter runs "column = column + 1" in the database, never read-modify-write in Go.
func bumpCounter(tx *gorm.DB, userID, column string) error {
	result := tx.Model(&analyticsRow{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("creator", userID)
	}
	return nil
}

func (db *DB) ResetAnalytics(ctx context.Context, userID string) error {
	err := db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&analyticsRow{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"page_views": 0, "qr_generations": 0})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperror.NotFound("creator", userID)
		}
		return tx.Where("user_id = ?", userID).Delete(&attemptRow{}).Error
	})
	if err != nil && !apperror.IsKind(err) {
		return fmt.Errorf("postgres: resetting analytics for %s: %w", userID, err)
	}
	return err
}

func (db *DB) GetCounters(ctx context.Context, userID string) (*model.AnalyticsCounters, error) {
	var row analyticsRow
	err := db.gorm.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("creator", userID)
		}
		return nil, fmt.Errorf("postgres: getting counters for %s: %w", userID, err)
	}
	return &model.AnalyticsCounters{UserID: row.UserID, PageViews: row.PageViews, QRGenerations: row.QRGenerations}, nil
}

func (db *DB) AttemptStats(ctx context.Context, userID string) (model.Stats, error) {
	var s model.Stats
	err := db.gorm.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)::bigint AS total_amount, COALESCE(MAX(amount), 0) AS highest_amount
		 FROM donation_attempts WHERE user_id = ?`,
		userID,
	).Scan(&s).Error
	if err != nil {
		return model.Stats{}, fmt.Errorf("postgres: aggregating attempts for %s: %w", userID, err)
	}
	return s, nil
}

func (db *DB) ListAttempts(ctx context.Context, userID string, opts repository.ListOptions) ([]model.DonationAttempt, error) {
	limit, offset := clamp(opts, 20, 100)

	var rows []attemptRow
	err := db.gorm.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: listing attempts for %s: %w", userID, err)
	}

	attempts := make([]model.DonationAttempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, model.DonationAttempt{ID: r.ID, UserID: r.UserID, Amount: r.Amount, CreatedAt: r.CreatedAt})
	}
	return attempts, nil
}
