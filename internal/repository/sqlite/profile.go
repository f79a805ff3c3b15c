package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// GetProfile returns the profile row attached to userID.
func (db *DB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p         model.Profile
		paymentID sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, payment_id, bio, avatar_key, updated_at
		 FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &paymentID, &p.Bio, &p.AvatarKey, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", userID, err)
	}
	p.PaymentID = paymentID.String
	return &p, nil
}

// UpdateProfile overwrites the editable profile fields.
//
// An empty PaymentID is written as NULL. Two creators racing for the same
// payment id are settled by the UNIQUE constraint: the loser gets a
// DuplicateField error and their row is left untouched.
func (db *DB) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET payment_id = ?, bio = ?, avatar_key = ?, updated_at = ?
		 WHERE user_id = ?`,
		nullString(profile.PaymentID),
		profile.Bio,
		profile.AvatarKey,
		profile.UpdatedAt,
		profile.UserID,
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok {
			return duplicateError(col)
		}
		return fmt.Errorf("sqlite: updating profile %s: %w", profile.UserID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("profile", profile.UserID)
	}
	return nil
}

// PaymentIDTaken reports whether a profile other than exceptUserID holds paymentID.
func (db *DB) PaymentIDTaken(ctx context.Context, paymentID, exceptUserID string) (bool, error) {
	return db.exists(ctx,
		`SELECT EXISTS(SELECT 1 FROM profiles WHERE payment_id = ? AND user_id <> ?)`,
		paymentID, exceptUserID,
	)
}

// SearchCreators does a substring match on username or bio.
// SQLite's LIKE is already case-insensitive for ASCII.
func (db *DB) SearchCreators(ctx context.Context, query string, opts repository.ListOptions) ([]model.Creator, error) {
	limit, offset := clamp(opts, 50, 100)
	pattern := "%" + escapeLike(query) + "%"

	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.github_id, u.created_at, u.updated_at,
		        p.payment_id, p.bio, p.avatar_key, p.updated_at
		 FROM users u
		 JOIN profiles p ON p.user_id = u.id
		 WHERE ? = '' OR u.username LIKE ? ESCAPE '\' OR p.bio LIKE ? ESCAPE '\'
		 ORDER BY u.created_at ASC, u.id ASC
		 LIMIT ? OFFSET ?`,
		query, pattern, pattern, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching creators: %w", err)
	}
	defer rows.Close()

	creators := make([]model.Creator, 0)
	for rows.Next() {
		var (
			c         model.Creator
			githubID  sql.NullInt64
			paymentID sql.NullString
		)
		if err := rows.Scan(
			&c.User.ID,
			&c.User.Username,
			&c.User.Email,
			&c.User.PasswordHash,
			&githubID,
			&c.User.CreatedAt,
			&c.User.UpdatedAt,
			&paymentID,
			&c.Profile.Bio,
			&c.Profile.AvatarKey,
			&c.Profile.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning creator row: %w", err)
		}
		c.User.GitHubID = githubID.Int64
		c.Profile.UserID = c.User.ID
		c.Profile.PaymentID = paymentID.String
		creators = append(creators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating creator rows: %w", err)
	}
	return creators, nil
}
