package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
)

var _ repository.AnalyticsRepository = (*DB)(nil)

// RecordAttempt appends a donation attempt and bumps qr_generations.
//
// BOTH WRITES OR NEITHER:
// If the counter update failed after the insert, stats and counters would
// disagree forever. The transaction makes the pair a single unit.
func (db *DB) RecordAttempt(ctx context.Context, userID string, amount int64) (*model.DonationAttempt, error) {
	attempt := &model.DonationAttempt{
		ID:        xid.New().String(),
		UserID:    userID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE analytics SET qr_generations = qr_generations + 1 WHERE user_id = ?`,
			userID,
		)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperror.NotFound("creator", userID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO donation_attempts (id, user_id, amount, created_at) VALUES (?, ?, ?, ?)`,
			attempt.ID, attempt.UserID, attempt.Amount, attempt.CreatedAt,
		)
		return err
	})
	if err != nil {
		if apperror.IsKind(err) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: recording attempt for %s: %w", userID, err)
	}
	return attempt, nil
}

// IncrementPageViews is a single UPDATE so concurrent views never lose a count.
func (db *DB) IncrementPageViews(ctx context.Context, userID string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE analytics SET page_views = page_views + 1 WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing page views for %s: %w", userID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("creator", userID)
	}
	return nil
}

// ResetAnalytics zeroes both counters and deletes the attempt log together.
// Readers see either the old state or the fully reset one.
func (db *DB) ResetAnalytics(ctx context.Context, userID string) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE analytics SET page_views = 0, qr_generations = 0 WHERE user_id = ?`,
			userID,
		)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperror.NotFound("creator", userID)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM donation_attempts WHERE user_id = ?`, userID)
		return err
	})
	if err != nil {
		if apperror.IsKind(err) {
			return err
		}
		return fmt.Errorf("sqlite: resetting analytics for %s: %w", userID, err)
	}
	return nil
}

func (db *DB) GetCounters(ctx context.Context, userID string) (*model.AnalyticsCounters, error) {
	c := model.AnalyticsCounters{UserID: userID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT page_views, qr_generations FROM analytics WHERE user_id = ?`,
		userID,
	).Scan(&c.PageViews, &c.QRGenerations)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("creator", userID)
		}
		return nil, fmt.Errorf("sqlite: getting counters for %s: %w", userID, err)
	}
	return &c, nil
}

// AttemptStats aggregates in SQL. COALESCE turns the NULL that SUM/MAX
// return over zero rows into 0.
func (db *DB) AttemptStats(ctx context.Context, userID string) (model.Stats, error) {
	var s model.Stats
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COALESCE(MAX(amount), 0)
		 FROM donation_attempts WHERE user_id = ?`,
		userID,
	).Scan(&s.TotalAmount, &s.HighestAmount)
	if err != nil {
		return model.Stats{}, fmt.Errorf("sqlite: aggregating attempts for %s: %w", userID, err)
	}
	return s, nil
}

// ListAttempts returns the newest attempts first.
func (db *DB) ListAttempts(ctx context.Context, userID string, opts repository.ListOptions) ([]model.DonationAttempt, error) {
	limit, offset := clamp(opts, 20, 100)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, amount, created_at FROM donation_attempts
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing attempts for %s: %w", userID, err)
	}
	defer rows.Close()

	attempts := make([]model.DonationAttempt, 0)
	for rows.Next() {
		var a model.DonationAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating attempt rows: %w", err)
	}
	return attempts, nil
}
