// Package storetest holds the behaviour every repository.Store backend must
// share. Each backend's tests call Run with a constructor for a fresh, empty
// store:
//
//	func TestStoreContract(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) repository.Store { return newTestDB(t) })
//	}
//
// SQLite runs it on every `go test`; Postgres runs it when a test database
// is configured.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
)

// Opener returns a fresh, empty store. It should register its own cleanup.
type Opener func(t *testing.T) repository.Store

// Run executes the shared contract as subtests.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repository.Store)
	}{
		{"CreateIdentityCreatesProfileAndCounters", testCreateIdentity},
		{"EmailUniquenessIgnoresCase", testEmailIgnoresCase},
		{"RecordAttemptBumpsGenerations", testRecordAttempt},
		{"RecordAttemptUnknownCreator", testRecordAttemptUnknownCreator},
		{"OutOfRangeAmountsRollBack", testOutOfRangeAmounts},
		{"StatsSumAndMax", testStats},
		{"StatsEmptyAreZero", testStatsEmpty},
		{"StatsArePerCreator", testStatsPerCreator},
		{"MaxAmountsStillSum", testMaxAmountsSum},
		{"ListAttemptsNewestFirst", testListAttempts},
		{"ConcurrentPageViews", testConcurrentPageViews},
		{"PageViewsUnknownCreator", testPageViewsUnknownCreator},
		{"ResetZeroesOnlyTheOwner", testReset},
		{"ResetIsIdempotent", testResetIdempotent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func createUser(t *testing.T, s repository.Store, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com", PasswordHash: "$2a$04$hash"}
	require.NoError(t, s.CreateIdentity(context.Background(), u))
	return u
}

func record(t *testing.T, s repository.Store, userID string, amounts ...int64) {
	t.Helper()
	for _, amount := range amounts {
		_, err := s.RecordAttempt(context.Background(), userID, amount)
		require.NoError(t, err, "RecordAttempt(%d)", amount)
	}
}

func testCreateIdentity(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := createUser(t, s, "alice")
	assert.NotEmpty(t, u.ID)

	p, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultBio, p.Bio)
	assert.Empty(t, p.PaymentID)

	c, err := s.GetCounters(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, c.PageViews)
	assert.Zero(t, c.QRGenerations)
}

func testEmailIgnoresCase(t *testing.T, s repository.Store) {
	ctx := context.Background()
	createUser(t, s, "alice")

	err := s.CreateIdentity(ctx, &model.User{Username: "bob", Email: "ALICE@Example.com"})
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "CreateIdentity() error = %v, want DuplicateField", err)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "email", appErr.Field)

	exists, err := s.EmailExists(ctx, "Alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func testRecordAttempt(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := createUser(t, s, "alice")

	a, err := s.RecordAttempt(ctx, u.ID, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, int64(100), a.Amount)
	assert.Equal(t, u.ID, a.UserID)

	c, err := s.GetCounters(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.QRGenerations)
}

func testRecordAttemptUnknownCreator(t *testing.T, s repository.Store) {
	_, err := s.RecordAttempt(context.Background(), "missing", 100)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testOutOfRangeAmounts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := createUser(t, s, "alice")

	for _, amount := range []int64{0, -5, model.MaxAmount + 1} {
		_, err := s.RecordAttempt(ctx, u.ID, amount)
		assert.Error(t, err, "RecordAttempt(%d) must fail the CHECK constraint", amount)
	}

	// The counter bump inside each failed transaction is rolled back.
	c, err := s.GetCounters(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, c.QRGenerations)

	stats, err := s.AttemptStats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{}, stats)
}

func testStats(t *testing.T, s repository.Store) {
	u := createUser(t, s, "alice")
	record(t, s, u.ID, 100, 250, 90)

	stats, err := s.AttemptStats(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalAmount: 440, HighestAmount: 250}, stats)
}

func testStatsEmpty(t *testing.T, s repository.Store) {
	u := createUser(t, s, "alice")

	stats, err := s.AttemptStats(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{}, stats)
}

func testStatsPerCreator(t *testing.T, s repository.Store) {
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	record(t, s, alice.ID, 500)
	record(t, s, bob.ID, 7)

	stats, err := s.AttemptStats(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalAmount: 7, HighestAmount: 7}, stats)
}

func testMaxAmountsSum(t *testing.T, s repository.Store) {
	u := createUser(t, s, "alice")

	const n = 50
	for i := 0; i < n; i++ {
		record(t, s, u.ID, model.MaxAmount)
	}

	stats, err := s.AttemptStats(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, n*model.MaxAmount, stats.TotalAmount)
	assert.Equal(t, model.MaxAmount, stats.HighestAmount)
}

func testListAttempts(t *testing.T, s repository.Store) {
	u := createUser(t, s, "alice")
	record(t, s, u.ID, 10, 20, 30)

	got, err := s.ListAttempts(context.Background(), u.ID, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(30), got[0].Amount)
	assert.Equal(t, int64(20), got[1].Amount)
}

func testConcurrentPageViews(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := createUser(t, s, "alice")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.IncrementPageViews(ctx, u.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	c, err := s.GetCounters(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), c.PageViews)
}

func testPageViewsUnknownCreator(t *testing.T, s repository.Store) {
	err := s.IncrementPageViews(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func testReset(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	record(t, s, alice.ID, 100, 200)
	require.NoError(t, s.IncrementPageViews(ctx, alice.ID))
	record(t, s, bob.ID, 5)

	require.NoError(t, s.ResetAnalytics(ctx, alice.ID))

	c, err := s.GetCounters(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, c.PageViews)
	assert.Zero(t, c.QRGenerations)

	stats, err := s.AttemptStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{}, stats)

	recent, err := s.ListAttempts(ctx, alice.ID, repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, recent)

	bobStats, err := s.AttemptStats(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), bobStats.TotalAmount)

	// Counting starts again from zero.
	record(t, s, alice.ID, 40)
	stats, err = s.AttemptStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{TotalAmount: 40, HighestAmount: 40}, stats)
}

func testResetIdempotent(t *testing.T, s repository.Store) {
	u := createUser(t, s, "alice")

	for i := 0; i < 2; i++ {
		require.NoError(t, s.ResetAnalytics(context.Background(), u.ID), "reset #%d", i+1)
	}
}
