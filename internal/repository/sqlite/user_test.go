package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that exists only during the test.
// Each test gets its own database, so tests never see each other's rows.
//
// t.Helper() makes failures point at the caller's line, not this helper.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates an identity and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$hash",
	}
	if err := db.CreateIdentity(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE IDENTITY TESTS
// =========================================================================

func TestCreateIdentity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := createTestUser(t, db, "alice")

	if user.ID == "" {
		t.Error("CreateIdentity() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateIdentity() did not set user.CreatedAt")
	}

	// The profile and counters must exist as soon as the user does.
	profile, err := db.GetProfile(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if profile.Bio != model.DefaultBio {
		t.Errorf("Bio = %q, want default bio", profile.Bio)
	}
	if profile.PaymentID != "" {
		t.Errorf("PaymentID = %q, want empty", profile.PaymentID)
	}

	counters, err := db.GetCounters(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetCounters() error = %v", err)
	}
	if counters.PageViews != 0 || counters.QRGenerations != 0 {
		t.Errorf("counters = %+v, want zeros", counters)
	}
}

func TestCreateIdentity_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "alice")

	dup := &model.User{Username: "alice", Email: "other@example.com"}
	err := db.CreateIdentity(ctx, dup)

	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateIdentity() error = %v, want ErrConflict", err)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "username" {
		t.Errorf("conflict field = %+v, want username", appErr)
	}
	if dup.ID != "" {
		t.Errorf("failed CreateIdentity() left ID = %q", dup.ID)
	}
}

func TestCreateIdentity_DuplicateEmailIgnoresCase(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "alice")

	err := db.CreateIdentity(ctx, &model.User{Username: "bob", Email: "ALICE@example.com"})

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Field != "email" {
		t.Fatalf("CreateIdentity() error = %v, want email conflict", err)
	}
}

func TestCreateIdentity_FailureLeavesNothingBehind(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "alice")

	_ = db.CreateIdentity(ctx, &model.User{Username: "bob", Email: "alice@example.com"})

	exists, err := db.UsernameExists(ctx, "bob")
	if err != nil {
		t.Fatalf("UsernameExists() error = %v", err)
	}
	if exists {
		t.Error("user row survived a rolled back CreateIdentity()")
	}

	var profiles int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&profiles); err != nil {
		t.Fatal(err)
	}
	if profiles != 1 {
		t.Errorf("profiles = %d, want 1", profiles)
	}
}

func TestCreateIdentity_GitHubIDOptional(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Two form signups both have GitHubID 0, stored as NULL, so no conflict.
	createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")

	linked := &model.User{Username: "carol", Email: "carol@example.com", GitHubID: 42}
	if err := db.CreateIdentity(ctx, linked); err != nil {
		t.Fatalf("CreateIdentity() error = %v", err)
	}

	got, err := db.GetUserByGitHubID(ctx, 42)
	if err != nil {
		t.Fatalf("GetUserByGitHubID() error = %v", err)
	}
	if got.Username != "carol" {
		t.Errorf("Username = %q, want carol", got.Username)
	}

	err = db.CreateIdentity(ctx, &model.User{Username: "dave", Email: "dave@example.com", GitHubID: 42})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second GitHubID 42 error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestGetUserByUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	created := createTestUser(t, db, "alice")

	got, err := db.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
	if got.PasswordHash != created.PasswordHash {
		t.Errorf("PasswordHash not round-tripped")
	}
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByUsername(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestExistsChecks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "alice")

	tests := []struct {
		name  string
		check func() (bool, error)
		want  bool
	}{
		{"username taken", func() (bool, error) { return db.UsernameExists(ctx, "alice") }, true},
		{"username free", func() (bool, error) { return db.UsernameExists(ctx, "bob") }, false},
		{"email taken", func() (bool, error) { return db.EmailExists(ctx, "alice@example.com") }, true},
		{"email taken other case", func() (bool, error) { return db.EmailExists(ctx, "Alice@Example.com") }, true},
		{"email free", func() (bool, error) { return db.EmailExists(ctx, "bob@example.com") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.check()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
