package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.Store. It enforces the same unique
// fields as the real schemas so services see the same DuplicateField errors.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	profiles map[string]*model.Profile
	counters map[string]*model.AnalyticsCounters
	attempts []model.DonationAttempt
	nextID   int

	// set to a non-nil error to simulate a database failure
	createErr  error
	lookupErr  error
	attemptErr error
	updateErr  error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		profiles: make(map[string]*model.Profile),
		counters: make(map[string]*model.AnalyticsCounters),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreateIdentity(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		switch {
		case u.Username == user.Username:
			return apperror.DuplicateField("username", "This username is already taken.")
		case strings.EqualFold(u.Email, user.Email):
			return apperror.DuplicateField("email", "This email address is already in use.")
		case user.GitHubID != 0 && u.GitHubID == user.GitHubID:
			return apperror.DuplicateField("github_id", "This GitHub account is already linked.")
		}
	}

	user.ID = f.id("user")
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	f.profiles[user.ID] = &model.Profile{UserID: user.ID, Bio: model.DefaultBio}
	f.counters[user.ID] = &model.AnalyticsCounters{UserID: user.ID}
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("creator", username)
}

func (f *fakeStore) GetUserByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, u := range f.users {
		if u.GitHubID != 0 && u.GitHubID == githubID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

func (f *fakeStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := f.GetUserByUsername(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeStore) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, profile *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.profiles[profile.UserID]; !ok {
		return apperror.NotFound("profile", profile.UserID)
	}
	for id, p := range f.profiles {
		if id != profile.UserID && profile.PaymentID != "" && p.PaymentID == profile.PaymentID {
			return apperror.DuplicateField("payment_id", "This UPI ID is already used by another creator.")
		}
	}
	copied := *profile
	copied.UpdatedAt = time.Now()
	f.profiles[profile.UserID] = &copied
	return nil
}

func (f *fakeStore) PaymentIDTaken(_ context.Context, paymentID, exceptUserID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.profiles {
		if id != exceptUserID && p.PaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SearchCreators(_ context.Context, query string, opts repository.ListOptions) ([]model.Creator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []model.Creator
	for id, u := range f.users {
		p := f.profiles[id]
		if q == "" || strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(p.Bio), q) {
			out = append(out, model.Creator{User: *u, Profile: *p})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) RecordAttempt(_ context.Context, userID string, amount int64) (*model.DonationAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attemptErr != nil {
		return nil, f.attemptErr
	}
	c, ok := f.counters[userID]
	if !ok {
		return nil, apperror.NotFound("analytics", userID)
	}
	c.QRGenerations++
	a := model.DonationAttempt{ID: f.id("attempt"), UserID: userID, Amount: amount, CreatedAt: time.Now()}
	f.attempts = append(f.attempts, a)
	return &a, nil
}

func (f *fakeStore) IncrementPageViews(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[userID]
	if !ok {
		return apperror.NotFound("analytics", userID)
	}
	c.PageViews++
	return nil
}

func (f *fakeStore) ResetAnalytics(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[userID]
	if !ok {
		return apperror.NotFound("analytics", userID)
	}
	c.PageViews, c.QRGenerations = 0, 0
	kept := f.attempts[:0]
	for _, a := range f.attempts {
		if a.UserID != userID {
			kept = append(kept, a)
		}
	}
	f.attempts = kept
	return nil
}

func (f *fakeStore) GetCounters(_ context.Context, userID string) (*model.AnalyticsCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[userID]
	if !ok {
		return nil, apperror.NotFound("analytics", userID)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) AttemptStats(_ context.Context, userID string) (model.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s model.Stats
	for _, a := range f.attempts {
		if a.UserID != userID {
			continue
		}
		s.TotalAmount += a.Amount
		if a.Amount > s.HighestAmount {
			s.HighestAmount = a.Amount
		}
	}
	return s, nil
}

func (f *fakeStore) ListAttempts(_ context.Context, userID string, opts repository.ListOptions) ([]model.DonationAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DonationAttempt
	for i := len(f.attempts) - 1; i >= 0; i-- {
		if f.attempts[i].UserID == userID {
			out = append(out, f.attempts[i])
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// fakeAvatars records Put/Delete calls in memory.
type fakeAvatars struct {
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeAvatars() *fakeAvatars {
	return &fakeAvatars{objects: make(map[string][]byte)}
}

func (f *fakeAvatars) Put(_ context.Context, key string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeAvatars) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeAvatars) URL(key string) string {
	if key == "" {
		return ""
	}
	return "/media/" + key
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestAccountService returns an AccountService wired with fake dependencies.
// Cost 4 is the bcrypt minimum, which keeps tests fast.
func newTestAccountService(t *testing.T, store *fakeStore) *AccountService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAccountService(store, ts, auth.NewPasswordServiceForTest(4), testLogger())
}

// seedCreator inserts a creator directly into the fake, optionally with a payment id.
func seedCreator(t *testing.T, store *fakeStore, username, paymentID string) *model.User {
	t.Helper()

	u := &model.User{Username: username, Email: username + "@example.com"}
	if err := store.CreateIdentity(context.Background(), u); err != nil {
		t.Fatalf("CreateIdentity(%s): %v", username, err)
	}
	if paymentID != "" {
		store.profiles[u.ID].PaymentID = paymentID
	}
	return u
}
