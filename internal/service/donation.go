package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/paylink"
	"github.com/sakif/payapp/internal/repository"
)

// RecentAttempts is how many attempts the dashboard lists.
const RecentAttempts = 10

// LinkOptions customizes generated payment links.
type LinkOptions struct {
	Scheme   string // default paylink.DefaultScheme
	Currency string // optional cu= parameter
}

// DonationService records supporter activity and reads it back for the owner.
//
//	QRHandler        → DonationService.RecordAttempt → AnalyticsRepository (tx)
//	ProfileHandler   → DonationService.RecordView
//	DashboardHandler → DonationService.Dashboard / Reset
type DonationService struct {
	users     repository.UserRepository
	profiles  repository.ProfileRepository
	analytics repository.AnalyticsRepository
	links     LinkOptions
	logger    *slog.Logger
}

func NewDonationService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	analytics repository.AnalyticsRepository,
	links LinkOptions,
	logger *slog.Logger,
) *DonationService {
	return &DonationService{
		users:     users,
		profiles:  profiles,
		analytics: analytics,
		links:     links,
		logger:    logger,
	}
}

// AttemptResult is what a supporter gets back: the stored attempt and the
// deep link their payment app should open.
type AttemptResult struct {
	Attempt *model.DonationAttempt
	Link    string
}

// RecordAttempt checks, in this order, that the creator exists, that they
// have a payment id, and that amountRaw is a positive whole number. Only then
// is the attempt stored (one transaction with the qr_generations bump) and the
// link built. Calling it twice records two attempts.
func (s *DonationService) RecordAttempt(ctx context.Context, username, amountRaw string) (*AttemptResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, storageErr(s.logger, "loading creator", err)
	}

	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err != nil {
		return nil, storageErr(s.logger, "loading profile", err)
	}
	if !profile.HasPaymentID() {
		return nil, apperror.MissingPaymentID(username)
	}

	amount, err := ParseAmount(amountRaw)
	if err != nil {
		return nil, err
	}

	attempt, err := s.analytics.RecordAttempt(ctx, user.ID, amount)
	if err != nil {
		return nil, storageErr(s.logger, "recording attempt", err)
	}

	link := paylink.Link{
		Scheme:    s.links.Scheme,
		PaymentID: profile.PaymentID,
		Amount:    amount,
		Name:      user.Username,
		Currency:  s.links.Currency,
	}.String()

	s.logger.Info("donation attempt recorded",
		slog.String("userID", user.ID),
		slog.String("attemptID", attempt.ID),
		slog.Int64("amount", amount),
	)
	return &AttemptResult{Attempt: attempt, Link: link}, nil
}

// ParseAmount accepts only ASCII digits (after trimming whitespace) that
// parse to a value in 1..model.MaxAmount. Signs, decimals and exponents are
// rejected.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, apperror.InvalidAmount(raw)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, apperror.InvalidAmount(raw)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 || n > model.MaxAmount {
		return 0, apperror.InvalidAmount(raw)
	}
	return n, nil
}

// RecordView counts one visit to the creator's public page.
func (s *DonationService) RecordView(ctx context.Context, userID string) error {
	if err := s.analytics.IncrementPageViews(ctx, userID); err != nil {
		return storageErr(s.logger, "recording page view", err)
	}
	return nil
}

// Reset zeroes the counters and deletes every attempt. Callers must pass
// the authenticated user's own id.
func (s *DonationService) Reset(ctx context.Context, userID string) error {
	if err := s.analytics.ResetAnalytics(ctx, userID); err != nil {
		return storageErr(s.logger, "resetting analytics", err)
	}
	s.logger.Info("analytics reset", slog.String("userID", userID))
	return nil
}

func (s *DonationService) Stats(ctx context.Context, userID string) (model.Stats, error) {
	stats, err := s.analytics.AttemptStats(ctx, userID)
	if err != nil {
		return model.Stats{}, storageErr(s.logger, "computing stats", err)
	}
	return stats, nil
}

// Dashboard loads counters, stats and recent attempts concurrently.
// The three reads are independent, so the first error cancels the others.
func (s *DonationService) Dashboard(ctx context.Context, userID string) (*model.Dashboard, error) {
	var (
		dash     model.Dashboard
		counters *model.AnalyticsCounters
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counters, err = s.analytics.GetCounters(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		dash.Stats, err = s.analytics.AttemptStats(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		dash.Recent, err = s.analytics.ListAttempts(gctx, userID, repository.ListOptions{Limit: RecentAttempts})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storageErr(s.logger, "loading dashboard", err)
	}

	dash.Counters = *counters
	if dash.Recent == nil {
		dash.Recent = []model.DonationAttempt{}
	}
	return &dash, nil
}
