package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/avatar"
	"github.com/sakif/payapp/internal/handler"
	"github.com/sakif/payapp/internal/paylink"
	"github.com/sakif/payapp/internal/repository/sqlite"
	"github.com/sakif/payapp/internal/service"
	"github.com/sakif/payapp/internal/validation"
	"github.com/sakif/payapp/web"
)

// testApp wires the real services over an in-memory SQLite database and
// mounts the handlers on the same routes the server uses.
type testApp struct {
	router    http.Handler
	store     *sqlite.DB
	accounts  *service.AccountService
	profiles  *service.ProfileService
	donations *service.DonationService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	avatars, err := avatar.NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("handler-test-secret", time.Hour)
	require.NoError(t, err)

	app := &testApp{
		store:     store,
		accounts:  service.NewAccountService(store, tokens, auth.NewPasswordServiceForTest(4), logger),
		profiles:  service.NewProfileService(store, store, avatars, logger),
		donations: service.NewDonationService(store, store, store, service.LinkOptions{}, logger),
	}

	renderer, err := handler.NewRenderer(web.FS, avatars.URL, logger)
	require.NoError(t, err)

	authH := handler.NewAuthHandler(app.accounts, nil, renderer, false, logger)
	profileH := handler.NewProfileHandler(app.profiles, app.donations, renderer, logger)
	donationH := handler.NewDonationHandler(app.donations, app.profiles, renderer, paylink.DefaultQRSize, logger)
	pageH := handler.NewPageHandler(renderer, store, logger)

	r := chi.NewRouter()
	r.Get("/healthz", pageH.HandleHealth)
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))
		r.Get("/", pageH.HandleHome)
		r.Get("/signup", authH.HandleSignupForm)
		r.Post("/signup", authH.HandleSignup)
		r.Get("/login", authH.HandleLoginForm)
		r.Post("/login", authH.HandleLogin)
		r.Post("/logout", authH.HandleLogout)
		r.Get("/profile/{username}", profileH.HandleCreatorProfile)
		r.Get("/find", profileH.HandleFind)
		r.Post("/qr-generate/{username}", donationH.HandleQRGenerate)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin(tokens))
		r.Get("/dashboard", donationH.HandleDashboard)
		r.Get("/me", profileH.HandleMyProfile)
		r.Get("/settings", profileH.HandleSettingsForm)
		r.Post("/settings", profileH.HandleSettings)
		r.Post("/reset-analytics", donationH.HandleResetAnalytics)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", authH.HandleMe)
		r.Get("/dashboard", donationH.HandleDashboardAPI)
	})
	r.NotFound(renderer.NotFound)

	app.router = r
	return app
}

// creator signs up username and optionally sets a payment id. It returns
// the user id and a session token.
func (a *testApp) creator(t *testing.T, username, paymentID string) (string, string) {
	t.Helper()
	ctx := context.Background()

	res, err := a.accounts.Signup(ctx, validation.SignupInput{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "s3cret-pass",
		Password2: "s3cret-pass",
	})
	require.NoError(t, err)

	if paymentID != "" {
		_, err := a.profiles.Update(ctx, res.User.ID, service.ProfileUpdate{PaymentID: paymentID, Bio: "hello"})
		require.NoError(t, err)
	}
	return res.User.ID, res.Token
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	return req
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
