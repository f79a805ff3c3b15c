package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/service"
	"github.com/sakif/payapp/internal/validation"
)

const oauthStateCookie = "oauth_state"

// AuthHandler manages sign-up, login, logout and the GitHub OAuth flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignupForm / HandleSignup → create an account, log it in
//   - HandleLoginForm / HandleLogin   → username + password login
//   - HandleLogout                    → clear the session cookie
//   - HandleGitHubLogin / Callback    → GitHub sign-in (only when configured)
//   - HandleMe                        → JSON view of the current user
type AuthHandler struct {
	accounts *service.AccountService
	github   *auth.GitHubProvider // nil when GitHub sign-in is not configured
	render   *Renderer
	secure   bool // Secure flag on cookies; true in production (HTTPS)
	logger   *slog.Logger
}

func NewAuthHandler(
	accounts *service.AccountService,
	github *auth.GitHubProvider,
	render *Renderer,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		github:   github,
		render:   render,
		secure:   secure,
		logger:   logger,
	}
}

// authPage is the Data payload of the signup and login templates.
type authPage struct {
	Next          string
	GitHubEnabled bool
}

// HandleSignupForm shows the registration form.
//
// HTTP: GET /signup
func (h *AuthHandler) HandleSignupForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserIDFromContext(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, http.StatusOK, "signup", PageData{
		Title: "Sign Up",
		Data:  authPage{GitHubEnabled: h.github != nil},
	})
}

// HandleSignup creates the account and logs it in.
//
// HTTP: POST /signup (form: username, email, password, password2)
//
// On a validation or duplicate error the form is rendered again with the
// per-field messages; passwords are never echoed back.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	in := validation.SignupInput{
		Username:  r.PostFormValue("username"),
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		Password2: r.PostFormValue("password2"),
	}

	result, err := h.accounts.Signup(r.Context(), in)
	if err != nil {
		if !apperror.IsKind(err) || errors.Is(err, apperror.ErrStorage) {
			h.render.RenderError(w, r, err)
			return
		}
		status, _ := statusFor(err)
		h.render.Render(w, r, status, "signup", PageData{
			Title:  "Sign Up",
			Form:   map[string]string{"username": in.Username, "email": in.Email},
			Errors: fieldErrors(err),
			Data:   authPage{GitHubEnabled: h.github != nil},
		})
		return
	}

	auth.SetSessionCookie(w, result.Token, h.accounts.SessionTTL(), h.secure)
	setFlash(w, "success", "Account created successfully! Welcome to your dashboard.")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLoginForm shows the login form.
//
// HTTP: GET /login?next=/settings
func (h *AuthHandler) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if _, ok := auth.UserIDFromContext(r.Context()); ok {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, http.StatusOK, "login", PageData{
		Title: "Login",
		Data:  authPage{Next: next, GitHubEnabled: h.github != nil},
	})
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /login (form: username, password, next)
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	next := safeNext(r.PostFormValue("next"))

	result, err := h.accounts.Login(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, apperror.ErrUnauthorized) {
			h.render.RenderError(w, r, err)
			return
		}
		h.render.Render(w, r, http.StatusUnauthorized, "login", PageData{
			Title:  "Login",
			Form:   map[string]string{"username": username},
			Errors: map[string]string{"__all__": publicMessage(err)},
			Data:   authPage{Next: next, GitHubEnabled: h.github != nil},
		})
		return
	}

	auth.SetSessionCookie(w, result.Token, h.accounts.SessionTTL(), h.secure)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /logout
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by an <img> tag on another
// site or by a browser prefetching links.
//
// Sessions are stateless JWTs, so "logout" means deleting the cookie. The
// token itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secure)
	setFlash(w, "info", "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the
// authorization URL. The callback only proceeds when both match, which proves
// this browser started the flow.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Find or create the identity (AccountService.LoginOrRegisterGitHub)
//  4. Set the session cookie and redirect to the dashboard
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: invalid state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	// GitHub sends ?error=access_denied when the user clicks "Cancel".
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		setFlash(w, "warning", "GitHub sign-in was cancelled.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		setFlash(w, "error", "GitHub sign-in failed. Please try again.")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	// --- Step 3: Find or create the identity ---
	result, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.render.RenderError(w, r, err)
		return
	}

	// --- Step 4: Session cookie ---
	auth.SetSessionCookie(w, result.Token, h.accounts.SessionTTL(), h.secure)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleMe returns the currently authenticated user.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		logIfInternal(h.logger, r, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// safeNext only allows same-site paths as a post-login redirect target.
// "//evil.example" and "/\evil.example" are treated by browsers as other
// hosts, so they are rejected along with absolute URLs.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}
