package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/payapp/internal/apperror"
	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/model"
	"github.com/sakif/payapp/internal/repository"
	"github.com/sakif/payapp/internal/validation"
)

const msgBadLogin = "Please enter a correct username and password. Note that both fields may be case-sensitive."

// AccountService owns sign-up, login and session issuance.
//
//	AccountHandler (HTTP) → AccountService → UserRepository (DB)
//	                                       ↘ TokenService (JWT), PasswordService (bcrypt)
type AccountService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and a freshly issued session token so the
// handler can set the cookie and redirect in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Signup validates input, creates the identity (with its profile and
// analytics rows) and logs the new user in.
//
// UNIQUENESS:
// UsernameExists/EmailExists are a fast path so the form can show both
// "taken" messages at once. Two concurrent signups can both pass them; the
// UNIQUE constraints in CreateIdentity then decide, and the loser gets the
// same DuplicateField error.
func (s *AccountService) Signup(ctx context.Context, in validation.SignupInput) (*AuthResult, error) {
	in, err := validation.Signup(in)
	if err != nil {
		return nil, err
	}

	var dup *apperror.AppError
	taken, err := s.users.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, storageErr(s.logger, "checking username", err)
	}
	if taken {
		dup = apperror.DuplicateField("username", "This username is already taken.")
	}
	taken, err = s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, storageErr(s.logger, "checking email", err)
	}
	if taken {
		const msg = "This email address is already in use."
		if dup == nil {
			dup = apperror.DuplicateField("email", msg)
		} else {
			dup.Fields["email"] = msg
		}
	}
	if dup != nil {
		return nil, dup
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password must be at most 72 bytes.")
	}

	user := &model.User{Username: in.Username, Email: in.Email, PasswordHash: hash}
	if err := s.users.CreateIdentity(ctx, user); err != nil {
		return nil, storageErr(s.logger, "creating identity", err)
	}

	s.logger.Info("creator signed up",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// Login authenticates username + password.
//
// Every failure (unknown user, wrong password, GitHub-only account with no
// password) returns the same Unauthorized message, and unknown users still
// pay for one bcrypt comparison, so neither the message nor the timing tells
// an attacker which usernames exist.
func (s *AccountService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Burn(password)
			return nil, apperror.Unauthorized(msgBadLogin)
		}
		return nil, storageErr(s.logger, "loading user for login", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed", slog.String("username", username))
		return nil, apperror.Unauthorized(msgBadLogin)
	}

	s.logger.Info("creator logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
// Accounts are linked by GitHub's numeric id, never by login or email, since
// both can change on GitHub. First sign-in creates the identity through the
// same transactional CreateIdentity as the signup form:
//   - username: the GitHub login, or login-<id> if that is taken
//   - email: the GitHub email lowercased, or the noreply address if hidden or taken
func (s *AccountService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/account: GitHub user must not be nil")
	}

	existing, err := s.users.GetUserByGitHubID(ctx, ghUser.ID)
	if err == nil {
		s.logger.Info("creator logged in via GitHub", slog.String("userID", existing.ID))
		return s.issue(existing)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, storageErr(s.logger, "loading GitHub user", err)
	}

	// Stored lowercased like signup emails, so both backends compare them alike.
	email := strings.ToLower(strings.TrimSpace(ghUser.Email))
	if email != "" {
		taken, err := s.users.EmailExists(ctx, email)
		if err != nil {
			return nil, storageErr(s.logger, "checking email", err)
		}
		if taken {
			email = ""
		}
	}
	if email == "" {
		email = auth.NoReplyEmail(ghUser)
	}

	candidates := []string{ghUser.Login, fmt.Sprintf("%s-%d", ghUser.Login, ghUser.ID)}
	for _, username := range candidates {
		if validation.Username(username) != nil {
			continue
		}
		user := &model.User{Username: username, Email: email, GitHubID: ghUser.ID}
		err := s.users.CreateIdentity(ctx, user)
		if err == nil {
			s.logger.Info("creator signed up via GitHub",
				slog.String("userID", user.ID),
				slog.String("username", user.Username),
				slog.Int64("githubID", ghUser.ID),
			)
			return s.issue(user)
		}

		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) && appErr.Field == "username" {
			continue
		}
		return nil, storageErr(s.logger, "creating GitHub identity", err)
	}

	return nil, apperror.DuplicateField("username", "This username is already taken.")
}

func (s *AccountService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, storageErr(s.logger, "loading user", err)
	}
	return user, nil
}

// ValidateToken returns the userID a session token encodes.
func (s *AccountService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", apperror.Unauthorized("valid authentication required")
	}
	return userID, nil
}

// SessionTTL is how long issued tokens (and so cookies) last.
func (s *AccountService) SessionTTL() time.Duration { return s.tokens.TTL() }

func (s *AccountService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, apperror.Storage("issuing session token", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
