package service

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/Novip1906/tasks-live/internal/auth"
	"github.com/Novip1906/tasks-live/internal/config"
	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/pkg/logging"
)

type UserStorage interface {
	Create(ctx context.Context, username, password string) error
	Exists(ctx context.Context, username string) (bool, error)
	CheckPassword(ctx context.Context, username, password string) error
}

type Ledger interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	RevokeOnce(ctx context.Context, token string, expiresAt time.Time) (bool, error)
}

// AuthService is the session layer: it issues tokens on register and login,
// rotates them on token login, and revokes them on logout.
type AuthService struct {
	params config.Params
	log    *slog.Logger
	users  UserStorage
	tokens *auth.TokenAuthority
	ledger Ledger
}

func NewAuthService(params config.Params, log *slog.Logger, users UserStorage, tokens *auth.TokenAuthority, ledger Ledger) *AuthService {
	return &AuthService{
		params: params,
		log:    log.With(slog.String("component", "auth")),
		users:  users,
		tokens: tokens,
		ledger: ledger,
	}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (string, error) {
	log := s.log.With(slog.String("op", "register"), slog.String("username", username))

	if username == "" || password == "" {
		return "", appErrors.ErrMissingFields
	}
	if !lengthIsValid(username, s.params.Username) || !lengthIsValid(password, s.params.Password) {
		log.Debug("invalid credentials length")
		return "", appErrors.ErrInvalidParams
	}

	if err := s.users.Create(ctx, username, password); err != nil {
		log.Debug("create user failed", logging.Err(err))
		return "", err
	}

	token, _, err := s.tokens.Issue(username)
	if err != nil {
		return "", err
	}

	log.Info("user registered")
	return token, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	log := s.log.With(slog.String("op", "login"), slog.String("username", username))

	if username == "" || password == "" {
		return "", appErrors.ErrMissingFields
	}

	if err := s.users.CheckPassword(ctx, username, password); err != nil {
		log.Debug("password check failed", logging.Err(err))
		return "", err
	}

	token, _, err := s.tokens.Issue(username)
	if err != nil {
		return "", err
	}

	log.Info("user logged in")
	return token, nil
}

// Refresh trades a valid token for a new one. The presented token is
// revoked, so each token can be refreshed at most once.
func (s *AuthService) Refresh(ctx context.Context, token string) (string, string, error) {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return "", "", err
	}
	log := s.log.With(slog.String("op", "refresh"), slog.String("username", claims.Subject))

	exists, err := s.users.Exists(ctx, claims.Subject)
	if err != nil {
		return "", "", err
	}
	if !exists {
		log.Warn("token for unknown user")
		return "", "", appErrors.ErrUserNotFound
	}

	next, _, err := s.tokens.Issue(claims.Subject)
	if err != nil {
		return "", "", err
	}

	revoked, err := s.ledger.RevokeOnce(ctx, token, claims.ExpiresAt)
	if err != nil {
		return "", "", err
	}
	if !revoked {
		log.Warn("token refreshed concurrently")
		return "", "", appErrors.ErrTokenRevoked
	}

	log.Info("token rotated")
	return next, claims.Subject, nil
}

// Logout is idempotent: revoking an already revoked token succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return appErrors.ErrMissingFields
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}

	if err := s.ledger.Revoke(ctx, token, claims.ExpiresAt); err != nil {
		return err
	}

	s.log.Info("user logged out", slog.String("username", claims.Subject))
	return nil
}

// Authenticate checks revocation before the signature. A store failure is
// returned as an error and never treated as "not revoked".
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Claims, error) {
	if token == "" {
		return auth.Claims{}, appErrors.ErrMissingFields
	}

	revoked, err := s.ledger.IsRevoked(ctx, token)
	if err != nil {
		s.log.Error("revocation check failed", logging.StoreErr("exists", err))
		return auth.Claims{}, err
	}
	if revoked {
		return auth.Claims{}, appErrors.ErrTokenRevoked
	}

	return s.tokens.Verify(token)
}

func lengthIsValid(value string, bounds config.MinMaxLen) bool {
	length := utf8.RuneCountInString(value)
	return length >= bounds.Min && length <= bounds.Max
}
