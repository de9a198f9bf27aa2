package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/repository"
	"github.com/Shivanand-hulikatti/carnival-tickets/internal/session"
)

// AuthService owns accounts and login sessions.
type AuthService struct {
	users    repository.UserStore
	sessions repository.SessionStore
	tokens   *session.Issuer
	ttl      time.Duration
	cost     int
	now      func() time.Time
	logger   *slog.Logger
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) { s.cost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService constructs an AuthService. Sessions live for ttl.
func NewAuthService(
	users repository.UserStore,
	sessions repository.SessionStore,
	tokens *session.Issuer,
	ttl time.Duration,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates req and creates the account.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	switch {
	case req.Username == "":
		return nil, invalid("username", "username is required")
	case strings.ContainsAny(req.Username, " \t\r\n"):
		return nil, invalid("username", "username must not contain spaces")
	case req.Email == "":
		return nil, invalid("email", "email is required")
	case !isValidEmail(req.Email):
		return nil, invalid("email", "email is not a valid email address")
	case req.FullName == "":
		return nil, invalid("full_name", "full name is required")
	case req.Password == "":
		return nil, invalid("password", "password is required")
	case req.Password != req.Confirm:
		return nil, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login checks the credentials and opens a session. It returns the signed
// token that identifies the session.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	token, err := s.tokens.Issue(sess.ID, user.ID, sess.ExpiresAt)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

// Logout ends the session named by token. Unknown or malformed tokens are
// ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("user logged out", "user_id", claims.UserID)
	return nil
}

// Authenticate resolves token to its user. Any token that does not name a
// live session yields ErrUnauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.UserID != claims.UserID {
		return nil, ErrUnauthenticated
	}
	if sess.Expired(s.now()) {
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
