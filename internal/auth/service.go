package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	gormdb "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/pkg/models"
)

// Credential limits.
const (
	MinPasswordLength = 6
	MaxUsernameLength = 64
)

// Session is returned after a successful register or login.
type Session struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Service registers and authenticates users.
type Service struct {
	users  *gormdb.UserStore
	tokens *Tokens
	cost   int
}

// NewService creates an auth service.
func NewService(store *gormdb.Store, tokens *Tokens) *Service {
	return &Service{
		users:  gormdb.NewUserStore(store),
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
	}
}

// Tokens returns the token issuer used by the service.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// Register creates an account and logs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > MaxUsernameLength {
		return nil, models.Validationf("username must be 1 to %d characters", MaxUsernameLength)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, models.Validationf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, models.Validationf("password is too long")
		}
		return nil, err
	}

	user, err := s.users.Create(ctx, username, string(hash), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email))
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", user.ID).Str("username", username).Msg("User registered")
	return s.session(user)
}

// Login checks a username and password. Unknown users and wrong passwords
// both yield models.ErrUnauthorized.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	creds, err := s.users.GetCredentials(ctx, strings.TrimSpace(username))
	if errors.Is(err, models.ErrNotFoundOrForbidden) {
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		log.Debug().Str("username", username).Msg("Login rejected")
		return nil, models.ErrUnauthorized
	}

	if err := s.users.TouchLogin(ctx, creds.User.ID); err != nil {
		log.Warn().Err(err).Int64("user_id", creds.User.ID).Msg("Failed to record login time")
	}
	return s.session(creds.User)
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expires}, nil
}

// User returns the account behind an authenticated id.
func (s *Service) User(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}
