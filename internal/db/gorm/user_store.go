// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/promptvault/pkg/models"
)

// UserStore provides account operations using GORM.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a new user store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{db: store.DB}
}

// Credentials is a user together with the stored password hash.
type Credentials struct {
	User         *models.User
	PasswordHash string
}

// Create inserts an account. A taken username yields ErrDuplicate.
func (s *UserStore) Create(ctx context.Context, username, passwordHash, name, email string) (*models.User, error) {
	if name == "" {
		name = username
	}
	u := &User{
		Username:     username,
		PasswordHash: passwordHash,
		Name:         nullString(name),
		Email:        nullString(email),
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %q", models.ErrDuplicate, username)
		}
		return nil, err
	}
	return toModelUser(u), nil
}

// GetCredentials looks an account up by username.
func (s *UserStore) GetCredentials(ctx context.Context, username string) (*Credentials, error) {
	var u User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %q", models.ErrNotFoundOrForbidden, username)
	}
	if err != nil {
		return nil, err
	}
	return &Credentials{User: toModelUser(&u), PasswordHash: u.PasswordHash}, nil
}

// GetByID returns an account by id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", models.ErrNotFoundOrForbidden, id)
	}
	if err != nil {
		return nil, err
	}
	return toModelUser(&u), nil
}

// TouchLogin records a successful login.
func (s *UserStore) TouchLogin(ctx context.Context, id int64) error {
	now, _ := timestamp(time.Now())
	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", now).Error
}
