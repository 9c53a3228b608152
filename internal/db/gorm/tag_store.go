// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/promptvault/pkg/models"
)

// MaxTagLength is the longest accepted tag name in bytes.
const MaxTagLength = 64

// TagStore provides per-user tag operations using GORM.
type TagStore struct {
	db *gorm.DB
}

// NewTagStore creates a new tag store.
func NewTagStore(store *Store) *TagStore {
	return &TagStore{db: store.DB}
}

// WithTx returns a copy of the store bound to tx.
func (s *TagStore) WithTx(tx *gorm.DB) *TagStore {
	return &TagStore{db: tx}
}

// NormalizeTags trims names, drops empty or overlong ones and removes
// duplicates while keeping first-seen order.
func NormalizeTags(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || len(n) > MaxTagLength {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Touch records one use of each tag, creating missing tags with a count of 1.
func (s *TagStore) Touch(ctx context.Context, ownerID int64, names []string) error {
	for _, name := range NormalizeTags(names) {
		tag := &PromptTag{OwnerID: ownerID, TagName: name, UseCount: 1}
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "tag_name"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"use_count": gorm.Expr("prompt_tags.use_count + 1"),
				}),
			}).
			Create(tag).Error
		if err != nil {
			return fmt.Errorf("touch tag %q: %w", name, err)
		}
	}
	return nil
}

// Create returns the owner's tag with this name, creating it with a zero
// count if needed. created reports whether a row was inserted.
func (s *TagStore) Create(ctx context.Context, ownerID int64, name string) (tag *models.Tag, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, models.Validationf("tag name is required")
	}
	if len(name) > MaxTagLength {
		return nil, false, models.Validationf("tag name longer than %d bytes", MaxTagLength)
	}

	if existing, err := s.byName(ctx, ownerID, name); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	row := &PromptTag{OwnerID: ownerID, TagName: name}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent create.
			existing, gerr := s.byName(ctx, ownerID, name)
			if gerr != nil {
				return nil, false, gerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return toModelTag(row), true, nil
}

func (s *TagStore) byName(ctx context.Context, ownerID int64, name string) (*models.Tag, error) {
	var t PromptTag
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND tag_name = ?", ownerID, name).
		Take(&t).Error
	if err != nil {
		return nil, err
	}
	return toModelTag(&t), nil
}

// Get returns a tag by name, or ErrNotFoundOrForbidden.
func (s *TagStore) Get(ctx context.Context, ownerID int64, name string) (*models.Tag, error) {
	t, err := s.byName(ctx, ownerID, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: tag %q", models.ErrNotFoundOrForbidden, name)
	}
	return t, err
}

// List returns the owner's tags, most used first, then newest first.
func (s *TagStore) List(ctx context.Context, ownerID int64, limit int) ([]*models.Tag, error) {
	return s.find(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", ownerID)
	})
}

// Popular returns the owner's tags that have been used at least once.
func (s *TagStore) Popular(ctx context.Context, ownerID int64, limit int) ([]*models.Tag, error) {
	return s.find(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND use_count > 0", ownerID)
	})
}

func (s *TagStore) find(ctx context.Context, limit int, filter func(*gorm.DB) *gorm.DB) ([]*models.Tag, error) {
	var rows []PromptTag
	query := s.db.WithContext(ctx).
		Scopes(filter).
		Order("use_count DESC").
		Order("created_at_epoch DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*models.Tag, len(rows))
	for i := range rows {
		out[i] = toModelTag(&rows[i])
	}
	return out, nil
}

// Delete removes one of the owner's tags. Prompts keep the label text.
func (s *TagStore) Delete(ctx context.Context, ownerID, id int64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&PromptTag{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: tag %d", models.ErrNotFoundOrForbidden, id)
	}
	return nil
}
