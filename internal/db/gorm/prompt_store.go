// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/thebtf/promptvault/pkg/models"
)

// PromptStore provides prompt-related database operations using GORM.
type PromptStore struct {
	db *gorm.DB
}

// NewPromptStore creates a new prompt store.
func NewPromptStore(store *Store) *PromptStore {
	return &PromptStore{db: store.DB}
}

// WithTx returns a copy of the store bound to tx.
func (s *PromptStore) WithTx(tx *gorm.DB) *PromptStore {
	return &PromptStore{db: tx}
}

// Create inserts a new prompt and returns it with its id.
func (s *PromptStore) Create(ctx context.Context, ownerID int64, content models.PromptContent, currentVersion string, totalVersions int, contentHash string) (*models.Prompt, error) {
	now, nowEpoch := timestamp(time.Now())
	p := &Prompt{
		OwnerID:        ownerID,
		Content:        toContentColumns(content),
		CurrentVersion: currentVersion,
		TotalVersions:  totalVersions,
		LastVersionAt:  nullString(now),
		ContentHash:    contentHash,
		CreatedAt:      now,
		CreatedAtEpoch: nowEpoch,
		UpdatedAt:      now,
		UpdatedAtEpoch: nowEpoch,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return toModelPrompt(p), nil
}

// Get returns the prompt if it exists and belongs to ownerID.
func (s *PromptStore) Get(ctx context.Context, id, ownerID int64) (*models.Prompt, error) {
	var p Prompt
	err := s.db.WithContext(ctx).
		Scopes(ownedBy(ownerID)).
		Where("prompts.id = ?", id).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: prompt %d", models.ErrNotFoundOrForbidden, id)
	}
	if err != nil {
		return nil, err
	}
	return toModelPrompt(&p), nil
}

// UpdateContent overwrites the content columns. The write only lands while the
// stored content hash still equals expectedHash; otherwise ErrConflict.
func (s *PromptStore) UpdateContent(ctx context.Context, id int64, expectedHash string, content models.PromptContent, newHash string, isPublic *bool) error {
	now, nowEpoch := timestamp(time.Now())
	updates := toContentColumns(content).assignments()
	updates["content_hash"] = newHash
	updates["updated_at"] = now
	updates["updated_at_epoch"] = nowEpoch
	if isPublic != nil {
		updates["is_public"] = *isPublic
	}

	result := s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ? AND content_hash = ?", id, expectedHash).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: prompt %d content changed concurrently", models.ErrConflict, id)
	}
	return nil
}

// BumpVersion promotes newVersion to current and counts it, as long as the
// current version is still expectedCurrent; otherwise ErrConflict.
func (s *PromptStore) BumpVersion(ctx context.Context, id int64, expectedCurrent, newVersion string) error {
	now, nowEpoch := timestamp(time.Now())
	result := s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ? AND current_version = ?", id, expectedCurrent).
		Updates(map[string]interface{}{
			"current_version":   newVersion,
			"total_versions":    gorm.Expr("total_versions + 1"),
			"last_version_time": now,
			"updated_at":        now,
			"updated_at_epoch":  nowEpoch,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: prompt %d moved past version %s", models.ErrConflict, id, expectedCurrent)
	}
	return nil
}

// ApplyRollback copies a snapshot onto the prompt and makes version current.
// total_versions is left as is.
func (s *PromptStore) ApplyRollback(ctx context.Context, id int64, content models.PromptContent, contentHash, version string) error {
	now, nowEpoch := timestamp(time.Now())
	updates := toContentColumns(content).assignments()
	updates["content_hash"] = contentHash
	updates["current_version"] = version
	updates["last_version_time"] = now
	updates["updated_at"] = now
	updates["updated_at_epoch"] = nowEpoch

	return s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DecrementTotalVersions lowers total_versions by one, never below zero.
func (s *PromptStore) DecrementTotalVersions(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ? AND total_versions > 0", id).
		Update("total_versions", gorm.Expr("total_versions - 1")).Error
}

// List returns one page of the owner's prompts and the total match count.
func (s *PromptStore) List(ctx context.Context, ownerID int64, opts models.PromptListOptions) ([]*models.Prompt, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		db = ownedBy(ownerID)(db)
		if kw := strings.TrimSpace(opts.Keyword); kw != "" {
			pattern := "%" + strings.ToLower(escapeLike(kw)) + "%"
			db = db.Where(
				`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(final_prompt) LIKE ? ESCAPE '\')`,
				pattern, pattern, pattern,
			)
		}
		if tag := strings.TrimSpace(opts.Tag); tag != "" {
			db = db.Where(`tags LIKE ? ESCAPE '\'`, tagPattern(tag))
		}
		if opts.IsFavorite != nil {
			db = db.Where("is_favorite = ?", *opts.IsFavorite)
		}
		return db
	}

	var total int64
	err := s.db.WithContext(ctx).Model(&Prompt{}).Scopes(filter).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var rows []Prompt
	err = s.db.WithContext(ctx).
		Scopes(filter).
		Order(sortColumn(opts.Sort) + " DESC").
		Order("id DESC").
		Scopes(Paginate(opts.Page, opts.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*models.Prompt, len(rows))
	for i := range rows {
		out[i] = toModelPrompt(&rows[i])
	}
	return out, total, nil
}

// tagPattern matches one element of the JSON tags column. The element is
// encoded exactly as models.JSONStringArray writes it, escapes included.
func tagPattern(tag string) string {
	encoded, _ := json.Marshal(tag)
	return "%" + escapeLike(string(encoded)) + "%"
}

func sortColumn(sort models.PromptSort) string {
	switch sort {
	case models.SortUpdateTime:
		return "updated_at_epoch"
	case models.SortViewCount:
		return "view_count"
	case models.SortUseCount:
		return "use_count"
	default:
		return "created_at_epoch"
	}
}

// IncrementViewCount adds one view.
func (s *PromptStore) IncrementViewCount(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

// IncrementUseCount adds one use to an owned prompt.
func (s *PromptStore) IncrementUseCount(ctx context.Context, id, ownerID int64) error {
	result := s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		UpdateColumn("use_count", gorm.Expr("use_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: prompt %d", models.ErrNotFoundOrForbidden, id)
	}
	return nil
}

// SetFavorite stores the favorite flag of an owned prompt.
func (s *PromptStore) SetFavorite(ctx context.Context, id, ownerID int64, favorite bool) error {
	return s.setFlag(ctx, id, ownerID, "is_favorite", favorite)
}

// SetPublic stores the public flag of an owned prompt.
func (s *PromptStore) SetPublic(ctx context.Context, id, ownerID int64, public bool) error {
	return s.setFlag(ctx, id, ownerID, "is_public", public)
}

func (s *PromptStore) setFlag(ctx context.Context, id, ownerID int64, column string, value bool) error {
	result := s.db.WithContext(ctx).
		Model(&Prompt{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		UpdateColumn(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: prompt %d", models.ErrNotFoundOrForbidden, id)
	}
	return nil
}

// Delete removes an owned prompt together with its versions.
func (s *PromptStore) Delete(ctx context.Context, id, ownerID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&Prompt{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: prompt %d", models.ErrNotFoundOrForbidden, id)
		}
		// Covered by ON DELETE CASCADE where foreign keys are enforced.
		return tx.Where("prompt_id = ?", id).Delete(&PromptVersion{}).Error
	})
}
