// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/promptvault/pkg/models"
)

// VersionStore provides version snapshot operations using GORM.
type VersionStore struct {
	db *gorm.DB
}

// NewVersionStore creates a new version store.
func NewVersionStore(store *Store) *VersionStore {
	return &VersionStore{db: store.DB}
}

// WithTx returns a copy of the store bound to tx.
func (s *VersionStore) WithTx(tx *gorm.DB) *VersionStore {
	return &VersionStore{db: tx}
}

// NewSnapshot describes a version row to insert.
type NewSnapshot struct {
	Content       models.PromptContent
	VersionNumber string
	VersionTag    string
	VersionType   string
	ChangeType    string
	ChangeSummary string
	ChangeLog     string
	ContentHash   string
	PromptID      int64
	CreatedBy     int64
	TokenCount    int64
}

// Create inserts a snapshot. ContentSize is the byte length of final_prompt.
func (s *VersionStore) Create(ctx context.Context, snap NewSnapshot) (*models.Version, error) {
	v := &PromptVersion{
		PromptID:      snap.PromptID,
		VersionNumber: snap.VersionNumber,
		VersionTag:    snap.VersionTag,
		VersionType:   snap.VersionType,
		Content:       toContentColumns(snap.Content),
		ChangeType:    snap.ChangeType,
		ChangeSummary: snap.ChangeSummary,
		ChangeLog:     snap.ChangeLog,
		CreatedBy:     snap.CreatedBy,
		ContentSize:   int64(len(snap.Content.FinalPrompt)),
		TokenCount:    snap.TokenCount,
		ContentHash:   snap.ContentHash,
	}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return toModelVersion(v), nil
}

// Get returns a live version of an owned prompt. Deleted versions, versions
// of another prompt and prompts of another owner all yield
// ErrNotFoundOrForbidden.
func (s *VersionStore) Get(ctx context.Context, promptID, ownerID, versionID int64) (*models.Version, error) {
	var v PromptVersion
	err := s.db.WithContext(ctx).
		Select("prompt_versions.*").
		Joins("INNER JOIN prompts ON prompts.id = prompt_versions.prompt_id").
		Scopes(notDeleted, ownedBy(ownerID)).
		Where("prompt_versions.id = ? AND prompt_versions.prompt_id = ?", versionID, promptID).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: version %d of prompt %d", models.ErrNotFoundOrForbidden, versionID, promptID)
	}
	if err != nil {
		return nil, err
	}

	out := toModelVersion(&v)
	name, avatar, err := s.author(ctx, v.CreatedBy)
	if err != nil {
		return nil, err
	}
	out.AuthorName, out.AuthorAvatar = name, avatar
	return out, nil
}

func (s *VersionStore) author(ctx context.Context, userID int64) (string, string, error) {
	var u struct {
		Name   sql.NullString
		Avatar sql.NullString
	}
	err := s.db.WithContext(ctx).
		Model(&User{}).
		Select("name, avatar").
		Where("id = ?", userID).
		Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	return u.Name.String, u.Avatar.String, nil
}

// historyRow is one history item joined with its author.
type historyRow struct {
	ID             int64
	VersionNumber  string
	VersionTag     string
	VersionType    string
	ChangeSummary  string
	ContentSize    int64
	UseCount       int64
	CreatedBy      int64
	CreatedAt      string
	CreatedAtEpoch int64
	AuthorName     sql.NullString
	AuthorAvatar   sql.NullString
}

// History returns live versions of a prompt, newest first, optionally
// restricted to one tag, plus the total number of matches.
func (s *VersionStore) History(ctx context.Context, promptID int64, tag string, page, limit int) ([]*models.VersionSummary, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		db = notDeleted(db.Where("prompt_versions.prompt_id = ?", promptID))
		if tag != "" {
			db = db.Where("prompt_versions.version_tag = ?", tag)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&PromptVersion{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []historyRow
	err := s.db.WithContext(ctx).
		Table("prompt_versions").
		Select(`prompt_versions.id, prompt_versions.version_number, prompt_versions.version_tag,
			prompt_versions.version_type, prompt_versions.change_summary, prompt_versions.content_size,
			prompt_versions.use_count, prompt_versions.created_by, prompt_versions.created_at,
			prompt_versions.created_at_epoch, users.name AS author_name, users.avatar AS author_avatar`).
		Joins("LEFT JOIN users ON users.id = prompt_versions.created_by").
		Scopes(filter, Paginate(page, limit)).
		Order("prompt_versions.created_at_epoch DESC").
		Order("prompt_versions.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*models.VersionSummary, len(rows))
	for i, r := range rows {
		out[i] = &models.VersionSummary{
			ID:             r.ID,
			VersionNumber:  r.VersionNumber,
			VersionTag:     r.VersionTag,
			VersionType:    r.VersionType,
			ChangeSummary:  r.ChangeSummary,
			ContentSize:    r.ContentSize,
			UseCount:       r.UseCount,
			CreatedBy:      r.CreatedBy,
			CreatedAt:      r.CreatedAt,
			CreatedAtEpoch: r.CreatedAtEpoch,
			AuthorName:     r.AuthorName.String,
			AuthorAvatar:   r.AuthorAvatar.String,
		}
	}
	return out, total, nil
}

// UpdateTag changes the label of a version. Content is never touched.
func (s *VersionStore) UpdateTag(ctx context.Context, versionID int64, tag string) error {
	return s.db.WithContext(ctx).
		Model(&PromptVersion{}).
		Where("id = ?", versionID).
		UpdateColumn("version_tag", tag).Error
}

// SoftDelete marks a version deleted.
func (s *VersionStore) SoftDelete(ctx context.Context, versionID int64) error {
	return s.db.WithContext(ctx).
		Model(&PromptVersion{}).
		Where("id = ?", versionID).
		UpdateColumn("is_deleted", true).Error
}

// RecordRollback counts a rollback to the version as one rollback and one use.
func (s *VersionStore) RecordRollback(ctx context.Context, versionID int64) error {
	return s.db.WithContext(ctx).
		Model(&PromptVersion{}).
		Where("id = ?", versionID).
		UpdateColumns(map[string]interface{}{
			"rollback_count": gorm.Expr("rollback_count + 1"),
			"use_count":      gorm.Expr("use_count + 1"),
		}).Error
}

// CountLive returns the number of non-deleted versions of a prompt.
func (s *VersionStore) CountLive(ctx context.Context, promptID int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&PromptVersion{}).
		Scopes(notDeleted).
		Where("prompt_id = ?", promptID).
		Count(&n).Error
	return n, err
}
