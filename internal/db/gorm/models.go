// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/promptvault/pkg/models"
)

// GORM Models

// Note: JSON array columns use models.JSONStringArray, which implements
// sql.Scanner and driver.Valuer.

// User is an account owning prompts and tags.
type User struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	Username       string         `gorm:"uniqueIndex;not null"`
	PasswordHash   string         `gorm:"not null"`
	Name           sql.NullString `gorm:"type:text"`
	Avatar         sql.NullString `gorm:"type:text"`
	Email          sql.NullString `gorm:"type:text"`
	LastLoginAt    sql.NullString
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// BeforeCreate hook to ensure timestamps are set.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAtEpoch == 0 {
		u.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// ContentColumns are the prompt fields captured by every version snapshot.
// They are embedded into both Prompt and PromptVersion.
type ContentColumns struct {
	Title               string                 `gorm:"type:text;not null"`
	Description         string                 `gorm:"type:text"`
	RequirementReport   string                 `gorm:"type:text"`
	ThinkingPoints      models.JSONStringArray `gorm:"type:text"` // JSON array
	InitialPrompt       string                 `gorm:"type:text"`
	Advice              models.JSONStringArray `gorm:"type:text"` // JSON array
	FinalPrompt         string                 `gorm:"type:text"`
	Language            string                 `gorm:"type:text"`
	Format              string                 `gorm:"type:text"`
	PromptType          string                 `gorm:"type:text;not null"`
	SystemPrompt        string                 `gorm:"type:text"`
	ConversationHistory string                 `gorm:"type:text"`
	Tags                models.JSONStringArray `gorm:"type:text"` // JSON array
}

// Prompt is the mutable current state of a prompt.
type Prompt struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	OwnerID        int64          `gorm:"column:user_id;index:idx_prompts_owner_created,priority:1;not null"`
	Content        ContentColumns `gorm:"embedded"`
	IsFavorite     bool           `gorm:"not null;default:false"`
	IsPublic       bool           `gorm:"not null;default:false"`
	ViewCount      int64          `gorm:"default:0"`
	UseCount       int64          `gorm:"default:0"`
	CurrentVersion string         `gorm:"type:text;not null"`
	TotalVersions  int            `gorm:"default:0"`
	LastVersionAt  sql.NullString `gorm:"column:last_version_time"`
	ContentHash    string         `gorm:"type:text;not null;default:''"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_prompts_owner_created,priority:2,sort:desc;not null"`
	UpdatedAt      string         `gorm:"not null"`
	UpdatedAtEpoch int64          `gorm:"not null"`
}

func (Prompt) TableName() string { return "prompts" }

// BeforeCreate hook to ensure timestamps are set.
func (p *Prompt) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = now.UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = now.Format(time.RFC3339)
	}
	if p.UpdatedAtEpoch == 0 {
		p.UpdatedAtEpoch = p.CreatedAtEpoch
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = p.CreatedAt
	}
	return nil
}

// PromptVersion is an immutable snapshot of a prompt.
type PromptVersion struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	PromptID       int64          `gorm:"index:idx_versions_prompt_created,priority:1;not null"`
	Prompt         *Prompt        `gorm:"foreignKey:PromptID;constraint:OnDelete:CASCADE"`
	VersionNumber  string         `gorm:"type:text;not null"`
	VersionTag     string         `gorm:"type:text;index"`
	VersionType    string         `gorm:"type:text;not null"`
	Content        ContentColumns `gorm:"embedded"`
	ChangeType     string         `gorm:"type:text"`
	ChangeSummary  string         `gorm:"type:text"`
	ChangeLog      string         `gorm:"type:text"`
	CreatedBy      int64          `gorm:"index;not null"`
	ContentSize    int64          `gorm:"default:0"`
	TokenCount     int64          `gorm:"default:0"`
	ContentHash    string         `gorm:"type:text"`
	UseCount       int64          `gorm:"default:0"`
	RollbackCount  int64          `gorm:"default:0"`
	IsDeleted      bool           `gorm:"not null;default:false;index:idx_versions_prompt_created,priority:2"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_versions_prompt_created,priority:3,sort:desc;not null"`
}

func (PromptVersion) TableName() string { return "prompt_versions" }

// BeforeCreate hook to ensure timestamps are set.
func (v *PromptVersion) BeforeCreate(tx *gorm.DB) error {
	if v.CreatedAtEpoch == 0 {
		v.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if v.CreatedAt == "" {
		v.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// PromptTag is a per-user tag with a usage counter.
type PromptTag struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	OwnerID        int64  `gorm:"column:user_id;uniqueIndex:idx_tags_owner_name,priority:1;not null"`
	TagName        string `gorm:"type:varchar(64);uniqueIndex:idx_tags_owner_name,priority:2;not null"`
	UseCount       int64  `gorm:"default:0;index"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (PromptTag) TableName() string { return "prompt_tags" }

// BeforeCreate hook to ensure timestamps are set.
func (t *PromptTag) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Conversion helpers

func toContentColumns(c models.PromptContent) ContentColumns {
	return ContentColumns{
		Title:               c.Title,
		Description:         c.Description,
		RequirementReport:   c.RequirementReport,
		ThinkingPoints:      c.ThinkingPoints,
		InitialPrompt:       c.InitialPrompt,
		Advice:              c.Advice,
		FinalPrompt:         c.FinalPrompt,
		Language:            c.Language,
		Format:              c.Format,
		PromptType:          string(c.PromptType),
		SystemPrompt:        c.SystemPrompt,
		ConversationHistory: c.ConversationHistory,
		Tags:                c.Tags,
	}
}

func (c ContentColumns) toModel() models.PromptContent {
	return models.PromptContent{
		Title:               c.Title,
		Description:         c.Description,
		RequirementReport:   c.RequirementReport,
		ThinkingPoints:      c.ThinkingPoints,
		InitialPrompt:       c.InitialPrompt,
		Advice:              c.Advice,
		FinalPrompt:         c.FinalPrompt,
		Language:            c.Language,
		Format:              c.Format,
		PromptType:          models.PromptType(c.PromptType),
		SystemPrompt:        c.SystemPrompt,
		ConversationHistory: c.ConversationHistory,
		Tags:                c.Tags,
	}
}

// assignments returns the column updates that overwrite the content.
func (c ContentColumns) assignments() map[string]interface{} {
	return map[string]interface{}{
		"title":                c.Title,
		"description":          c.Description,
		"requirement_report":   c.RequirementReport,
		"thinking_points":      c.ThinkingPoints,
		"initial_prompt":       c.InitialPrompt,
		"advice":               c.Advice,
		"final_prompt":         c.FinalPrompt,
		"language":             c.Language,
		"format":               c.Format,
		"prompt_type":          c.PromptType,
		"system_prompt":        c.SystemPrompt,
		"conversation_history": c.ConversationHistory,
		"tags":                 c.Tags,
	}
}

func toModelPrompt(p *Prompt) *models.Prompt {
	return &models.Prompt{
		PromptContent:   p.Content.toModel(),
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		IsFavorite:      p.IsFavorite,
		IsPublic:        p.IsPublic,
		ViewCount:       p.ViewCount,
		UseCount:        p.UseCount,
		CurrentVersion:  p.CurrentVersion,
		TotalVersions:   p.TotalVersions,
		LastVersionTime: p.LastVersionAt.String,
		ContentHash:     p.ContentHash,
		CreatedAt:       p.CreatedAt,
		CreatedAtEpoch:  p.CreatedAtEpoch,
		UpdatedAt:       p.UpdatedAt,
		UpdatedAtEpoch:  p.UpdatedAtEpoch,
	}
}

func toModelVersion(v *PromptVersion) *models.Version {
	return &models.Version{
		PromptContent:  v.Content.toModel(),
		ID:             v.ID,
		PromptID:       v.PromptID,
		VersionNumber:  v.VersionNumber,
		VersionTag:     v.VersionTag,
		VersionType:    v.VersionType,
		ChangeType:     v.ChangeType,
		ChangeSummary:  v.ChangeSummary,
		ChangeLog:      v.ChangeLog,
		CreatedBy:      v.CreatedBy,
		ContentSize:    v.ContentSize,
		TokenCount:     v.TokenCount,
		ContentHash:    v.ContentHash,
		UseCount:       v.UseCount,
		RollbackCount:  v.RollbackCount,
		IsDeleted:      v.IsDeleted,
		CreatedAt:      v.CreatedAt,
		CreatedAtEpoch: v.CreatedAtEpoch,
	}
}

func toModelTag(t *PromptTag) *models.Tag {
	return &models.Tag{
		ID:             t.ID,
		OwnerID:        t.OwnerID,
		TagName:        t.TagName,
		UseCount:       t.UseCount,
		CreatedAt:      t.CreatedAt,
		CreatedAtEpoch: t.CreatedAtEpoch,
	}
}

func toModelUser(u *User) *models.User {
	return &models.User{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name.String,
		Avatar:    u.Avatar.String,
		Email:     u.Email.String,
		CreatedAt: u.CreatedAt,
	}
}
