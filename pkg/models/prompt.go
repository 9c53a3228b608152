// Package models contains domain models for promptvault.
package models

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/thebtf/promptvault/pkg/fingerprint"
)

// PromptType distinguishes plain system prompts from user prompts that carry
// their own system prompt and conversation history.
type PromptType string

const (
	PromptTypeSystem PromptType = "system"
	PromptTypeUser   PromptType = "user"
)

// Defaults applied when a prompt is created without the field.
const (
	DefaultTitle      = "Untitled prompt"
	DefaultLanguage   = "zh"
	DefaultFormat     = "markdown"
	DefaultPromptType = PromptTypeSystem
)

// PromptContent is the part of a prompt that is captured in every version
// snapshot.
type PromptContent struct {
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	RequirementReport   string          `json:"requirement_report"`
	InitialPrompt       string          `json:"initial_prompt"`
	FinalPrompt         string          `json:"final_prompt"`
	Language            string          `json:"language"`
	Format              string          `json:"format"`
	PromptType          PromptType      `json:"prompt_type"`
	SystemPrompt        string          `json:"system_prompt"`
	ConversationHistory string          `json:"conversation_history"`
	ThinkingPoints      JSONStringArray `json:"thinking_points"`
	Advice              JSONStringArray `json:"advice"`
	Tags                JSONStringArray `json:"tags"`
}

// Fingerprint returns the change-detection fields of the content.
func (c PromptContent) Fingerprint() fingerprint.Content {
	return fingerprint.Content{
		FinalPrompt:         c.FinalPrompt,
		SystemPrompt:        c.SystemPrompt,
		InitialPrompt:       c.InitialPrompt,
		ConversationHistory: c.ConversationHistory,
	}
}

// Prompt is the mutable aggregate root owning a history of versions.
type Prompt struct {
	PromptContent
	CurrentVersion  string `json:"current_version"`
	LastVersionTime string `json:"last_version_time,omitempty"`
	ContentHash     string `json:"content_hash,omitempty"`
	CreatedAt       string `json:"create_time"`
	UpdatedAt       string `json:"update_time"`
	ID              int64  `json:"id"`
	OwnerID         int64  `json:"user_id"`
	ViewCount       int64  `json:"view_count"`
	UseCount        int64  `json:"use_count"`
	TotalVersions   int    `json:"total_versions"`
	CreatedAtEpoch  int64  `json:"create_time_epoch"`
	UpdatedAtEpoch  int64  `json:"update_time_epoch"`
	IsFavorite      bool   `json:"is_favorite"`
	IsPublic        bool   `json:"is_public"`
}

// PromptInput is a partial prompt. Nil fields are left untouched on update
// and take their defaults on create. An explicit JSON null on a text or list
// field decodes to the empty value, so it clears the field.
type PromptInput struct {
	ID                  *int64      `json:"id,omitempty"`
	Title               *string     `json:"title,omitempty"`
	Description         *string     `json:"description,omitempty"`
	RequirementReport   *string     `json:"requirement_report,omitempty"`
	ThinkingPoints      *[]string   `json:"thinking_points,omitempty"`
	InitialPrompt       *string     `json:"initial_prompt,omitempty"`
	Advice              *[]string   `json:"advice,omitempty"`
	FinalPrompt         *string     `json:"final_prompt,omitempty"`
	Language            *string     `json:"language,omitempty"`
	Format              *string     `json:"format,omitempty"`
	PromptType          *PromptType `json:"prompt_type,omitempty"`
	SystemPrompt        *string     `json:"system_prompt,omitempty"`
	ConversationHistory *string     `json:"conversation_history,omitempty"`
	Tags                *[]string   `json:"tags,omitempty"`
	IsPublic            *bool       `json:"is_public,omitempty"`

	// Versioning controls; CreateVersion defaults to true.
	CreateVersion *bool  `json:"create_version,omitempty"`
	ChangeSummary string `json:"change_summary,omitempty"`
	ChangeType    string `json:"change_type,omitempty"`
}

// UnmarshalJSON decodes a partial prompt, turning explicit nulls on text and
// list fields into empty values.
func (in *PromptInput) UnmarshalJSON(data []byte) error {
	type plain PromptInput
	if err := json.Unmarshal(data, (*plain)(in)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	isNull := func(key string) bool {
		v, ok := raw[key]
		return ok && bytes.Equal(bytes.TrimSpace(v), []byte("null"))
	}

	texts := map[string]**string{
		"title":                &in.Title,
		"description":          &in.Description,
		"requirement_report":   &in.RequirementReport,
		"initial_prompt":       &in.InitialPrompt,
		"final_prompt":         &in.FinalPrompt,
		"system_prompt":        &in.SystemPrompt,
		"conversation_history": &in.ConversationHistory,
	}
	for key, dst := range texts {
		if isNull(key) {
			empty := ""
			*dst = &empty
		}
	}

	lists := map[string]**[]string{
		"thinking_points": &in.ThinkingPoints,
		"advice":          &in.Advice,
		"tags":            &in.Tags,
	}
	for key, dst := range lists {
		if isNull(key) {
			*dst = &[]string{}
		}
	}
	return nil
}

// WantsVersion reports whether the caller asked for a version to be recorded.
func (in *PromptInput) WantsVersion() bool {
	return in.CreateVersion == nil || *in.CreateVersion
}

// Validate checks field values that cannot be repaired with a default.
func (in *PromptInput) Validate() error {
	if in.PromptType != nil {
		switch *in.PromptType {
		case PromptTypeSystem, PromptTypeUser:
		default:
			return Validationf("prompt_type must be %q or %q", PromptTypeSystem, PromptTypeUser)
		}
	}
	return nil
}

// Apply overlays the present fields onto c and returns the result. Content
// fields specific to user prompts are cleared when the resulting type is not
// user.
func (in *PromptInput) Apply(c PromptContent) PromptContent {
	if in.Title != nil {
		c.Title = *in.Title
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.RequirementReport != nil {
		c.RequirementReport = *in.RequirementReport
	}
	if in.ThinkingPoints != nil {
		c.ThinkingPoints = JSONStringArray(*in.ThinkingPoints)
	}
	if in.InitialPrompt != nil {
		c.InitialPrompt = *in.InitialPrompt
	}
	if in.Advice != nil {
		c.Advice = JSONStringArray(*in.Advice)
	}
	if in.FinalPrompt != nil {
		c.FinalPrompt = *in.FinalPrompt
	}
	if in.Language != nil {
		c.Language = *in.Language
	}
	if in.Format != nil {
		c.Format = *in.Format
	}
	if in.PromptType != nil {
		c.PromptType = *in.PromptType
	}
	if in.SystemPrompt != nil {
		c.SystemPrompt = *in.SystemPrompt
	}
	if in.ConversationHistory != nil {
		c.ConversationHistory = *in.ConversationHistory
	}
	if in.Tags != nil {
		c.Tags = JSONStringArray(*in.Tags)
	}
	if c.PromptType != PromptTypeUser {
		c.SystemPrompt = ""
		c.ConversationHistory = ""
	}
	return c
}

// NewPromptContent returns content with create-time defaults applied.
func NewPromptContent() PromptContent {
	return PromptContent{
		Title:      DefaultTitle,
		Language:   DefaultLanguage,
		Format:     DefaultFormat,
		PromptType: DefaultPromptType,
	}
}

// SaveResult is returned by a prompt save.
type SaveResult struct {
	Version *string `json:"version"`
	Message string  `json:"message,omitempty"`
	ID      int64   `json:"id"`
	IsNew   bool    `json:"is_new"`
}

// PromptSort enumerates the columns prompts can be listed by.
type PromptSort string

const (
	SortCreateTime PromptSort = "create_time"
	SortUpdateTime PromptSort = "update_time"
	SortViewCount  PromptSort = "view_count"
	SortUseCount   PromptSort = "use_count"
)

// PromptListOptions filters a prompt listing.
type PromptListOptions struct {
	Keyword    string
	Tag        string
	Sort       PromptSort
	Page       int
	Limit      int
	IsFavorite *bool
}

// PromptList is one page of prompts.
type PromptList struct {
	Items []*Prompt `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}
