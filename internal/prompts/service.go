// Package prompts saves prompts, deciding on every save whether the content
// changed enough to record a new version, and serves the surrounding prompt
// and tag operations.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	gormdb "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/events"
	"github.com/thebtf/promptvault/internal/versioning"
	"github.com/thebtf/promptvault/pkg/fingerprint"
	"github.com/thebtf/promptvault/pkg/models"
	"github.com/thebtf/promptvault/pkg/semver"
)

// Listing defaults.
const (
	DefaultListLimit       = 20
	MaxListLimit           = 100
	DefaultTagListLimit    = 50
	DefaultPopularTagLimit = 20
)

// Options tune the service.
type Options struct {
	ListDefaultLimit int
	TagListLimit     int
	PopularTagLimit  int
}

// Service orchestrates prompt saves over the stores and the version service.
type Service struct {
	store     *gormdb.Store
	prompts   *gormdb.PromptStore
	tags      *gormdb.TagStore
	versions  *versioning.Service
	publisher versioning.Publisher
	opts      Options
}

// NewService creates a prompt service. publisher may be nil.
func NewService(store *gormdb.Store, versions *versioning.Service, publisher versioning.Publisher, opts Options) *Service {
	if opts.ListDefaultLimit <= 0 || opts.ListDefaultLimit > MaxListLimit {
		opts.ListDefaultLimit = DefaultListLimit
	}
	if opts.TagListLimit <= 0 {
		opts.TagListLimit = DefaultTagListLimit
	}
	if opts.PopularTagLimit <= 0 {
		opts.PopularTagLimit = DefaultPopularTagLimit
	}
	return &Service{
		store:     store,
		prompts:   gormdb.NewPromptStore(store),
		tags:      gormdb.NewTagStore(store),
		versions:  versions,
		publisher: publisher,
		opts:      opts,
	}
}

// SavePrompt creates a prompt when in.ID is nil and updates it otherwise.
//
// A create records the "initial" 1.0.0 version when versioning is requested.
// An update records a new version only if the content fingerprint changed,
// so resubmitting identical content never grows the history.
func (s *Service) SavePrompt(ctx context.Context, ownerID int64, in models.PromptInput) (*models.SaveResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	changeType, err := versioning.NormalizeChangeType(in.ChangeType)
	if err != nil {
		return nil, err
	}
	in.ChangeType = changeType
	if in.Tags != nil {
		tags := gormdb.NormalizeTags(*in.Tags)
		in.Tags = &tags
	}

	if in.ID == nil {
		return s.create(ctx, ownerID, in)
	}
	return s.update(ctx, ownerID, *in.ID, in)
}

func (s *Service) create(ctx context.Context, ownerID int64, in models.PromptInput) (*models.SaveResult, error) {
	content := in.Apply(models.NewPromptContent())
	hash := fingerprint.Compute(content.Fingerprint())

	var prompt *models.Prompt
	var initial *models.Version
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		prompt, err = s.prompts.WithTx(tx).Create(ctx, ownerID, content, semver.Initial, 1, hash)
		if err != nil {
			return fmt.Errorf("insert prompt: %w", err)
		}
		if in.IsPublic != nil && *in.IsPublic {
			if err := s.prompts.WithTx(tx).SetPublic(ctx, prompt.ID, ownerID, true); err != nil {
				return err
			}
			prompt.IsPublic = true
		}
		if !in.WantsVersion() {
			return nil
		}
		initial, err = s.versions.RecordInitialVersion(ctx, tx, prompt, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.touchTags(ctx, ownerID, in)

	result := &models.SaveResult{ID: prompt.ID, IsNew: true, Message: "Prompt created"}
	if initial != nil {
		result.Version = &initial.VersionNumber
		s.versions.NotifyCreated(ctx, ownerID, initial)
	}
	s.announce(ownerID, result)

	log.Info().
		Int64("prompt_id", prompt.ID).
		Int64("owner_id", ownerID).
		Bool("versioned", initial != nil).
		Msg("Prompt created")
	return result, nil
}

func (s *Service) update(ctx context.Context, ownerID, id int64, in models.PromptInput) (*models.SaveResult, error) {
	var created *models.Version
	var changed bool
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := gormdb.LockPrompt(tx, id); err != nil {
			return err
		}
		existing, err := s.prompts.WithTx(tx).Get(ctx, id, ownerID)
		if err != nil {
			return err
		}

		storedHash := existing.ContentHash
		oldHash := storedHash
		if oldHash == "" {
			oldHash = fingerprint.Compute(existing.Fingerprint())
		}

		content := in.Apply(existing.PromptContent)
		newHash := fingerprint.Compute(content.Fingerprint())
		changed = newHash != oldHash

		if err := s.prompts.WithTx(tx).UpdateContent(ctx, id, storedHash, content, newHash, in.IsPublic); err != nil {
			return err
		}
		if !changed || !in.WantsVersion() {
			return nil
		}

		summary := strings.TrimSpace(in.ChangeSummary)
		if summary == "" {
			summary = models.DefaultAutoChangeSummary
		}
		existing.PromptContent = content
		existing.ContentHash = newHash
		created, err = s.versions.AppendVersion(ctx, tx, existing, ownerID, models.CreateVersionRequest{
			ChangeType:    in.ChangeType,
			ChangeSummary: summary,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.touchTags(ctx, ownerID, in)

	result := &models.SaveResult{ID: id}
	switch {
	case created != nil:
		result.Version = &created.VersionNumber
		result.Message = fmt.Sprintf("Prompt updated, version %s created", created.VersionNumber)
		s.versions.NotifyCreated(ctx, ownerID, created)
	case in.WantsVersion() && !changed:
		result.Message = "Prompt updated, content unchanged so no version was created"
		s.versions.Metrics().Deduplicated(ctx)
	default:
		result.Message = "Prompt updated"
	}
	s.announce(ownerID, result)

	log.Info().
		Int64("prompt_id", id).
		Int64("owner_id", ownerID).
		Bool("content_changed", changed).
		Bool("versioned", created != nil).
		Msg("Prompt updated")
	return result, nil
}

// touchTags bumps the usage of every tag sent with a save. Failures are
// logged and never fail the save.
func (s *Service) touchTags(ctx context.Context, ownerID int64, in models.PromptInput) {
	if in.Tags == nil || len(*in.Tags) == 0 {
		return
	}
	if err := s.tags.Touch(ctx, ownerID, *in.Tags); err != nil {
		log.Warn().Err(err).Int64("owner_id", ownerID).Msg("Failed to update tag usage")
	}
}

func (s *Service) announce(ownerID int64, result *models.SaveResult) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ownerID, events.TypePromptSaved, result)
}

// GetPromptDetail returns an owned prompt and counts the view. A failed view
// count is only logged.
func (s *Service) GetPromptDetail(ctx context.Context, id, ownerID int64) (*models.Prompt, error) {
	p, err := s.prompts.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.prompts.IncrementViewCount(ctx, id); err != nil {
		log.Warn().Err(err).Int64("prompt_id", id).Msg("Failed to increment view count")
	} else {
		p.ViewCount++
	}
	return p, nil
}

// ListPrompts returns one page of the owner's prompts.
func (s *Service) ListPrompts(ctx context.Context, ownerID int64, opts models.PromptListOptions) (*models.PromptList, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > MaxListLimit {
		opts.Limit = s.opts.ListDefaultLimit
	}

	items, total, err := s.prompts.List(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}

	log.Debug().
		Int64("owner_id", ownerID).
		Int64("total", total).
		Int("page", opts.Page).
		Msg("Prompts listed")

	return &models.PromptList{
		Items: items,
		Total: total,
		Page:  opts.Page,
		Limit: opts.Limit,
	}, nil
}

// DeletePrompt removes an owned prompt and its whole history.
func (s *Service) DeletePrompt(ctx context.Context, id, ownerID int64) error {
	if err := s.prompts.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	log.Info().Int64("prompt_id", id).Int64("owner_id", ownerID).Msg("Prompt deleted")
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, id, ownerID int64) (bool, error) {
	p, err := s.prompts.Get(ctx, id, ownerID)
	if err != nil {
		return false, err
	}
	favorite := !p.IsFavorite
	if err := s.prompts.SetFavorite(ctx, id, ownerID, favorite); err != nil {
		return false, err
	}
	return favorite, nil
}

// RecordUse counts one use of an owned prompt.
func (s *Service) RecordUse(ctx context.Context, id, ownerID int64) error {
	return s.prompts.IncrementUseCount(ctx, id, ownerID)
}
