// Package versioning records, lists, compares, rolls back and deletes the
// version snapshots of a prompt.
package versioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	gormdb "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/events"
	"github.com/thebtf/promptvault/pkg/fingerprint"
	"github.com/thebtf/promptvault/pkg/models"
	"github.com/thebtf/promptvault/pkg/semver"
)

// Default pagination for version history.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Publisher delivers lifecycle events to the owner's subscribers.
type Publisher interface {
	Publish(ownerID int64, eventType string, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(int64, string, interface{}) {}

// Options tune the service.
type Options struct {
	HistoryDefaultLimit int
	HistoryMaxLimit     int
}

// Service implements version operations on top of the GORM stores. Every
// operation re-checks that the caller owns the prompt.
type Service struct {
	store     *gormdb.Store
	prompts   *gormdb.PromptStore
	versions  *gormdb.VersionStore
	publisher Publisher
	metrics   *Metrics
	opts      Options
}

// NewService creates a version service. publisher may be nil.
func NewService(store *gormdb.Store, publisher Publisher, opts Options) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if opts.HistoryMaxLimit <= 0 {
		opts.HistoryMaxLimit = MaxHistoryLimit
	}
	if opts.HistoryDefaultLimit <= 0 || opts.HistoryDefaultLimit > opts.HistoryMaxLimit {
		opts.HistoryDefaultLimit = DefaultHistoryLimit
	}
	return &Service{
		store:     store,
		prompts:   gormdb.NewPromptStore(store),
		versions:  gormdb.NewVersionStore(store),
		publisher: publisher,
		metrics:   NewMetrics(),
		opts:      opts,
	}
}

// Metrics exposes the version counters to collaborating services.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// NormalizeChangeType maps an empty change type to patch and rejects values
// other than major, minor and patch.
func NormalizeChangeType(changeType string) (string, error) {
	changeType = strings.ToLower(strings.TrimSpace(changeType))
	if !semver.ValidChangeType(changeType) {
		return "", models.InvalidOperationf("unsupported change type %q", changeType)
	}
	if changeType == "" {
		return semver.Patch, nil
	}
	return changeType, nil
}

// CreateVersion snapshots the prompt's current content as the next version.
func (s *Service) CreateVersion(ctx context.Context, promptID, ownerID int64, req models.CreateVersionRequest) (*models.CreatedVersion, error) {
	req.ChangeSummary = strings.TrimSpace(req.ChangeSummary)
	if req.ChangeSummary == "" {
		return nil, models.Validationf("change_summary is required")
	}
	changeType, err := NormalizeChangeType(req.ChangeType)
	if err != nil {
		return nil, err
	}
	req.ChangeType = changeType
	req.VersionTag = strings.TrimSpace(req.VersionTag)
	if req.VersionTag == models.VersionTagInitial {
		return nil, models.InvalidOperationf("version tag %q is reserved", models.VersionTagInitial)
	}

	var created *models.Version
	err = s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := gormdb.LockPrompt(tx, promptID); err != nil {
			return err
		}
		prompt, err := s.prompts.WithTx(tx).Get(ctx, promptID, ownerID)
		if err != nil {
			return err
		}
		created, err = s.AppendVersion(ctx, tx, prompt, ownerID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.NotifyCreated(ctx, ownerID, created)
	return &models.CreatedVersion{
		VersionID:     created.ID,
		VersionNumber: created.VersionNumber,
		CreatedAt:     created.CreatedAt,
	}, nil
}

// AppendVersion records prompt's content as the version after its current
// one and advances the prompt, all within tx. The caller must hold the
// prompt lock. req.ChangeType must already be normalized.
func (s *Service) AppendVersion(ctx context.Context, tx *gorm.DB, prompt *models.Prompt, actorID int64, req models.CreateVersionRequest) (*models.Version, error) {
	next := semver.Next(prompt.CurrentVersion, req.ChangeType)

	v, err := s.versions.WithTx(tx).Create(ctx, gormdb.NewSnapshot{
		PromptID:      prompt.ID,
		Content:       prompt.PromptContent,
		VersionNumber: next,
		VersionTag:    req.VersionTag,
		VersionType:   models.VersionTypeManual,
		ChangeType:    req.ChangeType,
		ChangeSummary: req.ChangeSummary,
		ChangeLog:     req.ChangeLog,
		ContentHash:   fingerprint.Compute(prompt.Fingerprint()),
		CreatedBy:     actorID,
		TokenCount:    CountTokens(prompt.FinalPrompt),
	})
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	if err := s.prompts.WithTx(tx).BumpVersion(ctx, prompt.ID, prompt.CurrentVersion, next); err != nil {
		return nil, err
	}
	return v, nil
}

// RecordInitialVersion stores the "initial" 1.0.0 snapshot of a freshly
// created prompt within tx.
func (s *Service) RecordInitialVersion(ctx context.Context, tx *gorm.DB, prompt *models.Prompt, actorID int64) (*models.Version, error) {
	v, err := s.versions.WithTx(tx).Create(ctx, gormdb.NewSnapshot{
		PromptID:      prompt.ID,
		Content:       prompt.PromptContent,
		VersionNumber: semver.Initial,
		VersionTag:    models.VersionTagInitial,
		VersionType:   models.VersionTypeInitial,
		ChangeType:    models.ChangeTypeInitial,
		ChangeSummary: "Initial version",
		ContentHash:   prompt.ContentHash,
		CreatedBy:     actorID,
		TokenCount:    CountTokens(prompt.FinalPrompt),
	})
	if err != nil {
		return nil, fmt.Errorf("insert initial version: %w", err)
	}
	return v, nil
}

// NotifyCreated records and announces a committed version.
func (s *Service) NotifyCreated(ctx context.Context, ownerID int64, v *models.Version) {
	s.metrics.Created(ctx, v.ChangeType)
	s.publisher.Publish(ownerID, events.TypeVersionCreated, map[string]interface{}{
		"prompt_id":      v.PromptID,
		"version_id":     v.ID,
		"version_number": v.VersionNumber,
		"change_type":    v.ChangeType,
	})

	log.Info().
		Int64("prompt_id", v.PromptID).
		Int64("owner_id", ownerID).
		Str("version", v.VersionNumber).
		Str("change_type", v.ChangeType).
		Msg("Version created")
}

// GetVersionHistory lists live versions of an owned prompt, newest first.
func (s *Service) GetVersionHistory(ctx context.Context, promptID, ownerID int64, page, limit int, tag string) (*models.VersionHistory, error) {
	if _, err := s.prompts.Get(ctx, promptID, ownerID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > s.opts.HistoryMaxLimit {
		limit = s.opts.HistoryDefaultLimit
	}

	items, total, err := s.versions.History(ctx, promptID, strings.TrimSpace(tag), page, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	log.Debug().
		Int64("prompt_id", promptID).
		Int64("total", total).
		Int("page", page).
		Msg("Version history loaded")

	return &models.VersionHistory{
		Versions: items,
		Total:    total,
		Page:     page,
		Limit:    limit,
	}, nil
}

// GetVersionDetail returns one live version with its full snapshot.
func (s *Service) GetVersionDetail(ctx context.Context, promptID, ownerID, versionID int64) (*models.Version, error) {
	return s.versions.Get(ctx, promptID, ownerID, versionID)
}

// CompareVersions loads two versions and reports which tracked fields differ.
func (s *Service) CompareVersions(ctx context.Context, promptID, ownerID, fromID, toID int64) (*models.VersionComparison, error) {
	var from, to *models.Version

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.GetVersionDetail(gctx, promptID, ownerID, fromID)
		from = v
		return err
	})
	g.Go(func() error {
		v, err := s.GetVersionDetail(gctx, promptID, ownerID, toID)
		to = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.VersionComparison{
		From: from,
		To:   to,
		Changes: models.VersionChanges{
			TitleChanged:       from.Title != to.Title,
			DescriptionChanged: from.Description != to.Description,
			FinalPromptChanged: from.FinalPrompt != to.FinalPrompt,
			TagsChanged:        !sameTags(from.Tags, to.Tags),
		},
		Diff: map[string]models.TextDiff{
			"final_prompt": {
				From:    from.FinalPrompt,
				To:      to.FinalPrompt,
				Unified: unifiedDiff(from, to),
			},
		},
	}, nil
}

// sameTags compares tags as sets.
func sameTags(a, b models.JSONStringArray) bool {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, ok := set[t]; !ok {
			return false
		}
		other[t] = struct{}{}
	}
	return len(set) == len(other)
}

func unifiedDiff(from, to *models.Version) string {
	if from.FinalPrompt == to.FinalPrompt {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from.FinalPrompt),
		B:        difflib.SplitLines(to.FinalPrompt),
		FromFile: "v" + from.VersionNumber,
		ToFile:   "v" + to.VersionNumber,
		Context:  3,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to render unified diff")
		return ""
	}
	return text
}

// RollbackToVersion copies a version's snapshot back onto the prompt and
// makes it current. No version is recorded and total_versions is unchanged.
func (s *Service) RollbackToVersion(ctx context.Context, promptID, ownerID, versionID int64, changeSummary string) (*models.RollbackResult, error) {
	var target *models.Version
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := gormdb.LockPrompt(tx, promptID); err != nil {
			return err
		}
		if _, err := s.prompts.WithTx(tx).Get(ctx, promptID, ownerID); err != nil {
			return err
		}
		v, err := s.versions.WithTx(tx).Get(ctx, promptID, ownerID, versionID)
		if err != nil {
			return err
		}
		target = v

		hash := fingerprint.Compute(v.Fingerprint())
		if err := s.prompts.WithTx(tx).ApplyRollback(ctx, promptID, v.PromptContent, hash, v.VersionNumber); err != nil {
			return fmt.Errorf("apply rollback: %w", err)
		}
		return s.versions.WithTx(tx).RecordRollback(ctx, v.ID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RolledBack(ctx)
	s.publisher.Publish(ownerID, events.TypeVersionRolledBack, map[string]interface{}{
		"prompt_id":      promptID,
		"version_id":     target.ID,
		"version_number": target.VersionNumber,
	})

	log.Info().
		Int64("prompt_id", promptID).
		Int64("owner_id", ownerID).
		Str("version", target.VersionNumber).
		Str("summary", changeSummary).
		Msg("Prompt rolled back")

	return &models.RollbackResult{
		NewVersion:        target.VersionNumber,
		RollbackToVersion: target.VersionNumber,
	}, nil
}

// UpdateVersionTag relabels a live version. The "initial" tag cannot be
// given to any other version.
func (s *Service) UpdateVersionTag(ctx context.Context, promptID, ownerID, versionID int64, tag string) error {
	tag = strings.TrimSpace(tag)
	if len(tag) > gormdb.MaxTagLength {
		return models.Validationf("version tag longer than %d bytes", gormdb.MaxTagLength)
	}

	v, err := s.versions.Get(ctx, promptID, ownerID, versionID)
	if err != nil {
		return err
	}
	if tag == models.VersionTagInitial && v.VersionType != models.VersionTypeInitial {
		return models.InvalidOperationf("version tag %q is reserved", models.VersionTagInitial)
	}

	if err := s.versions.UpdateTag(ctx, versionID, tag); err != nil {
		return fmt.Errorf("update version tag: %w", err)
	}

	s.publisher.Publish(ownerID, events.TypeVersionTagged, map[string]interface{}{
		"prompt_id":      promptID,
		"version_id":     versionID,
		"version_number": v.VersionNumber,
		"version_tag":    tag,
	})

	log.Info().
		Int64("prompt_id", promptID).
		Int64("version_id", versionID).
		Str("tag", tag).
		Msg("Version tag updated")
	return nil
}

// DeleteVersion soft-deletes a version. The initial version and the active
// version are refused with ErrInvalidOperation.
func (s *Service) DeleteVersion(ctx context.Context, promptID, ownerID, versionID int64) error {
	var deleted *models.Version
	err := s.store.Transaction(ctx, func(tx *gorm.DB) error {
		if err := gormdb.LockPrompt(tx, promptID); err != nil {
			return err
		}
		prompt, err := s.prompts.WithTx(tx).Get(ctx, promptID, ownerID)
		if err != nil {
			return err
		}
		v, err := s.versions.WithTx(tx).Get(ctx, promptID, ownerID, versionID)
		if err != nil {
			return err
		}

		if v.VersionTag == models.VersionTagInitial || v.VersionType == models.VersionTypeInitial {
			return models.InvalidOperationf("the initial version cannot be deleted")
		}
		if v.VersionNumber == prompt.CurrentVersion {
			return models.InvalidOperationf("version %s is active and cannot be deleted", v.VersionNumber)
		}

		if err := s.versions.WithTx(tx).SoftDelete(ctx, v.ID); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		deleted = v
		return s.prompts.WithTx(tx).DecrementTotalVersions(ctx, promptID)
	})
	if err != nil {
		return err
	}

	s.metrics.Deleted(ctx)
	s.publisher.Publish(ownerID, events.TypeVersionDeleted, map[string]interface{}{
		"prompt_id":      promptID,
		"version_id":     deleted.ID,
		"version_number": deleted.VersionNumber,
	})

	log.Info().
		Int64("prompt_id", promptID).
		Int64("owner_id", ownerID).
		Str("version", deleted.VersionNumber).
		Msg("Version deleted")
	return nil
}
