package prompts

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/pkg/models"
)

// ListTags returns the owner's tags, most used first.
func (s *Service) ListTags(ctx context.Context, ownerID int64, limit int) ([]*models.Tag, error) {
	if limit < 1 || limit > s.opts.TagListLimit {
		limit = s.opts.TagListLimit
	}
	return s.tags.List(ctx, ownerID, limit)
}

// PopularTags returns the owner's tags that have been used at least once.
func (s *Service) PopularTags(ctx context.Context, ownerID int64, limit int) ([]*models.Tag, error) {
	if limit < 1 || limit > s.opts.PopularTagLimit {
		limit = s.opts.PopularTagLimit
	}
	return s.tags.Popular(ctx, ownerID, limit)
}

// CreateTag returns the owner's tag with this name, creating it if missing.
// created reports whether the tag is new.
func (s *Service) CreateTag(ctx context.Context, ownerID int64, name string) (*models.Tag, bool, error) {
	tag, created, err := s.tags.Create(ctx, ownerID, name)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Info().Int64("owner_id", ownerID).Str("tag", tag.TagName).Msg("Tag created")
	}
	return tag, created, nil
}

// DeleteTag removes one of the owner's tags.
func (s *Service) DeleteTag(ctx context.Context, ownerID, id int64) error {
	if err := s.tags.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	log.Info().Int64("owner_id", ownerID).Int64("tag_id", id).Msg("Tag deleted")
	return nil
}
