// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Accounts
		{
			ID: "001_users",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&User{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users")
			},
		},

		// Migration 002: Prompts (mutable current state)
		{
			ID: "002_prompts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Prompt{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("prompts")
			},
		},

		// Migration 003: Version snapshots, cascading with their prompt
		{
			ID: "003_prompt_versions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&PromptVersion{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("prompt_versions")
			},
		},

		// Migration 004: Per-user tags
		{
			ID: "004_prompt_tags",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&PromptTag{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("prompt_tags")
			},
		},

		// Migration 005: Lookup index for the history tag filter
		{
			ID: "005_versions_prompt_tag_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_versions_prompt_tag
					ON prompt_versions (prompt_id, version_tag)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_versions_prompt_tag").Error
			},
		},
	})

	return m.Migrate()
}
