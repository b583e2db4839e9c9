package db

import (
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/docforge-backend/internal/domain"
)

//go:embed sql/partitioned.sql
var partitionedDDL string

// Migrate brings the schema up to date. On Postgres the partitioned parents
// come from the embedded DDL and only the plain tables go through
// AutoMigrate; the partitions themselves belong to the partitions package.
// Other dialects have no declarative partitioning and migrate every model.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		if err := db.AutoMigrate(domain.AllModels()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	for _, stmt := range strings.Split(partitionedDDL, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partitioned tables: %w", err)
		}
	}
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureIndexes(db)
}

func EnsureIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generation_batches_open
		ON generation_batches (created_at)
		WHERE completed_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_generation_batches_open: %w", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_template_versions_variant_number
		ON template_versions (variant_id, version_number);
	`).Error; err != nil {
		return fmt.Errorf("create idx_template_versions_variant_number: %w", err)
	}
	return nil
}
