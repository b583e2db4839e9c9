package domain

import (
	"github.com/yungbote/docforge-backend/internal/domain/generation"
	"github.com/yungbote/docforge-backend/internal/domain/templates"
)

// PartitionedModels are stored in monthly range partitions on created_at.
// On Postgres their parent tables come from the embedded DDL, not AutoMigrate.
func PartitionedModels() []any {
	return []any{
		&generation.Request{},
		&generation.Item{},
		&generation.Document{},
	}
}

// PartitionedTables lists the parent table names of PartitionedModels.
func PartitionedTables() []string {
	return []string{
		generation.Request{}.TableName(),
		generation.Item{}.TableName(),
		generation.Document{}.TableName(),
	}
}

// Models are the plain tables this service reads or writes.
func Models() []any {
	return []any{
		&generation.Batch{},

		&templates.Tenant{},
		&templates.Template{},
		&templates.Variant{},
		&templates.Version{},
		&templates.Theme{},
		&templates.Environment{},
		&templates.EnvironmentActivation{},
	}
}

// AllModels is every model, used where partitioning is unavailable (SQLite).
func AllModels() []any {
	return append(PartitionedModels(), Models()...)
}
