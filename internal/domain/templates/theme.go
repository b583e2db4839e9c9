package templates

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Theme is a tenant-scoped style bundle. The JSON columns are decoded by the
// styles package.
type Theme struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          string         `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name              string         `gorm:"column:name;not null" json:"name"`
	DocumentStyles    datatypes.JSON `gorm:"column:document_styles" json:"document_styles"`
	PageSettings      datatypes.JSON `gorm:"column:page_settings" json:"page_settings,omitempty"`
	BlockStylePresets datatypes.JSON `gorm:"column:block_style_presets" json:"block_style_presets,omitempty"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Theme) TableName() string { return "themes" }

type Environment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Environment) TableName() string { return "environments" }

// EnvironmentActivation binds (tenant, environment, variant) to a published
// version.
type EnvironmentActivation struct {
	TenantID      string    `gorm:"column:tenant_id;primaryKey" json:"tenant_id"`
	EnvironmentID uuid.UUID `gorm:"type:uuid;column:environment_id;primaryKey" json:"environment_id"`
	VariantID     uuid.UUID `gorm:"type:uuid;column:variant_id;primaryKey" json:"variant_id"`
	VersionID     uuid.UUID `gorm:"type:uuid;column:version_id;not null" json:"version_id"`
	ActivatedAt   time.Time `gorm:"column:activated_at;not null" json:"activated_at"`
}

func (EnvironmentActivation) TableName() string { return "environment_activations" }
