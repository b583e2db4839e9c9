package templates

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type VersionStatus string

const (
	VersionDraft     VersionStatus = "DRAFT"
	VersionPublished VersionStatus = "PUBLISHED"
	VersionArchived  VersionStatus = "ARCHIVED"
)

// CanTransition enforces DRAFT -> PUBLISHED -> ARCHIVED. Nothing moves
// backwards and an archived version stays archived.
func (s VersionStatus) CanTransition(to VersionStatus) bool {
	switch s {
	case VersionDraft:
		return to == VersionPublished
	case VersionPublished:
		return to == VersionArchived
	default:
		return false
	}
}

// Version holds the node/slot graph. Content is immutable once published.
type Version struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      string         `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	VariantID     uuid.UUID      `gorm:"type:uuid;column:variant_id;not null;index" json:"variant_id"`
	VersionNumber int            `gorm:"column:version_number;not null" json:"version_number"`
	Status        VersionStatus  `gorm:"column:status;not null;index" json:"status"`
	Content       datatypes.JSON `gorm:"column:content" json:"content"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	PublishedAt   *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	ArchivedAt    *time.Time     `gorm:"column:archived_at" json:"archived_at,omitempty"`
}

func (Version) TableName() string { return "template_versions" }

// Renderable reports whether generation may use this version.
func (v *Version) Renderable() bool {
	return v.Status == VersionDraft || v.Status == VersionPublished
}
