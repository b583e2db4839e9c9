package generation

import (
	"time"

	"github.com/google/uuid"
)

const ContentTypePDF = "application/pdf"

// Document is a produced artifact. Content is loaded only when asked for;
// listing queries omit it.
type Document struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"primaryKey;not null;index" json:"created_at"`
	TenantID    string    `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	TemplateID  uuid.UUID `gorm:"type:uuid;column:template_id;not null" json:"template_id"`
	VariantID   uuid.UUID `gorm:"type:uuid;column:variant_id;not null" json:"variant_id"`
	VersionID   uuid.UUID `gorm:"type:uuid;column:version_id;not null" json:"version_id"`
	Filename    string    `gorm:"column:filename;not null" json:"filename"`
	ContentType string    `gorm:"column:content_type;not null" json:"content_type"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null" json:"size_bytes"`
	PageCount   int       `gorm:"column:page_count;not null;default:0" json:"page_count"`
	Content     []byte    `gorm:"column:content;not null" json:"-"`
}

func (Document) TableName() string { return "documents" }
