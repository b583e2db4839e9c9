package templates

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Tenant is the read view of a tenant; CRUD lives elsewhere.
type Tenant struct {
	ID             string     `gorm:"column:id;primaryKey" json:"id"`
	Name           string     `gorm:"column:name;not null" json:"name"`
	DefaultThemeID *uuid.UUID `gorm:"type:uuid;column:default_theme_id" json:"default_theme_id,omitempty"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
}

func (Tenant) TableName() string { return "tenants" }

// Template owns variants. DataSchema is an optional CUE schema every item's
// input data must satisfy.
type Template struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   string     `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Name       string     `gorm:"column:name;not null" json:"name"`
	ThemeID    *uuid.UUID `gorm:"type:uuid;column:theme_id" json:"theme_id,omitempty"`
	DataSchema string     `gorm:"column:data_schema" json:"data_schema,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (Template) TableName() string { return "document_templates" }

// Variant carries the attribute tags used for selection.
type Variant struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   string         `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	TemplateID uuid.UUID      `gorm:"type:uuid;column:template_id;not null;index" json:"template_id"`
	Title      string         `gorm:"column:title" json:"title"`
	Attributes datatypes.JSON `gorm:"column:attributes" json:"attributes"`
	IsDefault  bool           `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (Variant) TableName() string { return "template_variants" }

// AttributeMap decodes Attributes; malformed or empty JSON yields an empty map.
func (v *Variant) AttributeMap() map[string]string {
	out := map[string]string{}
	if len(v.Attributes) == 0 {
		return out
	}
	_ = json.Unmarshal(v.Attributes, &out)
	return out
}
