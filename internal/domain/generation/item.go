package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ItemStatus string

const (
	ItemPending    ItemStatus = "PENDING"
	ItemInProgress ItemStatus = "IN_PROGRESS"
	ItemCompleted  ItemStatus = "COMPLETED"
	ItemFailed     ItemStatus = "FAILED"
)

func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemFailed
}

var OpenItemStatuses = []ItemStatus{ItemPending, ItemInProgress}

// CancelledItemMessage is written to every item still open when its request
// is cancelled.
const CancelledItemMessage = "Generation request was cancelled"

// VariantSelector picks a variant by attributes when an item does not name
// one directly.
type VariantSelector struct {
	Required map[string]string `json:"required,omitempty"`
	Optional map[string]string `json:"optional,omitempty"`
}

// Item is one document within a request. Exactly one of VersionID and
// EnvironmentID is set.
type Item struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"primaryKey;not null;index" json:"created_at"`
	RequestID       uuid.UUID      `gorm:"type:uuid;column:request_id;not null;index" json:"request_id"`
	Position        int            `gorm:"column:position;not null;default:0" json:"position"`
	TemplateID      uuid.UUID      `gorm:"type:uuid;column:template_id;not null" json:"template_id"`
	VariantID       *uuid.UUID     `gorm:"type:uuid;column:variant_id" json:"variant_id,omitempty"`
	VariantSelector datatypes.JSON `gorm:"column:variant_selector" json:"variant_selector,omitempty"`
	VersionID       *uuid.UUID     `gorm:"type:uuid;column:version_id" json:"version_id,omitempty"`
	EnvironmentID   *uuid.UUID     `gorm:"type:uuid;column:environment_id" json:"environment_id,omitempty"`
	Data            datatypes.JSON `gorm:"column:data" json:"data"`
	Filename        *string        `gorm:"column:filename" json:"filename,omitempty"`
	Status          ItemStatus     `gorm:"column:status;not null;index" json:"status"`
	DocumentID      *uuid.UUID     `gorm:"type:uuid;column:document_id" json:"document_id,omitempty"`
	ErrorMessage    *string        `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Item) TableName() string { return "generation_items" }

// DataMap decodes the input payload. An empty or null payload is an empty map.
func (it *Item) DataMap() (map[string]any, error) {
	out := map[string]any{}
	if len(it.Data) == 0 || string(it.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(it.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Selector decodes VariantSelector; nil when unset.
func (it *Item) Selector() (*VariantSelector, error) {
	if len(it.VariantSelector) == 0 || string(it.VariantSelector) == "null" {
		return nil, nil
	}
	var sel VariantSelector
	if err := json.Unmarshal(it.VariantSelector, &sel); err != nil {
		return nil, err
	}
	return &sel, nil
}
