package generation

import (
	"time"

	"github.com/google/uuid"
)

// Batch groups several requests submitted together. Counts are sums of the
// member requests' item counts; CompletedAt is written exactly once.
type Batch struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       string     `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	TotalRequests  int        `gorm:"column:total_requests;not null;default:0" json:"total_requests"`
	CompletedCount int        `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	FailedCount    int        `gorm:"column:failed_count;not null;default:0" json:"failed_count"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Batch) TableName() string { return "generation_batches" }
