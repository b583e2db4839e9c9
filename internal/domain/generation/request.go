package generation

import (
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeSingle JobType = "SINGLE"
	JobTypeBatch  JobType = "BATCH"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestCompleted  RequestStatus = "COMPLETED"
	RequestFailed     RequestStatus = "FAILED"
	RequestCancelled  RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed || s == RequestCancelled
}

// OpenRequestStatuses are the statuses a request can still leave.
var OpenRequestStatuses = []RequestStatus{RequestPending, RequestInProgress}

// Request is one logical ask to produce TotalCount documents. It is
// partitioned by CreatedAt, which is why CreatedAt is part of the key.
type Request struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time     `gorm:"primaryKey;not null;index" json:"created_at"`
	TenantID       string        `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	JobType        JobType       `gorm:"column:job_type;not null" json:"job_type"`
	Status         RequestStatus `gorm:"column:status;not null;index" json:"status"`
	TotalCount     int           `gorm:"column:total_count;not null;default:0" json:"total_count"`
	CompletedCount int           `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	FailedCount    int           `gorm:"column:failed_count;not null;default:0" json:"failed_count"`
	ClaimedBy      *string       `gorm:"column:claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time    `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	BatchID        *uuid.UUID    `gorm:"type:uuid;column:batch_id;index" json:"batch_id,omitempty"`
	ErrorMessage   *string       `gorm:"column:error_message" json:"error_message,omitempty"`
	StartedAt      *time.Time    `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time    `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ExpiresAt      *time.Time    `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
}

func (Request) TableName() string { return "generation_requests" }

// Settled is the number of items that reached a terminal state.
func (r *Request) Settled() int {
	return r.CompletedCount + r.FailedCount
}
