package models

import "time"

// TemplateStatus tracks a credential template through review.
type TemplateStatus string

const (
	TemplateStatusPendingReview TemplateStatus = "PENDING_REVIEW"
	TemplateStatusApproved      TemplateStatus = "CLIENT_APPROVED"
	TemplateStatusRejected      TemplateStatus = "REJECTED"
	TemplateStatusNeedsRevision TemplateStatus = "NEEDS_REVISION"
)

// Template is an authored credential description awaiting reviewer approval.
// Templates are created by a separate authoring flow; this service only
// transitions their status.
type Template struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Type          string         `db:"type" json:"type"`
	Description   string         `db:"description" json:"description"`
	Institution   string         `db:"institution" json:"institution"`
	CourseName    string         `db:"course_name" json:"course_name"`
	RecipientName string         `db:"recipient_name" json:"recipient_name"`
	Status        TemplateStatus `db:"status" json:"status"`
	CreatedBy     string         `db:"created_by" json:"created_by"`
	DocumentID    *string        `db:"document_id" json:"document_id,omitempty"`
	ReviewedBy    *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// TemplateFilter captures filtering criteria for listing templates.
type TemplateFilter struct {
	Status    []TemplateStatus
	CreatedBy string
	Limit     int
	Offset    int
}
