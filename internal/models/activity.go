package models

import "time"

// ActivityAction constants represent actions recorded in the activity log.
const (
	ActivityTemplateApproved      = "TEMPLATE_APPROVED"
	ActivityTemplateRejected      = "TEMPLATE_REJECTED"
	ActivityTemplateRevision      = "TEMPLATE_REVISION_REQUESTED"
	ActivityCertificateIssued     = "CERTIFICATE_ISSUED"
	ActivityCertificateDegraded   = "CERTIFICATE_ISSUED_DEGRADED"
	ActivityVerificationSucceeded = "VERIFICATION_SUCCEEDED"
	ActivityVerificationFailed    = "VERIFICATION_FAILED"
	ActivityVerificationPwdFailed = "VERIFICATION_PASSWORD_FAILED"
	ActivityExportRequested       = "EXPORT_REQUESTED"
)

// ActivityLog is an append-only audit trail record.
type ActivityLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id,omitempty"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ActivityFilter captures filtering criteria for the activity feed.
type ActivityFilter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	Limit      int
	Offset     int
}
