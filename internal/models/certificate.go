package models

import "time"

// CertificateStatus tracks the lifecycle of an issued certificate.
// Issuance only ever produces ISSUED; revocation belongs to a separate
// administrative flow.
type CertificateStatus string

const (
	CertificateStatusIssued CertificateStatus = "ISSUED"
)

// CertificateCategory is the closed set of certificate kinds. Unknown
// template types map to the generic category.
type CertificateCategory string

const (
	CategoryCompletion  CertificateCategory = "COMPLETION"
	CategoryAchievement CertificateCategory = "ACHIEVEMENT"
	CategoryAttendance  CertificateCategory = "ATTENDANCE"
	CategoryMembership  CertificateCategory = "MEMBERSHIP"
	CategoryGeneric     CertificateCategory = "GENERIC"
)

// Certificate is an issued, immutable credential record bound to one
// recipient. The verification ID is the opaque public lookup key; the
// verification code is the short human-shareable string. The two are
// deliberately distinct values.
type Certificate struct {
	ID                 string              `db:"id" json:"id"`
	TemplateID         string              `db:"template_id" json:"template_id"`
	IssuerID           string              `db:"issuer_id" json:"issuer_id"`
	IssuerName         string              `db:"issuer_name" json:"issuer_name"`
	IssuerOrganization string              `db:"issuer_organization" json:"issuer_organization"`
	RecipientID        string              `db:"recipient_id" json:"recipient_id"`
	RecipientName      string              `db:"recipient_name" json:"recipient_name"`
	RecipientEmail     string              `db:"recipient_email" json:"recipient_email"`
	Title              string              `db:"title" json:"title"`
	Category           CertificateCategory `db:"category" json:"category"`
	VerificationCode   string              `db:"verification_code" json:"verification_code"`
	VerificationID     string              `db:"verification_id" json:"verification_id"`
	ContentHash        string              `db:"content_hash" json:"content_hash"`
	QRPayload          string              `db:"qr_payload" json:"qr_payload"`
	Status             CertificateStatus   `db:"status" json:"status"`
	NeedsClaiming      bool                `db:"needs_claiming" json:"needs_claiming"`
	AccessPasswordHash *string             `db:"access_password_hash" json:"-"`
	ExpiresAt          *time.Time          `db:"expires_at" json:"expires_at,omitempty"`
	IssuedAt           time.Time           `db:"issued_at" json:"issued_at"`
	Metadata           []byte              `db:"metadata" json:"metadata,omitempty"`
}

// PasswordProtected reports whether verification requires an access password.
func (c *Certificate) PasswordProtected() bool {
	return c.AccessPasswordHash != nil && *c.AccessPasswordHash != ""
}

// CertificateMetadata is the provenance bag serialized into the metadata
// column.
type CertificateMetadata struct {
	SourceTemplateID string `json:"source_template_id"`
	AutoIssued       bool   `json:"auto_issued"`
	IssuedByUserID   string `json:"issued_by_user_id"`
	NeedsClaiming    bool   `json:"needs_claiming"`
	ResolutionStep   string `json:"resolution_step,omitempty"`
}

// CertificateFilter captures filtering criteria for the registry listing.
type CertificateFilter struct {
	TemplateID    string
	RecipientID   string
	Status        CertificateStatus
	NeedsClaiming *bool
	Limit         int
	Offset        int
}
