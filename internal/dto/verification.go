package dto

import (
	"time"

	"github.com/credentia/certify-api/internal/models"
)

// VerifyRequest carries the opaque verification token and an optional
// access password.
type VerifyRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password"`
}

// CertificateView is the public representation of a verified
// certificate. Internal fields (template linkage, password hash,
// metadata bag) are deliberately absent.
type CertificateView struct {
	ID                 string                     `json:"id"`
	Title              string                     `json:"title"`
	Category           models.CertificateCategory `json:"category"`
	RecipientName      string                     `json:"recipient_name"`
	IssuerName         string                     `json:"issuer_name"`
	IssuerOrganization string                     `json:"issuer_organization"`
	VerificationCode   string                     `json:"verification_code"`
	ContentHash        string                     `json:"content_hash"`
	Status             models.CertificateStatus   `json:"status"`
	IssuedAt           time.Time                  `json:"issued_at"`
	ExpiresAt          *time.Time                 `json:"expires_at,omitempty"`
}

// NewCertificateView maps a certificate onto its public view.
func NewCertificateView(cert *models.Certificate) *CertificateView {
	if cert == nil {
		return nil
	}
	return &CertificateView{
		ID:                 cert.ID,
		Title:              cert.Title,
		Category:           cert.Category,
		RecipientName:      cert.RecipientName,
		IssuerName:         cert.IssuerName,
		IssuerOrganization: cert.IssuerOrganization,
		VerificationCode:   cert.VerificationCode,
		ContentHash:        cert.ContentHash,
		Status:             cert.Status,
		IssuedAt:           cert.IssuedAt,
		ExpiresAt:          cert.ExpiresAt,
	}
}
