package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/credentia/certify-api/internal/models"
)

const verificationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const verificationCodeLength = 8

// MinterConfig tunes certificate generation.
type MinterConfig struct {
	VerificationBaseURL string
}

// CertificateMinter constructs fully-formed certificate records. It
// persists nothing; the caller includes the result in its own write set.
type CertificateMinter struct {
	cfg MinterConfig
}

// NewCertificateMinter constructs the minter.
func NewCertificateMinter(cfg MinterConfig) *CertificateMinter {
	return &CertificateMinter{cfg: cfg}
}

// Mint builds an immutable certificate record from a template, a
// resolved recipient and the approving issuer.
func (m *CertificateMinter) Mint(tpl *models.Template, resolution *Resolution, issuer *models.User) (*models.Certificate, error) {
	certID := uuid.NewString()
	verificationID := uuid.NewString()

	code, err := generateVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	issuedAt := time.Now().UTC()

	metadata, err := json.Marshal(models.CertificateMetadata{
		SourceTemplateID: tpl.ID,
		AutoIssued:       true,
		IssuedByUserID:   issuer.ID,
		NeedsClaiming:    resolution.NeedsClaiming,
		ResolutionStep:   resolution.Step,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal certificate metadata: %w", err)
	}

	return &models.Certificate{
		ID:                 certID,
		TemplateID:         tpl.ID,
		IssuerID:           issuer.ID,
		IssuerName:         issuer.FullName,
		IssuerOrganization: issuer.Organization,
		RecipientID:        resolution.Identity.ID,
		RecipientName:      resolution.Identity.FullName,
		RecipientEmail:     resolution.Identity.Email,
		Title:              tpl.Name,
		Category:           mapCategory(tpl.Type),
		VerificationCode:   code,
		VerificationID:     verificationID,
		ContentHash:        contentFingerprint(certID, code, issuedAt),
		QRPayload:          fmt.Sprintf("%s?certId=%s&code=%s", m.cfg.VerificationBaseURL, certID, code),
		Status:             models.CertificateStatusIssued,
		NeedsClaiming:      resolution.NeedsClaiming,
		IssuedAt:           issuedAt,
		Metadata:           metadata,
	}, nil
}

// mapCategory maps a template's declared type onto the closed category
// set. Unknown values fall back to the generic category.
func mapCategory(raw string) models.CertificateCategory {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETION", "COURSE", "COURSE_COMPLETION":
		return models.CategoryCompletion
	case "ACHIEVEMENT", "AWARD":
		return models.CategoryAchievement
	case "ATTENDANCE", "PARTICIPATION":
		return models.CategoryAttendance
	case "MEMBERSHIP":
		return models.CategoryMembership
	default:
		return models.CategoryGeneric
	}
}

// contentFingerprint derives a tamper-evidence hash over the issuance
// moment. It is not a cryptographic signature and must not be presented
// as proof of non-repudiation.
func contentFingerprint(certID, code string, issuedAt time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s", certID, code, issuedAt.Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// generateVerificationCode draws a short code from the fixed alphabet.
// Collisions are rare but possible; uniqueness is enforced by the store.
func generateVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, verificationCodeLength)
	for i, b := range buf {
		code[i] = verificationCodeAlphabet[int(b)%len(verificationCodeAlphabet)]
	}
	return string(code), nil
}
