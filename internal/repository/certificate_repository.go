package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/credentia/certify-api/internal/models"
)

// CertificateRepository reads issued certificates. Certificates are only
// ever written through the decision transaction in TemplateRepository;
// this repository never mutates them.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = `id, template_id, issuer_id, issuer_name, issuer_organization, recipient_id,
       recipient_name, recipient_email, title, category, verification_code, verification_id, content_hash,
       qr_payload, status, needs_claiming, access_password_hash, expires_at, issued_at, metadata`

// Create inserts a certificate outside the decision transaction. Only
// the degraded fallback path uses this; regular issuance goes through
// TemplateRepository.SubmitDecision.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	const query = `INSERT INTO certificates
	(id, template_id, issuer_id, issuer_name, issuer_organization, recipient_id, recipient_name, recipient_email,
	 title, category, verification_code, verification_id, content_hash, qr_payload, status, needs_claiming,
	 access_password_hash, expires_at, issued_at, metadata)
	VALUES (:id, :template_id, :issuer_id, :issuer_name, :issuer_organization, :recipient_id, :recipient_name, :recipient_email,
	 :title, :category, :verification_code, :verification_id, :content_hash, :qr_payload, :status, :needs_claiming,
	 :access_password_hash, :expires_at, :issued_at, :metadata)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

// GetByID fetches a certificate by its primary identifier.
func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE id = $1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindByVerificationID looks up an issued certificate by its opaque
// verification token.
func (r *CertificateRepository) FindByVerificationID(ctx context.Context, verificationID string) (*models.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates WHERE verification_id = $1 AND status = $2 LIMIT 1`, certificateColumns)
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, verificationID, models.CertificateStatusIssued); err != nil {
		return nil, err
	}
	return &cert, nil
}

// List returns certificates matching the filter (newest first) with total count.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.Certificate, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.TemplateID != "" {
		args = append(args, filter.TemplateID)
		conditions = append(conditions, fmt.Sprintf("template_id = $%d", len(args)))
	}
	if filter.RecipientID != "" {
		args = append(args, filter.RecipientID)
		conditions = append(conditions, fmt.Sprintf("recipient_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.NeedsClaiming != nil {
		args = append(args, *filter.NeedsClaiming)
		conditions = append(conditions, fmt.Sprintf("needs_claiming = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM certificates"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM certificates%s ORDER BY issued_at DESC LIMIT %d OFFSET %d",
		certificateColumns, where, limit, offset)

	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}
	return certs, total, nil
}
