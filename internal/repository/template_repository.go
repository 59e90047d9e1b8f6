package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credentia/certify-api/internal/models"
)

// TemplateRepository persists credential templates and owns the atomic
// decision write set.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, name, type, description, institution, course_name, recipient_name, status,
       created_by, document_id, reviewed_by, reviewed_at, created_at, updated_at`

// GetByID fetches a template by identifier.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	query := fmt.Sprintf(`SELECT %s FROM templates WHERE id = $1`, templateColumns)
	var tpl models.Template
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// List returns templates matching the filter (newest first).
func (r *TemplateRepository) List(ctx context.Context, filter models.TemplateFilter) ([]models.Template, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM templates" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM templates%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		templateColumns, where, limit, offset)

	var templates []models.Template
	if err := r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	return templates, total, nil
}

// DecisionWriteSet groups every record committed by a single reviewer
// decision. All rows succeed or none do.
type DecisionWriteSet struct {
	TemplateID  string
	Status      models.TemplateStatus
	ReviewerID  string
	ReviewedAt  time.Time
	Review      *models.ReviewRecord
	Certificate *models.Certificate
	Activities  []*models.ActivityLog
}

// SubmitDecision applies the decision write set in one transaction. The
// template status update is guarded on PENDING_REVIEW; a zero-row update
// aborts the transaction with sql.ErrNoRows so racing reviewers lose
// cleanly.
func (r *TemplateRepository) SubmitDecision(ctx context.Context, set DecisionWriteSet) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const updateQuery = `UPDATE templates
SET status = $1, reviewed_by = $2, reviewed_at = $3, updated_at = $3
WHERE id = $4 AND status = $5`
	result, err := tx.ExecContext(ctx, updateQuery,
		set.Status, set.ReviewerID, set.ReviewedAt, set.TemplateID, models.TemplateStatusPendingReview)
	if err != nil {
		return fmt.Errorf("update template status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check template update rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if set.Review != nil {
		if err = insertReview(ctx, tx, set.Review); err != nil {
			return err
		}
	}
	if set.Certificate != nil {
		if err = insertCertificate(ctx, tx, set.Certificate); err != nil {
			return err
		}
	}
	for _, activity := range set.Activities {
		if err = insertActivity(ctx, tx, activity); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit decision transaction: %w", err)
	}
	return nil
}

// ReviewsByTemplate returns the review history for a template, newest first.
func (r *TemplateRepository) ReviewsByTemplate(ctx context.Context, templateID string) ([]models.ReviewRecord, error) {
	const query = `SELECT id, template_id, reviewer_id, decision, comment, created_at
FROM review_records WHERE template_id = $1 ORDER BY created_at DESC`
	var reviews []models.ReviewRecord
	if err := r.db.SelectContext(ctx, &reviews, query, templateID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// HasReview reports whether a review with the given decision already
// exists for the template (used for idempotent resubmission).
func (r *TemplateRepository) HasReview(ctx context.Context, templateID string, decision models.ReviewDecision) (bool, error) {
	const query = `SELECT COUNT(*) FROM review_records WHERE template_id = $1 AND decision = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, templateID, decision); err != nil {
		return false, fmt.Errorf("count reviews: %w", err)
	}
	return count > 0, nil
}

func insertReview(ctx context.Context, tx *sqlx.Tx, review *models.ReviewRecord) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO review_records (id, template_id, reviewer_id, decision, comment, created_at)
VALUES (:id, :template_id, :reviewer_id, :decision, :comment, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, review); err != nil {
		return fmt.Errorf("insert review record: %w", err)
	}
	return nil
}

func insertCertificate(ctx context.Context, tx *sqlx.Tx, cert *models.Certificate) error {
	const query = `INSERT INTO certificates
	(id, template_id, issuer_id, issuer_name, issuer_organization, recipient_id, recipient_name, recipient_email,
	 title, category, verification_code, verification_id, content_hash, qr_payload, status, needs_claiming,
	 access_password_hash, expires_at, issued_at, metadata)
	VALUES (:id, :template_id, :issuer_id, :issuer_name, :issuer_organization, :recipient_id, :recipient_name, :recipient_email,
	 :title, :category, :verification_code, :verification_id, :content_hash, :qr_payload, :status, :needs_claiming,
	 :access_password_hash, :expires_at, :issued_at, :metadata)`
	if _, err := tx.NamedExecContext(ctx, query, cert); err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func insertActivity(ctx context.Context, tx *sqlx.Tx, activity *models.ActivityLog) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs (id, actor_id, action, entity_type, entity_id, metadata, ip_address, created_at)
VALUES (:id, :actor_id, :action, :entity_type, :entity_id, :metadata, :ip_address, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}
