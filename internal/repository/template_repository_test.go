package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/credentia/certify-api/internal/models"
)

func newTemplateRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func templateRows(id string, status models.TemplateStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "type", "description", "institution", "course_name",
		"recipient_name", "status", "created_by", "document_id", "reviewed_by", "reviewed_at", "created_at", "updated_at"}).
		AddRow(id, "Go Fundamentals", "COMPLETION", "", "Credentia", "Go 101",
			"Jane Doe", status, "author-1", nil, nil, nil, time.Now(), time.Now())
}

func TestTemplateRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, description")).
		WithArgs("tpl-1").
		WillReturnRows(templateRows("tpl-1", models.TemplateStatusPendingReview))

	tpl, err := repo.GetByID(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, "tpl-1", tpl.ID)
	require.Equal(t, models.TemplateStatusPendingReview, tpl.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryListStatusFilter(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM templates")).
		WithArgs(models.TemplateStatusPendingReview).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, description")).
		WithArgs(models.TemplateStatusPendingReview).
		WillReturnRows(templateRows("tpl-1", models.TemplateStatusPendingReview))

	templates, total, err := repo.List(context.Background(), models.TemplateFilter{
		Status: []models.TemplateStatus{models.TemplateStatusPendingReview},
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, templates, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositorySubmitDecisionCommitsWriteSet(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE templates")).
		WithArgs(models.TemplateStatusApproved, "reviewer-1", now, "tpl-1", models.TemplateStatusPendingReview).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO review_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SubmitDecision(context.Background(), DecisionWriteSet{
		TemplateID: "tpl-1",
		Status:     models.TemplateStatusApproved,
		ReviewerID: "reviewer-1",
		ReviewedAt: now,
		Review: &models.ReviewRecord{
			ID: "rev-1", TemplateID: "tpl-1", ReviewerID: "reviewer-1",
			Decision: models.DecisionApprove, CreatedAt: now,
		},
		Certificate: &models.Certificate{
			ID: "cert-1", TemplateID: "tpl-1", IssuerID: "reviewer-1",
			Status: models.CertificateStatusIssued, IssuedAt: now,
		},
		Activities: []*models.ActivityLog{{ID: "act-1", Action: models.ActivityTemplateApproved, EntityType: "template"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositorySubmitDecisionLosesRace(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE templates")).
		WithArgs(models.TemplateStatusApproved, "reviewer-1", now, "tpl-1", models.TemplateStatusPendingReview).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SubmitDecision(context.Background(), DecisionWriteSet{
		TemplateID: "tpl-1",
		Status:     models.TemplateStatusApproved,
		ReviewerID: "reviewer-1",
		ReviewedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryHasReview(t *testing.T) {
	db, mock, cleanup := newTemplateRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM review_records")).
		WithArgs("tpl-1", models.DecisionApprove).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	reviewed, err := repo.HasReview(context.Background(), "tpl-1", models.DecisionApprove)
	require.NoError(t, err)
	require.True(t, reviewed)
	require.NoError(t, mock.ExpectationsWereMet())
}
