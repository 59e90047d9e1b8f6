package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	"github.com/credentia/certify-api/internal/repository"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

type templateStoreStub struct {
	templates    map[string]*models.Template
	reviews      []*models.ReviewRecord
	certs        []*models.Certificate
	writeSets    []repository.DecisionWriteSet
	submitErr    error
	flipOnSubmit models.TemplateStatus
}

func newTemplateStoreStub() *templateStoreStub {
	return &templateStoreStub{templates: make(map[string]*models.Template)}
}

func (s *templateStoreStub) GetByID(ctx context.Context, id string) (*models.Template, error) {
	if tpl, ok := s.templates[id]; ok {
		copy := *tpl
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *templateStoreStub) List(ctx context.Context, filter models.TemplateFilter) ([]models.Template, int, error) {
	result := make([]models.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		result = append(result, *tpl)
	}
	return result, len(result), nil
}

func (s *templateStoreStub) SubmitDecision(ctx context.Context, set repository.DecisionWriteSet) error {
	if s.submitErr != nil {
		if s.flipOnSubmit != "" {
			s.templates[set.TemplateID].Status = s.flipOnSubmit
		}
		return s.submitErr
	}
	tpl, ok := s.templates[set.TemplateID]
	if !ok || tpl.Status != models.TemplateStatusPendingReview {
		return sql.ErrNoRows
	}
	tpl.Status = set.Status
	tpl.ReviewedBy = &set.ReviewerID
	tpl.ReviewedAt = &set.ReviewedAt
	if set.Review != nil {
		s.reviews = append(s.reviews, set.Review)
	}
	if set.Certificate != nil {
		s.certs = append(s.certs, set.Certificate)
	}
	s.writeSets = append(s.writeSets, set)
	return nil
}

func (s *templateStoreStub) ReviewsByTemplate(ctx context.Context, templateID string) ([]models.ReviewRecord, error) {
	result := make([]models.ReviewRecord, 0, len(s.reviews))
	for _, review := range s.reviews {
		if review.TemplateID == templateID {
			result = append(result, *review)
		}
	}
	return result, nil
}

func (s *templateStoreStub) HasReview(ctx context.Context, templateID string, decision models.ReviewDecision) (bool, error) {
	for _, review := range s.reviews {
		if review.TemplateID == templateID && review.Decision == decision {
			return true, nil
		}
	}
	return false, nil
}

type certWriterStub struct {
	created []*models.Certificate
	err     error
}

func (s *certWriterStub) Create(ctx context.Context, cert *models.Certificate) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, cert)
	return nil
}

type activityWriterStub struct {
	entries []*models.ActivityLog
}

func (s *activityWriterStub) Create(ctx context.Context, activity *models.ActivityLog) error {
	s.entries = append(s.entries, activity)
	return nil
}

type resolverStub struct {
	resolution *Resolution
	err        error
}

func (s *resolverStub) Resolve(ctx context.Context, tpl *models.Template) (*Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resolution, nil
}

type notifierStub struct {
	recipients []string
}

func (s *notifierStub) Notify(recipientID, title, body string, data map[string]string) {
	s.recipients = append(s.recipients, recipientID)
}

func confidentResolution() *Resolution {
	return &Resolution{
		Identity:   RecipientIdentity{ID: "user-1", Email: "jane@example.com", FullName: "Jane Doe"},
		Confidence: ResolutionConfident,
		Step:       "document_uploader",
	}
}

func pendingTemplate() *models.Template {
	return &models.Template{
		ID:            "tpl-1",
		Name:          "Go Fundamentals",
		Type:          "COMPLETION",
		RecipientName: "Jane Doe",
		Status:        models.TemplateStatusPendingReview,
		CreatedBy:     "author-1",
	}
}

func newApprovalFixture(templates *templateStoreStub, resolver *resolverStub) (*ApprovalService, *certWriterStub, *activityWriterStub, *notifierStub) {
	certs := &certWriterStub{}
	activity := &activityWriterStub{}
	notifier := &notifierStub{}
	users := newUserStoreStub()
	users.byID["reviewer-1"] = &models.User{ID: "reviewer-1", FullName: "Pat Reviewer", Organization: "Credentia"}
	minter := NewCertificateMinter(MinterConfig{VerificationBaseURL: "https://certs.example.com/verify"})
	svc := NewApprovalService(templates, certs, activity, resolver, minter, users, notifier, nil)
	return svc, certs, activity, notifier
}

func reviewerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "reviewer-1", Role: models.RoleReviewer, Email: "pat@credentia.io", FullName: "Pat Reviewer"}
}

func TestApproveIssuesCertificateAtomically(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	svc, _, _, notifier := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})

	result, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.NoError(t, err)
	require.Equal(t, models.TemplateStatusApproved, result.Template.Status)
	require.False(t, result.Degraded)
	require.NotNil(t, result.Certificate)
	require.Equal(t, "user-1", result.Certificate.RecipientID)

	// Review, certificate, and activities all land in the same write set.
	require.Len(t, templates.writeSets, 1)
	set := templates.writeSets[0]
	require.NotNil(t, set.Review)
	require.NotNil(t, set.Certificate)
	require.Len(t, set.Activities, 2)
	require.Equal(t, []string{"author-1"}, notifier.recipients)
}

func TestRejectRequiresComment(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	svc, _, _, _ := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})

	_, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionReject}, reviewerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	result, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionReject, Comment: "logo is wrong"}, reviewerClaims())
	require.NoError(t, err)
	require.Equal(t, models.TemplateStatusRejected, result.Template.Status)
	require.Nil(t, result.Certificate)
}

func TestDecisionOnUnknownTemplate(t *testing.T) {
	templates := newTemplateStoreStub()
	svc, _, _, _ := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})

	_, err := svc.SubmitDecision(context.Background(), "missing", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestResubmitSameDecisionIsIdempotent(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	svc, _, _, _ := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})

	first, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.NoError(t, err)
	require.False(t, first.Idempotent)

	second, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.NoError(t, err)
	require.True(t, second.Idempotent)
	require.Len(t, templates.writeSets, 1)
	require.Len(t, templates.certs, 1)
}

func TestConflictingDecisionIsInvalidTransition(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	svc, _, _, _ := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})

	_, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.NoError(t, err)

	_, err = svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionReject, Comment: "changed my mind"}, reviewerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestApproveWithResolverFailureFallsBackDegraded(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	resolver := &resolverStub{err: errors.New("directory offline")}
	svc, certs, activity, _ := newApprovalFixture(templates, resolver)

	result, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Equal(t, models.TemplateStatusApproved, result.Template.Status)

	// The transition committed without a certificate in the write set.
	require.Len(t, templates.writeSets, 1)
	require.Nil(t, templates.writeSets[0].Certificate)

	// The fallback certificate was persisted separately as a placeholder.
	require.Len(t, certs.created, 1)
	fallback := certs.created[0]
	require.True(t, fallback.NeedsClaiming)
	require.Equal(t, PlaceholderEmail, fallback.RecipientEmail)
	require.Equal(t, "Jane Doe", fallback.RecipientName)
	require.True(t, strings.HasPrefix(fallback.RecipientID, PlaceholderIDPrefix))

	// Degraded issuance is audited.
	require.Len(t, activity.entries, 1)
	require.Equal(t, models.ActivityCertificateDegraded, activity.entries[0].Action)
}

func TestApproveCountsIssuedCertificates(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	svc, _, _, _ := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})
	metrics := NewMetricsService()
	svc.SetMetrics(metrics)

	_, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.NoError(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.issuedTotal))
}

func TestLostRaceResolvesAgainstRefreshedState(t *testing.T) {
	templates := newTemplateStoreStub()
	templates.templates["tpl-1"] = pendingTemplate()
	svc, _, _, _ := newApprovalFixture(templates, &resolverStub{resolution: confidentResolution()})

	// Simulate another reviewer winning between read and write.
	templates.submitErr = sql.ErrNoRows
	templates.flipOnSubmit = models.TemplateStatusRejected

	_, err := svc.SubmitDecision(context.Background(), "tpl-1", dto.SubmitDecisionRequest{Decision: models.DecisionApprove}, reviewerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}
