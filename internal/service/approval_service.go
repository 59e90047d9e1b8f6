package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	"github.com/credentia/certify-api/internal/repository"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

type templateStore interface {
	GetByID(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context, filter models.TemplateFilter) ([]models.Template, int, error)
	SubmitDecision(ctx context.Context, set repository.DecisionWriteSet) error
	ReviewsByTemplate(ctx context.Context, templateID string) ([]models.ReviewRecord, error)
	HasReview(ctx context.Context, templateID string, decision models.ReviewDecision) (bool, error)
}

type certificateWriter interface {
	Create(ctx context.Context, cert *models.Certificate) error
}

type activityWriter interface {
	Create(ctx context.Context, activity *models.ActivityLog) error
}

type recipientResolver interface {
	Resolve(ctx context.Context, tpl *models.Template) (*Resolution, error)
}

type certificateMinter interface {
	Mint(tpl *models.Template, resolution *Resolution, issuer *models.User) (*models.Certificate, error)
}

type issuerStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type decisionNotifier interface {
	Notify(recipientID, title, body string, data map[string]string)
}

// ApprovalService governs template review. On approval it resolves the
// recipient, mints a certificate and commits everything as one atomic
// write set.
type ApprovalService struct {
	templates templateStore
	certs     certificateWriter
	activity  activityWriter
	resolver  recipientResolver
	minter    certificateMinter
	users     issuerStore
	notifier  decisionNotifier
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(templates templateStore, certs certificateWriter, activity activityWriter,
	resolver recipientResolver, minter certificateMinter, users issuerStore,
	notifier decisionNotifier, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		templates: templates,
		certs:     certs,
		activity:  activity,
		resolver:  resolver,
		minter:    minter,
		users:     users,
		notifier:  notifier,
		logger:    logger,
	}
}

// SetMetrics attaches the Prometheus instrumentation for issuance
// counts.
func (s *ApprovalService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// SubmitDecision applies a reviewer decision to a pending template.
// Resubmitting a decision whose target state the template already holds
// is a no-op; any other non-pending template yields InvalidTransition.
func (s *ApprovalService) SubmitDecision(ctx context.Context, templateID string, req dto.SubmitDecisionRequest, reviewer *models.JWTClaims) (*dto.DecisionResponse, error) {
	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := validateDecision(req); err != nil {
		return nil, err
	}

	tpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load template")
	}

	if tpl.Status != models.TemplateStatusPendingReview {
		return s.resolveNonPending(ctx, tpl, req.Decision)
	}

	now := time.Now().UTC()
	review := &models.ReviewRecord{
		ID:         uuid.NewString(),
		TemplateID: tpl.ID,
		ReviewerID: reviewer.UserID,
		Decision:   req.Decision,
		Comment:    strings.TrimSpace(req.Comment),
		CreatedAt:  now,
	}

	set := repository.DecisionWriteSet{
		TemplateID: tpl.ID,
		Status:     req.Decision.TargetStatus(),
		ReviewerID: reviewer.UserID,
		ReviewedAt: now,
		Review:     review,
		Activities: []*models.ActivityLog{decisionActivity(tpl, review)},
	}

	var cert *models.Certificate
	degraded := false
	if req.Decision == models.DecisionApprove {
		cert, err = s.prepareCertificate(ctx, tpl, reviewer)
		if err != nil {
			// Approval must not be blocked by a downstream identity
			// problem; commit the transition alone and fall back below.
			s.logger.Warn("certificate minting failed, committing approval without certificate",
				zap.String("template_id", tpl.ID), zap.Error(err))
			degraded = true
			cert = nil
		} else {
			set.Certificate = cert
			set.Activities = append(set.Activities, certificateActivity(cert, reviewer.UserID, models.ActivityCertificateIssued))
		}
	}

	if err := s.templates.SubmitDecision(ctx, set); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race: another reviewer got there first.
			refreshed, reloadErr := s.templates.GetByID(ctx, templateID)
			if reloadErr == nil {
				return s.resolveNonPending(ctx, refreshed, req.Decision)
			}
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to commit decision")
	}

	tpl.Status = req.Decision.TargetStatus()
	tpl.ReviewedBy = &reviewer.UserID
	tpl.ReviewedAt = &now

	if degraded {
		cert = s.mintFallback(ctx, tpl, reviewer)
	}
	if cert != nil {
		s.metrics.RecordIssued()
	}

	s.notifyAuthor(tpl, req.Decision, cert)

	return &dto.DecisionResponse{
		Template:    tpl,
		Review:      review,
		Certificate: cert,
		Degraded:    degraded,
	}, nil
}

// ListTemplates returns the reviewer inbox.
func (s *ApprovalService) ListTemplates(ctx context.Context, query dto.TemplateQuery) ([]models.Template, *models.Pagination, error) {
	filter := models.TemplateFilter{}
	if query.Status != "" {
		for _, part := range strings.Split(query.Status, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Status = append(filter.Status, models.TemplateStatus(part))
			}
		}
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	templates, total, err := s.templates.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// GetTemplate returns a template with its review history.
func (s *ApprovalService) GetTemplate(ctx context.Context, id string) (*dto.TemplateDetail, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	reviews, err := s.templates.ReviewsByTemplate(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review history")
	}
	return &dto.TemplateDetail{Template: tpl, Reviews: reviews}, nil
}

// resolveNonPending decides between an idempotent no-op and an invalid
// transition for a template that is no longer pending.
func (s *ApprovalService) resolveNonPending(ctx context.Context, tpl *models.Template, decision models.ReviewDecision) (*dto.DecisionResponse, error) {
	if tpl.Status != decision.TargetStatus() {
		return nil, appErrors.ErrInvalidTransition
	}
	reviewed, err := s.templates.HasReview(ctx, tpl.ID, decision)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to check review history")
	}
	if !reviewed {
		return nil, appErrors.ErrInvalidTransition
	}
	return &dto.DecisionResponse{Template: tpl, Idempotent: true}, nil
}

// prepareCertificate resolves the recipient and mints the certificate
// for inclusion in the decision write set.
func (s *ApprovalService) prepareCertificate(ctx context.Context, tpl *models.Template, reviewer *models.JWTClaims) (*models.Certificate, error) {
	resolution, err := s.resolver.Resolve(ctx, tpl)
	if err != nil {
		return nil, err
	}
	return s.minter.Mint(tpl, resolution, s.issuer(ctx, reviewer))
}

// mintFallback issues a placeholder certificate from template-supplied
// data alone after the regular mint failed. The outcome is recorded as a
// degraded-success activity, never silently dropped.
func (s *ApprovalService) mintFallback(ctx context.Context, tpl *models.Template, reviewer *models.JWTClaims) *models.Certificate {
	resolution := &Resolution{
		Identity: RecipientIdentity{
			ID:       PlaceholderIDPrefix + uuid.NewString(),
			Email:    PlaceholderEmail,
			FullName: tpl.RecipientName,
		},
		Confidence:    ResolutionPlaceholder,
		Step:          "approval_fallback",
		NeedsClaiming: true,
	}
	cert, err := s.minter.Mint(tpl, resolution, s.issuer(ctx, reviewer))
	if err != nil {
		s.logger.Error("fallback mint failed, approved template has no certificate",
			zap.String("template_id", tpl.ID), zap.Error(err))
		return nil
	}
	if err := s.certs.Create(ctx, cert); err != nil {
		s.logger.Error("failed to persist fallback certificate",
			zap.String("template_id", tpl.ID), zap.Error(err))
		return nil
	}
	if err := s.activity.Create(ctx, certificateActivity(cert, reviewer.UserID, models.ActivityCertificateDegraded)); err != nil {
		s.logger.Warn("failed to record degraded issuance activity",
			zap.String("certificate_id", cert.ID), zap.Error(err))
	}
	return cert
}

// issuer loads the reviewer's full identity; the JWT claims are enough
// when the lookup fails.
func (s *ApprovalService) issuer(ctx context.Context, reviewer *models.JWTClaims) *models.User {
	user, err := s.users.FindByID(ctx, reviewer.UserID)
	if err != nil {
		s.logger.Warn("issuer lookup failed, using token identity", zap.String("user_id", reviewer.UserID), zap.Error(err))
		return &models.User{ID: reviewer.UserID, Email: reviewer.Email, FullName: reviewer.FullName}
	}
	return user
}

func (s *ApprovalService) notifyAuthor(tpl *models.Template, decision models.ReviewDecision, cert *models.Certificate) {
	if s.notifier == nil || tpl.CreatedBy == "" {
		return
	}
	data := map[string]string{
		"templateId": tpl.ID,
		"decision":   string(decision),
	}
	if cert != nil {
		data["certificateId"] = cert.ID
	}
	title := "Template review completed"
	body := "Your template \"" + tpl.Name + "\" was reviewed: " + string(decision)
	s.notifier.Notify(tpl.CreatedBy, title, body, data)
}

func validateDecision(req dto.SubmitDecisionRequest) error {
	switch req.Decision {
	case models.DecisionApprove, models.DecisionReject, models.DecisionRequestRevision:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVE, REJECT, or REQUEST_REVISION")
	}
	if req.Decision.RequiresComment() && strings.TrimSpace(req.Comment) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "comment is required for this decision")
	}
	return nil
}

func decisionActivity(tpl *models.Template, review *models.ReviewRecord) *models.ActivityLog {
	action := models.ActivityTemplateApproved
	switch review.Decision {
	case models.DecisionReject:
		action = models.ActivityTemplateRejected
	case models.DecisionRequestRevision:
		action = models.ActivityTemplateRevision
	}
	metadata, _ := json.Marshal(map[string]string{
		"decision": string(review.Decision),
		"reviewId": review.ID,
	})
	return &models.ActivityLog{
		ID:         uuid.NewString(),
		ActorID:    &review.ReviewerID,
		Action:     action,
		EntityType: "template",
		EntityID:   &tpl.ID,
		Metadata:   metadata,
		IPAddress:  "system",
		CreatedAt:  review.CreatedAt,
	}
}

func certificateActivity(cert *models.Certificate, actorID, action string) *models.ActivityLog {
	metadata, _ := json.Marshal(map[string]string{
		"templateId":    cert.TemplateID,
		"recipientName": cert.RecipientName,
	})
	return &models.ActivityLog{
		ID:         uuid.NewString(),
		ActorID:    &actorID,
		Action:     action,
		EntityType: "certificate",
		EntityID:   &cert.ID,
		Metadata:   metadata,
		IPAddress:  "system",
		CreatedAt:  cert.IssuedAt,
	}
}
