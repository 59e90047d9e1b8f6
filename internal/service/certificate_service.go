package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	"github.com/credentia/certify-api/internal/repository"
	appErrors "github.com/credentia/certify-api/pkg/errors"
	"github.com/credentia/certify-api/pkg/export"
	"github.com/credentia/certify-api/pkg/jobs"
	"github.com/credentia/certify-api/pkg/storage"
)

type certificateStore interface {
	GetByID(ctx context.Context, id string) (*models.Certificate, error)
	List(ctx context.Context, filter models.CertificateFilter) ([]models.Certificate, int, error)
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
}

type exportDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// CertificateServiceConfig tunes registry export behaviour.
type CertificateServiceConfig struct {
	APIPrefix  string
	MaxRetries int
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// CertificateService exposes the issued-certificate registry and its
// asynchronous export pipeline.
type CertificateService struct {
	certs    certificateStore
	exports  exportJobStore
	activity activityWriter
	queue    exportDispatcher
	storage  exportFileStorage
	signer   *storage.SignedURLSigner
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	cfg      CertificateServiceConfig
}

// NewCertificateService constructs the service.
func NewCertificateService(certs certificateStore, exports exportJobStore, activity activityWriter,
	queue exportDispatcher, store exportFileStorage, signer *storage.SignedURLSigner,
	cfg CertificateServiceConfig, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &CertificateService{
		certs:    certs,
		exports:  exports,
		activity: activity,
		queue:    queue,
		storage:  store,
		signer:   signer,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		cfg:      cfg,
	}
}

// SetQueue attaches the export dispatcher. The queue handler is a method
// on this service, so the queue can only be built after the service.
func (s *CertificateService) SetQueue(queue exportDispatcher) {
	s.queue = queue
}

// List returns registry entries matching the query.
func (s *CertificateService) List(ctx context.Context, query dto.CertificateQuery) ([]models.Certificate, *models.Pagination, error) {
	page := query.Page
	if page <= 0 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filter := models.CertificateFilter{
		TemplateID:    query.TemplateID,
		RecipientID:   query.RecipientID,
		NeedsClaiming: query.NeedsClaiming,
		Limit:         limit,
		Offset:        (page - 1) * limit,
	}
	certs, total, err := s.certs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certs, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}

// Get fetches one certificate by ID.
func (s *CertificateService) Get(ctx context.Context, id string) (*models.Certificate, error) {
	cert, err := s.certs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

// RequestExport persists an export job and queues it for processing.
func (s *CertificateService) RequestExport(ctx context.Context, req dto.ExportRequest, actorID string) (*dto.ExportJobView, error) {
	if s.queue == nil || s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	job := &models.ExportJob{
		Params: models.ExportJobParams{
			Format:        req.Format,
			TemplateID:    req.TemplateID,
			NeedsClaiming: req.NeedsClaiming,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.exports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "registry_export"}); err != nil {
		failed := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.exports.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &failed,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	s.recordExportRequested(ctx, job, actorID)

	return &dto.ExportJobView{ID: job.ID, Status: job.Status, Format: job.Params.Format}, nil
}

// GetExport exposes export job progress, enforcing ownership for non-admins.
func (s *CertificateService) GetExport(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportJobView, error) {
	job, err := s.exports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	view := &dto.ExportJobView{
		ID:     job.ID,
		Status: job.Status,
		Format: job.Params.Format,
	}
	if job.ResultURL != nil {
		view.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		view.ErrorMessage = job.ErrorMessage
	}
	return view, nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *CertificateService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.exports.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// ProcessExport is the queue handler: it renders the registry snapshot
// and publishes the signed download URL.
func (s *CertificateService) ProcessExport(ctx context.Context, job jobs.Job) error {
	record, err := s.exports.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	if err := s.exports.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	url, genErr := s.generate(ctx, record)
	if genErr != nil {
		msg := genErr.Error()
		if job.Attempt >= s.cfg.MaxRetries {
			failed := models.ExportStatusFailed
			now := time.Now().UTC()
			if updateErr := s.exports.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &failed,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				s.logger.Sugar().Warnw("failed to mark export failed", "job_id", job.ID, "error", updateErr)
			}
		} else {
			queued := models.ExportStatusQueued
			if updateErr := s.exports.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:       &queued,
				ErrorMessage: &msg,
			}); updateErr != nil {
				s.logger.Sugar().Warnw("failed to mark export queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return genErr
	}

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	clear := ""
	if err := s.exports.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark export finished", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}

func (s *CertificateService) generate(ctx context.Context, job *models.ExportJob) (string, error) {
	filter := models.CertificateFilter{
		TemplateID:    job.Params.TemplateID,
		NeedsClaiming: job.Params.NeedsClaiming,
		Limit:         200,
	}

	dataset := export.Dataset{
		Headers: []string{"Certificate ID", "Title", "Category", "Recipient", "Recipient Email", "Issuer", "Verification Code", "Needs Claiming", "Issued At"},
	}
	for {
		certs, total, err := s.certs.List(ctx, filter)
		if err != nil {
			return "", err
		}
		for _, cert := range certs {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Certificate ID":    cert.ID,
				"Title":             cert.Title,
				"Category":          string(cert.Category),
				"Recipient":         cert.RecipientName,
				"Recipient Email":   cert.RecipientEmail,
				"Issuer":            cert.IssuerName,
				"Verification Code": cert.VerificationCode,
				"Needs Claiming":    fmt.Sprintf("%t", cert.NeedsClaiming),
				"Issued At":         cert.IssuedAt.UTC().Format(time.RFC3339),
			})
		}
		filter.Offset += len(certs)
		if len(certs) == 0 || filter.Offset >= total {
			break
		}
	}

	var payload []byte
	var err error
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Certificate Registry")
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("registry_%s.%s", time.Now().UTC().Format("20060102_150405"), job.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return "", err
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token), nil
}

func (s *CertificateService) recordExportRequested(ctx context.Context, job *models.ExportJob, actorID string) {
	entry := &models.ActivityLog{
		Action:     models.ActivityExportRequested,
		EntityType: "export_job",
		EntityID:   &job.ID,
		Metadata:   []byte(fmt.Sprintf(`{"format":%q}`, job.Params.Format)),
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.activity.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record export activity", zap.Error(err))
	}
}
