package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

type verificationCertStore interface {
	FindByVerificationID(ctx context.Context, verificationID string) (*models.Certificate, error)
}

type verificationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// VerificationService is the public read path: it proves a certificate
// is authentic given its opaque verification token. Every attempt is
// audited; the certificate itself is never mutated.
type VerificationService struct {
	certs    verificationCertStore
	activity activityWriter
	cache    verificationCache
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewVerificationService constructs the service. The cache is optional.
func NewVerificationService(certs verificationCertStore, activity activityWriter, cache verificationCache, cacheTTL time.Duration, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &VerificationService{
		certs:    certs,
		activity: activity,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// SetMetrics attaches the Prometheus instrumentation for cache
// hit/miss counts.
func (s *VerificationService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Verify locates an issued certificate by token and reports its
// authenticity. Failure responses are deliberately information-minimal.
func (s *VerificationService) Verify(ctx context.Context, req dto.VerifyRequest, ip string) (*dto.CertificateView, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}

	cert, err := s.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.audit(ctx, models.ActivityVerificationFailed, nil, ip, map[string]string{"token": token})
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "verification lookup failed")
	}

	if cert.PasswordProtected() {
		if req.Password == "" {
			s.audit(ctx, models.ActivityVerificationFailed, cert, ip, map[string]string{"token": token, "reason": "password_required"})
			return nil, appErrors.ErrPasswordRequired
		}
		if !matchAccessPassword(*cert.AccessPasswordHash, req.Password) {
			s.audit(ctx, models.ActivityVerificationPwdFailed, cert, ip, map[string]string{"token": token})
			return nil, appErrors.ErrInvalidPassword
		}
	}

	s.audit(ctx, models.ActivityVerificationSucceeded, cert, ip, map[string]string{
		"token":         token,
		"certificateId": cert.ID,
		"recipientName": cert.RecipientName,
	})
	return dto.NewCertificateView(cert), nil
}

func (s *VerificationService) lookup(ctx context.Context, token string) (*models.Certificate, error) {
	cacheKey := "verify:" + token
	if s.cache != nil {
		var cached models.Certificate
		err := s.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("verification cache read failed", zap.Error(err))
		}
	}

	cert, err := s.certs.FindByVerificationID(ctx, token)
	if err != nil {
		return nil, err
	}

	// Password-protected rows are never cached: the JSON round-trip
	// strips the access hash, so a cached copy would skip the gate.
	if s.cache != nil && !cert.PasswordProtected() {
		if err := s.cache.Set(ctx, cacheKey, cert, s.cacheTTL); err != nil {
			s.logger.Warn("verification cache write failed", zap.Error(err))
		}
	}
	return cert, nil
}

// matchAccessPassword compares against a bcrypt hash. Rows migrated from
// the legacy system may still hold plaintext; those fall back to a
// constant-time equality check until re-hashed.
func matchAccessPassword(stored, supplied string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func (s *VerificationService) audit(ctx context.Context, action string, cert *models.Certificate, ip string, fields map[string]string) {
	if s.activity == nil {
		return
	}
	metadata, _ := json.Marshal(fields)
	activity := &models.ActivityLog{
		Action:     action,
		EntityType: "certificate",
		Metadata:   metadata,
		IPAddress:  ip,
	}
	if cert != nil {
		id := cert.ID
		activity.EntityID = &id
	}
	if err := s.activity.Create(ctx, activity); err != nil {
		s.logger.Warn("failed to persist verification activity", zap.Error(err))
	}
}
