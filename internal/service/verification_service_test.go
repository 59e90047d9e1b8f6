package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

type verificationCertStoreStub struct {
	byVerificationID map[string]*models.Certificate
	lookups          int
}

func newVerificationCertStoreStub() *verificationCertStoreStub {
	return &verificationCertStoreStub{byVerificationID: make(map[string]*models.Certificate)}
}

func (s *verificationCertStoreStub) FindByVerificationID(ctx context.Context, verificationID string) (*models.Certificate, error) {
	s.lookups++
	if cert, ok := s.byVerificationID[verificationID]; ok {
		copy := *cert
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type verificationCacheStub struct {
	entries map[string][]byte
}

func newVerificationCacheStub() *verificationCacheStub {
	return &verificationCacheStub{entries: make(map[string][]byte)}
}

func (s *verificationCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := s.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (s *verificationCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.entries[key] = data
	return nil
}

func issuedCertificate() *models.Certificate {
	return &models.Certificate{
		ID:               "cert-1",
		TemplateID:       "tpl-1",
		IssuerName:       "Pat Reviewer",
		RecipientName:    "Jane Doe",
		Title:            "Go Fundamentals",
		Category:         models.CategoryCompletion,
		VerificationCode: "AB12CD34",
		VerificationID:   "ver-1",
		ContentHash:      "hash",
		Status:           models.CertificateStatusIssued,
		IssuedAt:         time.Now().UTC(),
	}
}

func TestVerifySuccessAuditsAttempt(t *testing.T) {
	store := newVerificationCertStoreStub()
	store.byVerificationID["ver-1"] = issuedCertificate()
	activity := &activityWriterStub{}
	svc := NewVerificationService(store, activity, nil, 0, nil)

	view, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "203.0.113.9")
	require.NoError(t, err)
	require.Equal(t, "cert-1", view.ID)
	require.Equal(t, "Jane Doe", view.RecipientName)

	require.Len(t, activity.entries, 1)
	require.Equal(t, models.ActivityVerificationSucceeded, activity.entries[0].Action)
	require.Equal(t, "203.0.113.9", activity.entries[0].IPAddress)
}

func TestVerifyUnknownTokenIsGenericNotFound(t *testing.T) {
	store := newVerificationCertStoreStub()
	activity := &activityWriterStub{}
	svc := NewVerificationService(store, activity, nil, 0, nil)

	_, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "bogus"}, "203.0.113.9")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.Len(t, activity.entries, 1)
	require.Equal(t, models.ActivityVerificationFailed, activity.entries[0].Action)
}

func TestVerifyEmptyTokenRejectedWithoutAudit(t *testing.T) {
	store := newVerificationCertStoreStub()
	activity := &activityWriterStub{}
	svc := NewVerificationService(store, activity, nil, 0, nil)

	_, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "  "}, "203.0.113.9")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Empty(t, activity.entries)
}

func TestVerifyPasswordProtected(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	cert := issuedCertificate()
	hashed := string(hash)
	cert.AccessPasswordHash = &hashed

	store := newVerificationCertStoreStub()
	store.byVerificationID["ver-1"] = cert
	activity := &activityWriterStub{}
	svc := NewVerificationService(store, activity, nil, 0, nil)

	_, err = svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.Equal(t, appErrors.ErrPasswordRequired.Code, appErrors.FromError(err).Code)

	_, err = svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1", Password: "wrong"}, "")
	require.Equal(t, appErrors.ErrInvalidPassword.Code, appErrors.FromError(err).Code)

	view, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1", Password: "s3cret"}, "")
	require.NoError(t, err)
	require.Equal(t, "cert-1", view.ID)

	// Each attempt leaves its own audit record.
	require.Len(t, activity.entries, 3)
	require.Equal(t, models.ActivityVerificationFailed, activity.entries[0].Action)
	require.Equal(t, models.ActivityVerificationPwdFailed, activity.entries[1].Action)
	require.Equal(t, models.ActivityVerificationSucceeded, activity.entries[2].Action)
}

func TestVerifyLegacyPlaintextPassword(t *testing.T) {
	cert := issuedCertificate()
	plain := "legacy-pass"
	cert.AccessPasswordHash = &plain

	store := newVerificationCertStoreStub()
	store.byVerificationID["ver-1"] = cert
	svc := NewVerificationService(store, &activityWriterStub{}, nil, 0, nil)

	_, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1", Password: "nope"}, "")
	require.Error(t, err)

	view, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1", Password: "legacy-pass"}, "")
	require.NoError(t, err)
	require.Equal(t, "cert-1", view.ID)
}

func TestVerifyUsesCacheOnRepeatLookups(t *testing.T) {
	store := newVerificationCertStoreStub()
	store.byVerificationID["ver-1"] = issuedCertificate()
	cache := newVerificationCacheStub()
	activity := &activityWriterStub{}
	svc := NewVerificationService(store, activity, cache, time.Minute, nil)

	_, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.NoError(t, err)

	require.Equal(t, 1, store.lookups)
	// Caching never suppresses the per-attempt audit trail.
	require.Len(t, activity.entries, 2)
}

func TestVerifyPasswordProtectedNeverCached(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	cert := issuedCertificate()
	hashed := string(hash)
	cert.AccessPasswordHash = &hashed

	store := newVerificationCertStoreStub()
	store.byVerificationID["ver-1"] = cert
	cache := newVerificationCacheStub()
	svc := NewVerificationService(store, &activityWriterStub{}, cache, time.Minute, nil)

	// A refused attempt must not seed the cache for later callers.
	_, err = svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.Equal(t, appErrors.ErrPasswordRequired.Code, appErrors.FromError(err).Code)

	// The gate still holds on the repeat passwordless attempt.
	_, err = svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.Equal(t, appErrors.ErrPasswordRequired.Code, appErrors.FromError(err).Code)

	view, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1", Password: "s3cret"}, "")
	require.NoError(t, err)
	require.Equal(t, "cert-1", view.ID)

	// Protected certificates always read the store.
	require.Empty(t, cache.entries)
	require.Equal(t, 3, store.lookups)
}

func TestVerifyCountsCacheHitsAndMisses(t *testing.T) {
	store := newVerificationCertStoreStub()
	store.byVerificationID["ver-1"] = issuedCertificate()
	cache := newVerificationCacheStub()
	svc := NewVerificationService(store, &activityWriterStub{}, cache, time.Minute, nil)
	metrics := NewMetricsService()
	svc.SetMetrics(metrics)

	_, err := svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), dto.VerifyRequest{Token: "ver-1"}, "")
	require.NoError(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
}

func TestVerifyViewOmitsSensitiveFields(t *testing.T) {
	cert := issuedCertificate()
	secret := "$2a$10$abcdefghijklmnopqrstuv"
	cert.AccessPasswordHash = &secret

	view := dto.NewCertificateView(cert)
	payload, err := json.Marshal(view)
	require.NoError(t, err)
	require.NotContains(t, string(payload), "password")
	require.NotContains(t, string(payload), "template_id")
	require.NotContains(t, string(payload), secret)
}
