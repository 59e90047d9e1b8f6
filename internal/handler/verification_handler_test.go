package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	"github.com/credentia/certify-api/internal/service"
)

type verifyCertStoreMock struct {
	cert *models.Certificate
}

func (m *verifyCertStoreMock) FindByVerificationID(ctx context.Context, verificationID string) (*models.Certificate, error) {
	if m.cert == nil || m.cert.VerificationID != verificationID {
		return nil, sql.ErrNoRows
	}
	return m.cert, nil
}

type verifyActivityMock struct {
	entries []*models.ActivityLog
}

func (m *verifyActivityMock) Create(ctx context.Context, activity *models.ActivityLog) error {
	m.entries = append(m.entries, activity)
	return nil
}

func newVerificationHandlerFixture(cert *models.Certificate) (*VerificationHandler, *verifyActivityMock) {
	activity := &verifyActivityMock{}
	svc := service.NewVerificationService(&verifyCertStoreMock{cert: cert}, activity, nil, time.Minute, nil)
	return NewVerificationHandler(svc, nil), activity
}

func performVerify(t *testing.T, handler *VerificationHandler, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, "/verify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Verify(c)
	return w
}

func TestVerificationHandlerSuccess(t *testing.T) {
	handler, activity := newVerificationHandlerFixture(&models.Certificate{
		ID:             "cert-1",
		VerificationID: "token-1",
		Title:          "Go Fundamentals",
		RecipientName:  "Jane Doe",
		Status:         models.CertificateStatusIssued,
		IssuedAt:       time.Now().UTC(),
	})

	w := performVerify(t, handler, dto.VerifyRequest{Token: "token-1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Go Fundamentals")
	require.Len(t, activity.entries, 1)
}

func TestVerificationHandlerUnknownToken(t *testing.T) {
	handler, _ := newVerificationHandlerFixture(nil)

	w := performVerify(t, handler, dto.VerifyRequest{Token: "missing"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotContains(t, w.Body.String(), "missing")
}

func TestVerificationHandlerMissingToken(t *testing.T) {
	handler, activity := newVerificationHandlerFixture(nil)

	w := performVerify(t, handler, map[string]string{"password": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, activity.entries)
}
