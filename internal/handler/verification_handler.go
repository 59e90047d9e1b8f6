package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/service"
	appErrors "github.com/credentia/certify-api/pkg/errors"
	"github.com/credentia/certify-api/pkg/response"
)

// VerificationHandler exposes the public verification endpoint.
type VerificationHandler struct {
	service *service.VerificationService
	metrics *service.MetricsService
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(svc *service.VerificationService, metrics *service.MetricsService) *VerificationHandler {
	return &VerificationHandler{service: svc, metrics: metrics}
}

// Verify godoc
// @Summary Verify a certificate
// @Description Look up an issued certificate by its verification token. No authentication required.
// @Tags Verification
// @Accept json
// @Produce json
// @Param payload body dto.VerifyRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /verify [post]
func (h *VerificationHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "token is required"))
		return
	}

	view, err := h.service.Verify(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		h.recordOutcome(err)
		response.Error(c, err)
		return
	}

	h.recordOutcome(nil)
	response.JSON(c, http.StatusOK, view, nil)
}

func (h *VerificationHandler) recordOutcome(err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	h.metrics.RecordVerification(outcome)
}
