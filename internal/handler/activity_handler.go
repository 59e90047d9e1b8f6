package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/service"
	appErrors "github.com/credentia/certify-api/pkg/errors"
	"github.com/credentia/certify-api/pkg/response"
)

// ActivityHandler serves the audit feed.
type ActivityHandler struct {
	service *service.ActivityService
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// List godoc
// @Summary List audit activity
// @Tags Activity
// @Produce json
// @Param action query string false "Action filter"
// @Param entity_type query string false "Entity type filter"
// @Param entity_id query string false "Entity ID filter"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	entries, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
