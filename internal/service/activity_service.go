package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/credentia/certify-api/internal/dto"
	"github.com/credentia/certify-api/internal/models"
	appErrors "github.com/credentia/certify-api/pkg/errors"
)

type activityStore interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error)
}

// ActivityService serves the read-only audit feed.
type ActivityService struct {
	activity activityStore
	logger   *zap.Logger
}

// NewActivityService constructs the service.
func NewActivityService(activity activityStore, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{activity: activity, logger: logger}
}

// List returns feed entries matching the query, newest first.
func (s *ActivityService) List(ctx context.Context, query dto.ActivityQuery) ([]dto.ActivityView, *models.Pagination, error) {
	page := query.Page
	if page <= 0 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filter := models.ActivityFilter{
		Action:     query.Action,
		EntityType: query.EntityType,
		EntityID:   query.EntityID,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	entries, total, err := s.activity.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	views := make([]dto.ActivityView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, dto.ActivityView{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			Action:     entry.Action,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return views, &models.Pagination{Page: page, PageSize: limit, TotalCount: total}, nil
}
