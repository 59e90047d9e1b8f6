package dto

import (
	"time"

	"github.com/credentia/certify-api/internal/models"
)

// SubmitDecisionRequest is the reviewer's decision payload.
type SubmitDecisionRequest struct {
	Decision models.ReviewDecision `json:"decision" binding:"required"`
	Comment  string                `json:"comment"`
}

// DecisionResponse reports the outcome of a submitted decision.
type DecisionResponse struct {
	Template    *models.Template     `json:"template"`
	Review      *models.ReviewRecord `json:"review,omitempty"`
	Certificate *models.Certificate  `json:"certificate,omitempty"`
	Degraded    bool                 `json:"degraded,omitempty"`
	Idempotent  bool                 `json:"idempotent,omitempty"`
}

// TemplateQuery filters the reviewer inbox.
type TemplateQuery struct {
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// TemplateDetail bundles a template with its review history.
type TemplateDetail struct {
	Template *models.Template      `json:"template"`
	Reviews  []models.ReviewRecord `json:"reviews"`
}

// ActivityQuery filters the activity feed.
type ActivityQuery struct {
	Action     string `form:"action"`
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
}

// ActivityView is the feed representation of an audit record.
type ActivityView struct {
	ID         string    `json:"id"`
	ActorID    *string   `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   *string   `json:"entity_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
