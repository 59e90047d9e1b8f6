package dto

import "github.com/credentia/certify-api/internal/models"

// CertificateQuery filters the authenticated registry listing.
type CertificateQuery struct {
	TemplateID    string `form:"template_id"`
	RecipientID   string `form:"recipient_id"`
	NeedsClaiming *bool  `form:"needs_claiming"`
	Page          int    `form:"page"`
	Limit         int    `form:"limit"`
}

// ExportRequest asks for an asynchronous registry export.
type ExportRequest struct {
	Format        models.ExportFormat `json:"format" binding:"required"`
	TemplateID    string              `json:"template_id"`
	NeedsClaiming *bool               `json:"needs_claiming"`
}

// ExportJobView reports export job progress to the caller.
type ExportJobView struct {
	ID           string              `json:"id"`
	Status       models.ExportStatus `json:"status"`
	Format       models.ExportFormat `json:"format"`
	ResultURL    *string             `json:"result_url,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
}
