package models

import "time"

// Document references an uploaded file a template may have originated
// from. Only the uploader linkage matters to this service; storage and
// rendering live elsewhere.
type Document struct {
	ID         string    `db:"id" json:"id"`
	FileName   string    `db:"file_name" json:"file_name"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
