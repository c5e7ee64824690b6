package models

import "time"

// PresentationStatus tracks background generation progress.
type PresentationStatus string

const (
	PresentationPending PresentationStatus = "PENDING"
	PresentationReady   PresentationStatus = "READY"
	PresentationFailed  PresentationStatus = "FAILED"
)

// Presentation is a generated slide deck request and its artifact metadata.
type Presentation struct {
	ID        string             `db:"id" json:"id"`
	UserID    string             `db:"user_id" json:"user_id"`
	Prompt    string             `db:"prompt" json:"prompt"`
	NSlides   int                `db:"n_slides" json:"n_slides"`
	Language  string             `db:"language" json:"language"`
	Theme     string             `db:"theme" json:"theme"`
	ExportAs  string             `db:"export_as" json:"export_as"`
	Status    PresentationStatus `db:"status" json:"status"`
	FilePath  *string            `db:"file_path" json:"-"`
	StaticURL *string            `db:"static_url" json:"static_url,omitempty"`
	Error     *string            `db:"error" json:"error,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// CreatePresentationRequest enqueues deck generation.
type CreatePresentationRequest struct {
	Prompt   string `json:"prompt" validate:"required"`
	NSlides  int    `json:"n_slides" validate:"required,min=1,max=30"`
	Language string `json:"language"`
	Theme    string `json:"theme"`
	ExportAs string `json:"export_as" validate:"omitempty,oneof=pdf"`
}
