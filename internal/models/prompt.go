package models

import "time"

// PromptType enumerates the configurable prompt slots.
type PromptType string

const (
	PromptAssessment   PromptType = "assessment"
	PromptPresentation PromptType = "presentation"
	PromptFirecrawl    PromptType = "firecrawl"
)

// ValidPromptType reports whether the given type is a known slot.
func ValidPromptType(t PromptType) bool {
	switch t {
	case PromptAssessment, PromptPresentation, PromptFirecrawl:
		return true
	}
	return false
}

// Prompt is the active template for one prompt slot. Source is "default"
// until an admin saves a custom version.
type Prompt struct {
	Type      PromptType `db:"type" json:"type"`
	Content   string     `db:"content" json:"content"`
	Source    string     `db:"source" json:"source"`
	UpdatedBy *string    `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// PromptHistory is a snapshot taken each time a prompt is overwritten.
type PromptHistory struct {
	ID        string     `db:"id" json:"id"`
	Type      PromptType `db:"type" json:"type"`
	Content   string     `db:"content" json:"content"`
	UpdatedBy string     `db:"updated_by" json:"updated_by"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// UpdatePromptRequest saves new content for a prompt slot.
type UpdatePromptRequest struct {
	Content string `json:"content" validate:"required"`
}
