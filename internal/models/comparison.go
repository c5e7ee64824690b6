package models

import (
	"encoding/json"
	"time"
)

// CompareRequest starts a streaming comparison.
type CompareRequest struct {
	Schools []string           `json:"schools" validate:"required,min=2"`
	Weights map[string]float64 `json:"weights"`
}

// AssessmentRequest is the non-streaming assessment input.
type AssessmentRequest struct {
	PrimaryCollege     string   `json:"primary_college" validate:"required"`
	CompetitorColleges []string `json:"competitor_colleges" validate:"required,min=1"`
}

// AssessmentResponse returns the full report in one payload.
type AssessmentResponse struct {
	SchoolsData []SchoolData `json:"schools_data"`
	AIReport    string       `json:"ai_report"`
}

// Comparison is a persisted streaming result, retrievable in descending
// creation-time order by approved callers.
type Comparison struct {
	ID          string          `db:"id" json:"id"`
	UserID      *string         `db:"user_id" json:"user_id,omitempty"`
	Schools     json.RawMessage `db:"schools" json:"schools"`
	Weights     json.RawMessage `db:"weights" json:"weights"`
	SchoolsData json.RawMessage `db:"schools_data" json:"schools_data"`
	AIReport    string          `db:"ai_report" json:"ai_report"`
	Completed   bool            `db:"completed" json:"completed"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// ComparisonFilter pages through stored comparisons.
type ComparisonFilter struct {
	UserID   *string
	Page     int
	PageSize int
}
