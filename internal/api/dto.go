package api

import (
	"github.com/starford/laguz/internal/dataset"
	"github.com/starford/laguz/internal/labels"
	"github.com/starford/laguz/internal/labelservice"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/session"
)

// ScanRequest is the request body for building a dataset from a scan.
type ScanRequest struct {
	Filename   string `json:"filename,omitempty" example:"dataset.csv"`
	HaveLabels bool   `json:"have_labels" example:"true"`
	Save       bool   `json:"save" example:"true"`
}

// OpenRequest is the optional request body for opening a dataset.
type OpenRequest struct {
	Filename string `json:"filename,omitempty" example:"dataset.csv"`
}

// SelectRequest is the request body for selecting a row.
type SelectRequest struct {
	Index *int `json:"index" example:"0" validate:"required"`
}

// CheckedRequest is the request body for replacing the checked labels.
type CheckedRequest struct {
	Labels []int `json:"labels" example:"1,2"`
}

// ToggleRequest is the request body for flipping one label.
type ToggleRequest struct {
	Label *int `json:"label" example:"2" validate:"required"`
}

// StopRequest answers the unsaved changes question.
type StopRequest struct {
	Save bool `json:"save" example:"true"`
}

// SessionState is the session snapshot (aliased from the domain layer).
type SessionState = session.State

// RowsPage is a window over the dataset (aliased from the domain layer).
type RowsPage = labelservice.RowsPage

// CreateResult describes a scanned dataset (aliased from the domain layer).
type CreateResult = labelservice.CreateResult

// StopResult describes a stopped session (aliased from the domain layer).
type StopResult = labelservice.StopResult

// VocabularyResponse wraps the label vocabulary.
type VocabularyResponse struct {
	Labels []labels.Entry `json:"labels" validate:"required"`
}

// StatsResponse wraps label counts.
type StatsResponse struct {
	Stats []dataset.Stat `json:"stats" validate:"required"`
}

// HistoryResponse wraps recent label changes.
type HistoryResponse struct {
	Changes []models.LabelChange `json:"changes" validate:"required"`
}

// SearchResponse wraps rows found by label.
type SearchResponse struct {
	Rows []models.Row `json:"rows" validate:"required"`
}
