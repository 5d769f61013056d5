// Package models defines the request and response bodies of the HTTP API.
package models

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// IngestRequest is the body of POST /ingest. Text must be present; an empty string is accepted.
type IngestRequest struct {
	Text *string `json:"text" validate:"required"`
}

// Validate reports a missing text field.
func (r *IngestRequest) Validate() error {
	return validatorInstance().Struct(r)
}

// IngestResponse is returned by POST /ingest.
type IngestResponse struct {
	Status string `json:"status"`
	Text   string `json:"text"`
}

// StatusAdded is the IngestResponse status.
const StatusAdded = "added"

// AskRequest is the body of POST /ask. Question must be present; an empty string is accepted.
type AskRequest struct {
	Question *string `json:"question" validate:"required"`
}

// Validate reports a missing question field.
func (r *AskRequest) Validate() error {
	return validatorInstance().Struct(r)
}

// AskResponse is returned by POST /ask.
type AskResponse struct {
	Answer  string `json:"answer"`
	Context string `json:"context"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PassageResponse is returned by GET /api/v1/passages/{id}.
type PassageResponse struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// JournalStatus reports journal row counts.
type JournalStatus struct {
	Path       string `json:"path"`
	Ingestions int64  `json:"ingestions"`
	Answers    int64  `json:"answers"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Passages   int            `json:"passages"`
	Dimensions int            `json:"dimensions"`
	IndexType  string         `json:"index_type"`
	Embedder   string         `json:"embedder"`
	Generator  string         `json:"generator"`
	Journal    *JournalStatus `json:"journal,omitempty"`
}

// AnswerEntry is one journaled answer.
type AnswerEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Context   string    `json:"context"`
	Answer    string    `json:"answer"`
	PassageID *int      `json:"passage_id,omitempty"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AnswersResponse is returned by GET /api/v1/answers.
type AnswersResponse struct {
	Answers []AnswerEntry `json:"answers"`
	Total   int64         `json:"total"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
}

// IngestionEntry is one journaled passage addition.
type IngestionEntry struct {
	ID        string    `json:"id"`
	PassageID int       `json:"passage_id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestionsResponse is returned by GET /api/v1/ingestions.
type IngestionsResponse struct {
	Ingestions []IngestionEntry `json:"ingestions"`
	Total      int64            `json:"total"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
}
