// Package storage defines the interaction journal: a write-only audit trail of
// ingested passages and produced answers. It is never read back into the vector store.
package storage

import (
	"context"
	"time"
)

// Ingestion records one passage added to the vector store.
type Ingestion struct {
	ID        string    `json:"id"`
	PassageID int       `json:"passage_id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// AnswerRecord records one answered question. PassageID is -1 when no passage was found.
type AnswerRecord struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Context   string    `json:"context"`
	Answer    string    `json:"answer"`
	PassageID int       `json:"passage_id"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal defines journal persistence operations.
type Journal interface {
	RecordIngestion(ctx context.Context, rec *Ingestion) error
	RecordAnswer(ctx context.Context, rec *AnswerRecord) error

	ListAnswers(ctx context.Context, offset, limit int) ([]*AnswerRecord, error)
	ListIngestions(ctx context.Context, offset, limit int) ([]*Ingestion, error)

	CountIngestions(ctx context.Context) (int64, error)
	CountAnswers(ctx context.Context) (int64, error)

	Close() error
}
