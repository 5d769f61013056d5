package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteJournal{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingestions (
		id TEXT PRIMARY KEY,
		passage_id INTEGER NOT NULL,
		source TEXT,
		text TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ingestions_created_at ON ingestions(created_at);

	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		context TEXT NOT NULL,
		answer TEXT NOT NULL,
		passage_id INTEGER,
		score REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_answers_created_at ON answers(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordIngestion inserts an ingestion row, assigning ID and CreatedAt when unset.
func (s *SQLiteJournal) RecordIngestion(ctx context.Context, rec *Ingestion) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestions (id, passage_id, source, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.PassageID, rec.Source, rec.Text, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion: %w", err)
	}
	return nil
}

// RecordAnswer inserts an answer row, assigning ID and CreatedAt when unset.
// A negative PassageID is stored as NULL.
func (s *SQLiteJournal) RecordAnswer(ctx context.Context, rec *AnswerRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var passageID sql.NullInt64
	var score sql.NullFloat64
	if rec.PassageID >= 0 {
		passageID = sql.NullInt64{Int64: int64(rec.PassageID), Valid: true}
		score = sql.NullFloat64{Float64: rec.Score, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (id, question, context, answer, passage_id, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, rec.Context, rec.Answer, passageID, score, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// ListAnswers returns answers newest first with offset and limit.
func (s *SQLiteJournal) ListAnswers(ctx context.Context, offset, limit int) ([]*AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, context, answer, passage_id, score, created_at
		 FROM answers ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AnswerRecord
	for rows.Next() {
		var rec AnswerRecord
		var passageID sql.NullInt64
		var score sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Context, &rec.Answer, &passageID, &score, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.PassageID = -1
		if passageID.Valid {
			rec.PassageID = int(passageID.Int64)
			rec.Score = score.Float64
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ListIngestions returns ingestions newest first with offset and limit.
func (s *SQLiteJournal) ListIngestions(ctx context.Context, offset, limit int) ([]*Ingestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, passage_id, source, text, created_at
		 FROM ingestions ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ingestion
	for rows.Next() {
		var rec Ingestion
		var source sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PassageID, &source, &rec.Text, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Source = source.String
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// CountIngestions returns the number of journaled ingestions.
func (s *SQLiteJournal) CountIngestions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ingestions").Scan(&n)
	return n, err
}

// CountAnswers returns the number of journaled answers.
func (s *SQLiteJournal) CountAnswers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM answers").Scan(&n)
	return n, err
}

// SizeBytes returns the on-disk size of the database including its WAL and shared-memory files.
func (s *SQLiteJournal) SizeBytes() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the database.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}
