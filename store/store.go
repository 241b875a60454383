// Package store records per-session prediction history in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Tutortoise/drowsiness-service/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages the PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Frame is one recorded prediction.
type Frame struct {
	ID            int64        `json:"id"`
	SessionID     string       `json:"session_id"`
	FrameNumber   int          `json:"frame_number"`
	Fingerprint   string       `json:"fingerprint"`
	Label         models.Label `json:"prediction"`
	Confidence    float64      `json:"confidence"`
	RawLabel      models.Label `json:"raw_prediction,omitempty"`
	RawConfidence float64      `json:"raw_confidence"`
	BufferSize    int          `json:"buffer_size"`
	Error         string       `json:"error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// New connects and ensures the schema exists.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the frames table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS prediction_frames (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			frame_number INT NOT NULL DEFAULT 0,
			fingerprint TEXT NOT NULL,
			prediction TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			raw_prediction TEXT NOT NULL DEFAULT '',
			raw_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			buffer_size INT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS prediction_frames_session_idx ON prediction_frames (session_id, frame_number);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases all connections.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordFrame saves one prediction and returns its row id.
func (s *Store) RecordFrame(ctx context.Context, sessionID string, frameNumber int, fingerprint string, r models.Result) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO prediction_frames
			(session_id, frame_number, fingerprint, prediction, confidence, raw_prediction, raw_confidence, buffer_size, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, sessionID, frameNumber, fingerprint, string(r.Label), r.Confidence, string(r.RawLabel), r.RawConfidence, r.BufferSize, r.Error).Scan(&id)
	return id, err
}

// SessionFrames returns the most recent frames of a session in frame order.
// A non-positive limit returns every frame.
func (s *Store) SessionFrames(ctx context.Context, sessionID string, limit int) ([]Frame, error) {
	query := `
		SELECT id, session_id, frame_number, fingerprint, prediction, confidence,
		       raw_prediction, raw_confidence, buffer_size, error, created_at
		FROM (
			SELECT * FROM prediction_frames
			WHERE session_id = $1
			ORDER BY frame_number DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY frame_number ASC, id ASC
	`
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, query, sessionID, lim)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Frame, error) {
		var f Frame
		var label, raw string
		err := row.Scan(&f.ID, &f.SessionID, &f.FrameNumber, &f.Fingerprint, &label, &f.Confidence,
			&raw, &f.RawConfidence, &f.BufferSize, &f.Error, &f.CreatedAt)
		f.Label, f.RawLabel = models.Label(label), models.Label(raw)
		return f, err
	})
}
