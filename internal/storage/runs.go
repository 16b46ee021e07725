package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bens368/IGIA/internal/domain"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RunRecord is the stored summary of a run.
type RunRecord struct {
	ID            uuid.UUID                  `json:"id"`
	Status        domain.RunStatus           `json:"status"`
	StartedAt     time.Time                  `json:"started_at"`
	FinishedAt    *time.Time                 `json:"finished_at,omitempty"`
	Documents     []string                   `json:"documents"`
	Images        int                        `json:"images"`
	Tables        int                        `json:"tables"`
	Failures      []domain.ExtractionFailure `json:"failures"`
	Rows          int                        `json:"rows"`
	AggregatePath string                     `json:"aggregate_path,omitempty"`
	MatchModel    string                     `json:"match_model,omitempty"`
	MatchText     string                     `json:"match_text,omitempty"`
	Error         string                     `json:"error,omitempty"`
}

// ItemRecord is one stored aggregate row.
type ItemRecord struct {
	Position int                 `json:"position"`
	Name     string              `json:"item"`
	Price    string              `json:"price"`
	Amount   decimal.NullDecimal `json:"amount"`
}

// RunRepository handles run persistence.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// NewRecord summarizes run for storage.
func NewRecord(run *domain.Run) RunRecord {
	rec := RunRecord{
		ID:            run.ID,
		Status:        run.Status,
		StartedAt:     run.StartedAt,
		Images:        len(run.Images),
		Tables:        len(run.Tables),
		Failures:      run.Failures,
		Rows:          run.Aggregate.Len(),
		AggregatePath: run.AggregatePath,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		rec.FinishedAt = &finished
	}
	docs := run.Selected
	if len(docs) == 0 {
		docs = run.Documents
	}
	rec.Documents = make([]string, 0, len(docs))
	for _, d := range docs {
		rec.Documents = append(rec.Documents, d.Name)
	}
	if rec.Failures == nil {
		rec.Failures = []domain.ExtractionFailure{}
	}
	if run.Match != nil {
		rec.MatchModel = run.Match.Model
		rec.MatchText = run.Match.Text
	}
	if run.Err != nil {
		rec.Error = run.Err.Error()
	}
	return rec
}

// Save stores run and its aggregate rows, replacing any previous version.
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	rec := NewRecord(run)

	docs, err := json.Marshal(rec.Documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	failures, err := json.Marshal(rec.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_items WHERE run_id = $1`, rec.ID.String()); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, rec.ID.String()); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	var finished interface{}
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.UTC()
	}

	query := `
		INSERT INTO runs (id, status, started_at, finished_at, documents, images, tables_ok,
			failures, rows_total, aggregate_path, match_model, match_text, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.ExecContext(ctx, query,
		rec.ID.String(), string(rec.Status), rec.StartedAt.UTC(), finished, string(docs),
		rec.Images, rec.Tables, string(failures), rec.Rows, rec.AggregatePath,
		rec.MatchModel, rec.MatchText, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if run.Aggregate != nil {
		positions := rowPositions(run)
		for i, row := range run.Aggregate.Rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO run_items (run_id, seq, position, item, price, amount) VALUES ($1, $2, $3, $4, $5, $6)`,
				rec.ID.String(), i, positions[i], row.Name, row.Price, row.Amount(),
			)
			if err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}
	}

	return tx.Commit()
}

// rowPositions maps each aggregate row back to the image it came from.
func rowPositions(run *domain.Run) []int {
	positions := make([]int, run.Aggregate.Len())
	i := 0
	for _, t := range run.Tables {
		for range t.Items {
			if i < len(positions) {
				positions[i] = t.Position
			}
			i++
		}
	}
	return positions
}

const selectRun = `
	SELECT id, status, started_at, finished_at, documents, images, tables_ok,
		failures, rows_total, aggregate_path, match_model, match_text, error
	FROM runs
`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		rec      RunRecord
		id       string
		status   string
		finished sql.NullTime
		docs     string
		failures string
	)
	err := s.Scan(&id, &status, &rec.StartedAt, &finished, &docs, &rec.Images, &rec.Tables,
		&failures, &rec.Rows, &rec.AggregatePath, &rec.MatchModel, &rec.MatchText, &rec.Error)
	if err != nil {
		return nil, err
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	rec.Status = domain.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(docs), &rec.Documents); err != nil {
		return nil, fmt.Errorf("unmarshal documents: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &rec.Failures); err != nil {
		return nil, fmt.Errorf("unmarshal failures: %w", err)
	}
	return &rec, nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	rec, err := scanRun(r.db.QueryRowContext(ctx, selectRun+` WHERE id = $1`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns the most recent runs first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Items returns the stored aggregate rows of a run in order.
func (r *RunRepository) Items(ctx context.Context, runID uuid.UUID) ([]ItemRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT position, item, price, amount FROM run_items WHERE run_id = $1 ORDER BY seq`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemRecord
	for rows.Next() {
		var it ItemRecord
		if err := rows.Scan(&it.Position, &it.Name, &it.Price, &it.Amount); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
