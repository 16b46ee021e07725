package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bens368/IGIA/internal/domain"
)

func newTestRepo(t *testing.T) *RunRepository {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations are idempotent")
	return NewRunRepository(db)
}

func extractedRun() *domain.Run {
	run := domain.NewRun([]domain.Document{{Name: "IGA_raddar_1.pdf"}, {Name: "IGA_W2.pdf"}, {Name: "notes.pdf"}})
	run.Selected = run.Documents[:2]
	run.Images = []domain.RasterImage{{Position: 1}, {Position: 2}}
	run.Tables = []domain.ItemTable{
		{Position: 1, Items: []string{"Poulet", "Riz"}, Prices: []string{"8,99 $", "2/5$"}},
	}
	run.AddFailure(domain.RasterImage{Position: 2, Path: "out/IGA_W2_page_02.jpg"}, domain.SchemaError("mismatch", domain.ErrColumnMismatch))
	run.Aggregate = &domain.AggregateTable{Rows: run.Tables[0].Rows()}
	run.AggregatePath = "output/ingredients.csv"
	run.Finish(domain.RunExtracted)
	return run
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	run := extractedRun()

	require.NoError(t, repo.Save(ctx, run))

	rec, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, rec.ID)
	assert.Equal(t, domain.RunExtracted, rec.Status)
	assert.Equal(t, []string{"IGA_raddar_1.pdf", "IGA_W2.pdf"}, rec.Documents)
	assert.Equal(t, 2, rec.Images)
	assert.Equal(t, 1, rec.Tables)
	assert.Equal(t, 2, rec.Rows)
	require.Len(t, rec.Failures, 1)
	assert.Equal(t, 2, rec.Failures[0].Position)
	assert.Contains(t, rec.Failures[0].Message, "mismatch")
	require.NotNil(t, rec.FinishedAt)
	assert.WithinDuration(t, run.StartedAt, rec.StartedAt, time.Second)

	items, err := repo.Items(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Poulet", items[0].Name)
	assert.Equal(t, 1, items[0].Position)
	require.True(t, items[0].Amount.Valid)
	assert.Equal(t, "8.99", items[0].Amount.Decimal.StringFixed(2))
	assert.Equal(t, "2.50", items[1].Amount.Decimal.StringFixed(2))
}

func TestRunRepository_SaveReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	run := extractedRun()
	require.NoError(t, repo.Save(ctx, run))

	run.Match = &domain.MatchResult{Model: "gpt-4o", Text: "Poulet rôti qualifies"}
	run.Aggregate.Rows = run.Aggregate.Rows[:1]
	run.Finish(domain.RunMatched)
	require.NoError(t, repo.Save(ctx, run))

	rec, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunMatched, rec.Status)
	assert.Equal(t, "Poulet rôti qualifies", rec.MatchText)

	items, err := repo.Items(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	all, err := repo.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunRepository_FailedRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	run := domain.NewRun(nil)
	run.Fail(domain.InputError("no files uploaded", domain.ErrNoDocuments))
	require.NoError(t, repo.Save(ctx, run))

	rec, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, rec.Status)
	assert.Contains(t, rec.Error, "no files uploaded")
	assert.Empty(t, rec.Documents)
	assert.Empty(t, rec.Failures)
	assert.Zero(t, rec.Rows)

	items, err := repo.Items(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunRepository_ListOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run := domain.NewRun(nil)
		run.StartedAt = base.Add(time.Duration(i) * time.Hour)
		run.Finish(domain.RunExtracted)
		require.NoError(t, repo.Save(ctx, run))
		ids = append(ids, run.ID)
	}

	recs, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[2], recs[0].ID)
	assert.Equal(t, ids[1], recs[1].ID)
}

func TestRunRepository_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nested", "igia.db")
	db, err := Open(ctx, "sqlite", path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.FileExists(t, path)

	_, err = Open(ctx, "mysql", "x")
	assert.Error(t, err)
}

func TestNewRecord_UsesDocumentsWhenNothingSelected(t *testing.T) {
	run := domain.NewRun([]domain.Document{{Name: "metro.pdf"}})
	rec := NewRecord(run)
	assert.Equal(t, []string{"metro.pdf"}, rec.Documents)
	assert.Nil(t, rec.FinishedAt)
}
