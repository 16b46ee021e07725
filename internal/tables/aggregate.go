package tables

import (
	"fmt"

	"github.com/Bens368/IGIA/internal/domain"
)

// Aggregate concatenates tables in the order given.
func Aggregate(tables []domain.ItemTable) (*domain.AggregateTable, error) {
	if len(tables) == 0 {
		return nil, domain.ExtractionError("no table could be extracted from the flyers", domain.ErrNoTables)
	}

	total := 0
	for _, t := range tables {
		if !t.Valid() {
			return nil, domain.SchemaError(fmt.Sprintf("table at position %d has mismatched columns", t.Position), domain.ErrColumnMismatch)
		}
		total += len(t.Items)
	}

	agg := &domain.AggregateTable{Rows: make([]domain.ItemRow, 0, total)}
	for _, t := range tables {
		agg.Rows = append(agg.Rows, t.Rows()...)
	}
	return agg, nil
}
