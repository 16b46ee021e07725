package tables

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/Bens368/IGIA/internal/domain"
)

// WriteCSV persists the aggregate with an item,price header, replacing any
// previous file at path.
func WriteCSV(path string, agg *domain.AggregateTable) error {
	if agg == nil {
		return domain.ValidationError("aggregate table is nil", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return domain.IOError("Failed to create aggregate directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("Failed to create %s", path), err)
	}

	rows := agg.Rows
	if rows == nil {
		rows = []domain.ItemRow{}
	}
	err = gocsv.MarshalFile(&rows, f)
	closeErr := f.Close()
	if err != nil {
		return domain.IOError(fmt.Sprintf("Failed to write %s", path), err)
	}
	if closeErr != nil {
		return domain.IOError(fmt.Sprintf("Failed to close %s", path), closeErr)
	}
	return nil
}

// ReadCSV loads an aggregate written by WriteCSV.
func ReadCSV(path string) (*domain.AggregateTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("Failed to open %s", path), err)
	}
	defer f.Close()

	var rows []domain.ItemRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return &domain.AggregateTable{}, nil
		}
		return nil, domain.IOError(fmt.Sprintf("Failed to parse %s", path), err)
	}
	return &domain.AggregateTable{Rows: rows}, nil
}
