// Package recipes loads the reference recipe sheet and asks a text model
// which recipes can be cooked from the week's flyer items.
package recipes

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Bens368/IGIA/internal/domain"
)

// SheetSpec locates the recipe table inside a workbook.
type SheetSpec struct {
	Sheet             string // empty selects the first sheet
	NameColumn        string
	ProteinColumn     string
	IngredientsColumn string
	WeekColumn        string
}

// DefaultSheetSpec matches the reference workbook layout.
func DefaultSheetSpec() SheetSpec {
	return SheetSpec{
		Sheet:             "Recettes",
		NameColumn:        "Recette",
		ProteinColumn:     "Protéine",
		IngredientsColumn: "Ingrédients",
		WeekColumn:        "Semaine",
	}
}

type columnMap struct {
	name, protein, ingredients, week int
}

// LoadRecipes reads every recipe row of the workbook at path.
func LoadRecipes(path string, spec SheetSpec) ([]domain.RecipeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("Failed to open recipe workbook %s", path), err)
	}
	defer f.Close()

	return ReadRecipes(f, spec)
}

// ReadRecipes reads every recipe row from an xlsx stream.
func ReadRecipes(r io.Reader, spec SheetSpec) ([]domain.RecipeRecord, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.ValidationError("failed to open recipe workbook", err)
	}
	defer wb.Close()

	sheet, err := findSheet(wb, spec.Sheet)
	if err != nil {
		return nil, err
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("failed to read sheet %s", sheet), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := mapColumns(rows[0], spec)
	if err != nil {
		return nil, err
	}

	recipes := make([]domain.RecipeRecord, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}

		rec := domain.RecipeRecord{
			Row:            i + 1,
			Name:           cell(row, cols.name),
			Protein:        cell(row, cols.protein),
			IngredientsRaw: cell(row, cols.ingredients),
			LastUsedWeek:   parseWeek(cell(row, cols.week)),
		}
		rec.Ingredients = SplitIngredients(rec.IngredientsRaw)
		if rec.Name == "" {
			rec.Name = fmt.Sprintf("Recipe %d", rec.Row)
		}
		recipes = append(recipes, rec)
	}
	return recipes, nil
}

func findSheet(wb *excelize.File, name string) (string, error) {
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return "", domain.ValidationError("recipe workbook has no sheet", nil)
	}
	if name == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, name) {
			return s, nil
		}
	}
	return "", domain.ValidationError(fmt.Sprintf("sheet %q not found, available: %s", name, strings.Join(sheets, ", ")), nil)
}

func mapColumns(header []string, spec SheetSpec) (columnMap, error) {
	cols := columnMap{name: -1, protein: -1, ingredients: -1, week: -1}
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case strings.EqualFold(h, spec.NameColumn):
			cols.name = i
		case strings.EqualFold(h, spec.ProteinColumn):
			cols.protein = i
		case strings.EqualFold(h, spec.IngredientsColumn):
			cols.ingredients = i
		case spec.WeekColumn != "" && strings.EqualFold(h, spec.WeekColumn):
			cols.week = i
		}
	}

	var missing []string
	if cols.protein < 0 {
		missing = append(missing, spec.ProteinColumn)
	}
	if cols.ingredients < 0 {
		missing = append(missing, spec.IngredientsColumn)
	}
	if len(missing) > 0 {
		return cols, domain.ValidationError(fmt.Sprintf("recipe sheet is missing columns: %s", strings.Join(missing, ", ")), nil)
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseWeek coerces a week cell to a number; anything else is unknown.
func parseWeek(raw string) *int {
	if raw == "" {
		return nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	n := int(f)
	return &n
}

// SplitIngredients splits a comma or semicolon separated list into
// normalized names.
func SplitIngredients(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := domain.NormalizeIngredient(p); name != "" {
			out = append(out, name)
		}
	}
	return out
}
