package recipes

import (
	"context"
	"strings"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/observability"
	"github.com/Bens368/IGIA/internal/tables"
)

// Options configures a Matcher
type Options struct {
	Sheet SheetSpec
	// EvaluateAll sends the second half of the sheet too, as a second request.
	EvaluateAll bool
}

// Matcher cross-references the aggregate table with the recipe sheet.
type Matcher struct {
	model  domain.TextModel
	opts   Options
	logger *observability.Logger
}

// NewMatcher creates a matcher that asks model for its verdict.
func NewMatcher(model domain.TextModel, opts Options, logger *observability.Logger) *Matcher {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Matcher{model: model, opts: opts, logger: logger.WithOperation("match")}
}

// Evaluated returns the recipes that are sent to the model, one slice per request.
func (m *Matcher) Evaluated(recipes []domain.RecipeRecord) [][]domain.RecipeRecord {
	first, second := SplitHalves(recipes)
	batches := [][]domain.RecipeRecord{first}
	if m.opts.EvaluateAll && len(second) > 0 {
		batches = append(batches, second)
	}
	return batches
}

// Match re-reads the aggregate persisted for run, loads the recipe workbook
// and stores the model's verbatim verdict on run.
func (m *Matcher) Match(ctx context.Context, run *domain.Run, recipesPath string) (*domain.MatchResult, error) {
	if run.AggregatePath == "" {
		return nil, domain.ValidationError("run has no persisted aggregate table", nil)
	}

	agg, err := tables.ReadCSV(run.AggregatePath)
	if err != nil {
		return nil, err
	}
	available := agg.IngredientSet()

	recipes, err := LoadRecipes(recipesPath, m.opts.Sheet)
	if err != nil {
		return nil, err
	}
	if len(recipes) == 0 {
		return nil, domain.ValidationError("recipe sheet has no rows", nil)
	}

	logger := m.logger.WithRun(run.ID.String())
	result := &domain.MatchResult{
		Model:     m.model.TextModel(),
		Total:     len(recipes),
		Available: len(available),
	}

	var verdicts []string
	for _, batch := range m.Evaluated(recipes) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		prompt, err := BuildPrompt(batch, available)
		if err != nil {
			return nil, err
		}

		logger.Info().Int("recipes", len(batch)).Int("available", len(available)).Msg("Asking model for matching recipes")
		text, err := m.model.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, text)
		result.Evaluated += len(batch)
	}

	result.Text = strings.Join(verdicts, "\n\n")
	run.Aggregate = agg
	run.Match = result
	run.Finish(domain.RunMatched)
	return result, nil
}
