package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/recipes"
)

type matchOptions struct {
	recipesPath string
	evaluateAll bool
	explain     bool
}

func newMatchCmd() *cobra.Command {
	var (
		aggregatePath string
		opts          matchOptions
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Suggest recipes from an existing aggregate table",
		Long: `Match reads the aggregate CSV written by extract, loads the recipe
workbook and asks the text model which recipes fit the specials: at least
three ingredients in common when the main protein is on sale, five
otherwise, preferring recipes not used in the last four weeks.

The model's answer is shown verbatim.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if err := ensureAPIKey(); err != nil {
				return err
			}

			run := domain.NewRun(nil)
			run.AggregatePath = aggregatePath
			if run.AggregatePath == "" {
				run.AggregatePath = cfg.Aggregate.Path
			}

			err := runMatch(ctx, run, opts)
			saveRun(ctx, run)
			if err != nil {
				return err
			}
			return ui.JSON(run.Match)
		},
	}
	cmd.Flags().StringVarP(&aggregatePath, "aggregate", "a", "", "aggregate CSV (default from config)")
	cmd.Flags().StringVarP(&opts.recipesPath, "recipes", "r", "", "recipe workbook (default from config)")
	cmd.Flags().BoolVar(&opts.evaluateAll, "all", false, "also evaluate the second half of the workbook")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "show the local ingredient overlap of each evaluated recipe")
	return cmd
}

// runMatch asks the text model for its verdict on run's aggregate table.
// A failure marks run failed.
func runMatch(ctx context.Context, run *domain.Run, opts matchOptions) error {
	client, err := newLLMClient(cfg.LLM.APIKey)
	if err != nil {
		run.Fail(err)
		return err
	}

	recipesPath := opts.recipesPath
	if recipesPath == "" {
		recipesPath = cfg.Recipes.Path
	}

	matcher := recipes.NewMatcher(client, recipes.Options{
		Sheet:       cfg.Recipes.SheetSpec(),
		EvaluateAll: opts.evaluateAll || cfg.Recipes.EvaluateAll,
	}, logger)

	spin := ui.NewSpinner(fmt.Sprintf("Asking %s for matching recipes", client.TextModel()))
	spin.Start()
	result, err := matcher.Match(ctx, run, recipesPath)
	spin.Stop()
	if err != nil {
		run.Fail(err)
		ui.Error("Recipe matching failed: %v", err)
		return err
	}

	if opts.explain {
		if err := explainOverlap(matcher, recipesPath, run.Aggregate.IngredientSet()); err != nil {
			return err
		}
	}

	ui.Section("Suggested recipes")
	ui.KeyValue("Model", result.Model)
	ui.KeyValue("Evaluated", fmt.Sprintf("%d of %d recipes", result.Evaluated, result.Total))
	ui.KeyValue("Ingredients on sale", result.Available)
	ui.Newline()
	ui.Text(result.Text)
	ui.Newline()
	return nil
}

// explainOverlap prints the local overlap count of every evaluated recipe.
func explainOverlap(matcher *recipes.Matcher, recipesPath string, available []string) error {
	list, err := recipes.LoadRecipes(recipesPath, cfg.Recipes.SheetSpec())
	if err != nil {
		return err
	}

	var rows [][]string
	for _, batch := range matcher.Evaluated(list) {
		for _, r := range batch {
			rows = append(rows, overlapRow(r, recipes.ComputeOverlap(r, available)))
		}
	}

	ui.Section("Ingredient overlap")
	ui.Table([]string{"Recipe", "Protein on sale", "Common", "Ingredients", "Fits"}, rows)
	return nil
}

func overlapRow(r domain.RecipeRecord, o recipes.Overlap) []string {
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	return []string{
		o.Recipe,
		fmt.Sprintf("%s (%s)", yesNo(o.ProteinOnSale), r.Protein),
		fmt.Sprint(o.Count),
		strings.Join(o.Matching, ", "),
		yesNo(o.MeetsCriterion),
	}
}
