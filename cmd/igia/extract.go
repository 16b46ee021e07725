package main

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/extract"
	"github.com/Bens368/IGIA/internal/storage"
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <pdf|dir>...",
		Short: "Extract the item/price table of every IGA flyer",
		Long: `Extract selects the IGA flyers among the given files, renders the first
page of each to a JPEG, asks the vision model for its item/price table and
writes the concatenation of every valid table to the aggregate CSV.

Images whose reply does not have matching item and price columns are
reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			run, err := runExtraction(ctx, args)
			if run != nil {
				saveRun(ctx, run)
				printRun(run)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgOutputOverride, "output", "o", "", "aggregate CSV path (default from config)")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		recipesPath string
		evaluateAll bool
		explain     bool
	)

	cmd := &cobra.Command{
		Use:   "run <pdf|dir>...",
		Short: "Extract the flyers then match the recipe workbook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			run, err := runExtraction(ctx, args)
			if err != nil {
				if run != nil {
					saveRun(ctx, run)
					printRun(run)
				}
				return err
			}

			err = runMatch(ctx, run, matchOptions{
				recipesPath: recipesPath,
				evaluateAll: evaluateAll,
				explain:     explain,
			})
			saveRun(ctx, run)
			printRun(run)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgOutputOverride, "output", "o", "", "aggregate CSV path (default from config)")
	cmd.Flags().StringVarP(&recipesPath, "recipes", "r", "", "recipe workbook (default from config)")
	cmd.Flags().BoolVar(&evaluateAll, "all", false, "also evaluate the second half of the workbook")
	cmd.Flags().BoolVar(&explain, "explain", false, "show the local ingredient overlap of each evaluated recipe")
	return cmd
}

// cfgOutputOverride replaces the configured aggregate path when set.
var cfgOutputOverride string

// runExtraction runs the flyer pipeline over args and renders its progress.
// The returned run is non-nil once the pipeline started.
func runExtraction(ctx context.Context, args []string) (*domain.Run, error) {
	docs, err := documentsFromArgs(args)
	if err != nil {
		return nil, err
	}
	if err := ensureAPIKey(); err != nil {
		return nil, err
	}
	if cfgOutputOverride != "" {
		cfg.Aggregate.Path = cfgOutputOverride
	}

	client, err := newLLMClient(cfg.LLM.APIKey)
	if err != nil {
		return nil, err
	}
	rasterizer, err := newRasterizer(cfg.Raster.OutputDir)
	if err != nil {
		return nil, err
	}
	tableCache, closeCache := openCache()
	defer closeCache()

	service := extract.NewService(extract.Config{
		Rules:         cfg.Selector.Rules(),
		AggregatePath: cfg.Aggregate.Path,
	}, rasterizer, client, tableCache, logger)

	run := domain.NewRun(docs)
	eventCh := make(chan domain.StreamEvent, 100)
	errCh := make(chan error, 1)
	go func() {
		err := service.Process(ctx, run, eventCh)
		close(eventCh)
		errCh <- err
	}()

	ui.Section("Extraction")
	var (
		bar      *progressbar.ProgressBar
		failures []string
	)
	startTime := time.Now()
	for event := range eventCh {
		switch event.Type {
		case domain.EventDocumentsSelected:
			names, _ := event.Payload.([]string)
			for _, n := range names {
				ui.Step("%s", n)
			}
			bar = ui.ProgressBar(len(names), "Extracting tables")

		case domain.EventImageComplete:
			if bar != nil {
				_ = bar.Add(1)
			}

		case domain.EventError:
			if event.Position == 0 {
				continue
			}
			failures = append(failures, fmt.Sprint(event.Payload))
			if bar != nil {
				_ = bar.Add(1)
			}

		case domain.EventAggregated:
			if bar != nil {
				_ = bar.Finish()
			}
			ui.Success("%v", event.Payload)
		}
	}

	for _, f := range failures {
		ui.Warning("%s", f)
	}
	if err := <-errCh; err != nil {
		ui.Error("Extraction failed: %v", err)
		return run, err
	}
	ui.Info("Done in %s", FormatDuration(time.Since(startTime)))
	return run, nil
}

// printRun renders the run summary, or emits it as JSON.
func printRun(run *domain.Run) {
	rec := storage.NewRecord(run)
	if outputJSON {
		payload := map[string]any{"run": rec}
		if run.Aggregate != nil {
			payload["items"] = run.Aggregate.Rows
		}
		if run.Match != nil {
			payload["match"] = run.Match
		}
		_ = ui.JSON(payload)
		return
	}

	ui.Section("Summary")
	ui.KeyValue("Run", rec.ID)
	ui.KeyValue("Status", rec.Status)
	ui.KeyValue("Images", rec.Images)
	ui.KeyValue("Tables", rec.Tables)
	ui.KeyValue("Rows", rec.Rows)
	if rec.AggregatePath != "" {
		ui.KeyValue("Aggregate", rec.AggregatePath)
	}
	for _, f := range rec.Failures {
		ui.KeyValue(fmt.Sprintf("Image %d", f.Position), f.Message)
	}
	if rec.Error != "" {
		ui.KeyValue("Error", rec.Error)
	}
}
