package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Bens368/IGIA/internal/domain"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			repo, closeDB, err := openRuns(ctx)
			if err != nil {
				return err
			}
			defer closeDB()
			if repo == nil {
				return domain.ConfigError("run history is disabled (storage.enabled is false)", nil)
			}

			if len(args) == 0 {
				records, err := repo.List(ctx, limit)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(records)
				}

				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{
						r.ID.String(),
						r.StartedAt.Local().Format("2006-01-02 15:04"),
						string(r.Status),
						fmt.Sprint(len(r.Documents)),
						fmt.Sprintf("%d/%d", r.Tables, r.Images),
						fmt.Sprint(r.Rows),
					})
				}
				ui.Table([]string{"Run", "Started", "Status", "Flyers", "Tables", "Rows"}, rows)
				return nil
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				return domain.InputError("invalid run id", err)
			}
			record, err := repo.Get(ctx, id)
			if err != nil {
				return err
			}
			items, err := repo.Items(ctx, id)
			if err != nil {
				return err
			}
			if outputJSON {
				return ui.JSON(map[string]any{"run": record, "items": items})
			}

			ui.Section("Run " + record.ID.String())
			ui.KeyValue("Status", record.Status)
			ui.KeyValue("Started", record.StartedAt.Local().Format("2006-01-02 15:04:05"))
			ui.KeyValue("Flyers", record.Documents)
			for _, f := range record.Failures {
				ui.KeyValue(fmt.Sprintf("Image %d", f.Position), f.Message)
			}
			if record.Error != "" {
				ui.KeyValue("Error", record.Error)
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				amount := ""
				if it.Amount.Valid {
					amount = it.Amount.Decimal.StringFixed(2)
				}
				rows = append(rows, []string{fmt.Sprint(it.Position), it.Name, it.Price, amount})
			}
			ui.Newline()
			ui.Table([]string{"Image", "Item", "Price", "Amount"}, rows)

			if record.MatchText != "" {
				ui.Section("Suggested recipes (" + record.MatchModel + ")")
				ui.Text(record.MatchText)
				ui.Newline()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the extraction cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop every cached extraction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			tableCache, closeCache := openCache()
			defer closeCache()
			if !tableCache.Enabled() {
				ui.Info("Extraction cache is disabled")
				return nil
			}
			if err := tableCache.Purge(ctx); err != nil {
				return err
			}
			ui.Success("Extraction cache purged (%s)", cfg.Cache.Driver)
			return nil
		},
	})
	return cmd
}
