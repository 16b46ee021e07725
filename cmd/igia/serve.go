package main

import (
	"github.com/spf13/cobra"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/server"
	"github.com/Bens368/IGIA/internal/survey"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve exposes the flyer pipeline and the survey chat over HTTP.

Requests may carry their own model credential in an
"Authorization: Bearer <key>" header; the configured key is used otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if port != 0 {
				cfg.Server.Port = port
			}

			instructions, err := survey.LoadInstructions(cfg.Survey.InstructionsPath)
			if err != nil {
				logger.Warn().Err(err).Str("path", cfg.Survey.InstructionsPath).Msg("Survey sessions start without instructions")
			}

			tableCache, closeCache := openCache()
			defer closeCache()

			runs, closeDB, err := openRuns(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			router := server.NewRouter(server.Deps{
				Config: cfg,
				Logger: logger,
				NewModels: func(apiKey string) (server.Models, error) {
					return newLLMClient(apiKey)
				},
				NewRasterizer: func(outputDir string) (domain.Rasterizer, error) {
					return newRasterizer(outputDir)
				},
				Cache:        tableCache,
				Runs:         runs,
				Sessions:     survey.NewStore(survey.DefaultMaxSessions, survey.DefaultMaxAge),
				Instructions: instructions,
			})

			srv := server.New(cfg.Server, router, logger)
			ui.Success("Listening on %s", srv.Addr())
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}
