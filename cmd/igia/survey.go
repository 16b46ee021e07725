package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/survey"
)

func newSurveyCmd() *cobra.Command {
	var instructionsPath string

	cmd := &cobra.Command{
		Use:   "survey",
		Short: "Answer the data-maturity questionnaire in the terminal",
		Long: `Survey starts a streaming chat with the questionnaire assistant. It asks
the questions one at a time and closes with your maturity level.

Type "exit" or press Ctrl-D to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if instructionsPath == "" {
				instructionsPath = cfg.Survey.InstructionsPath
			}
			instructions, err := survey.LoadInstructions(instructionsPath)
			if err != nil {
				return err
			}
			if err := ensureAPIKey(); err != nil {
				return err
			}
			client, err := newLLMClient(cfg.LLM.APIKey)
			if err != nil {
				return err
			}

			session := survey.NewSession(client.ChatModel(), instructions)
			logger.Debug().Str("session_id", session.ID).Msg("Survey session started")
			ui.Info("Data-maturity survey with %s. Type \"exit\" to leave.", session.Model)

			for {
				text, err := ui.Prompt("\nYou")
				if errors.Is(err, io.EOF) {
					ui.Newline()
					return nil
				}
				if err != nil {
					return err
				}
				switch strings.ToLower(text) {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				if err := exchange(ctx, session, client, text); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					ui.Error("%v", err)
				}
			}
		},
	}
	cmd.Flags().StringVarP(&instructionsPath, "instructions", "i", "", "questionnaire instructions file (default from config)")
	return cmd
}

// exchange streams one assistant reply to the terminal, with a spinner until
// the first chunk arrives.
func exchange(ctx context.Context, session *survey.Session, streamer domain.ChatStreamer, text string) error {
	spin := ui.NewSpinner("Thinking")
	spin.Start()
	var once sync.Once

	fmt.Fprint(ui.out, "\nAssistant: ")
	_, err := session.Send(ctx, streamer, text, func(chunk string) {
		once.Do(spin.Stop)
		fmt.Fprint(ui.out, chunk)
	})
	once.Do(spin.Stop)
	fmt.Fprintln(ui.out)
	return err
}
