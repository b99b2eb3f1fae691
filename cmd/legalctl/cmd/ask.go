package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

func newAskCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question against the indexed legislation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			core, err := coreFactory(cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			answer, err := core.Answerer(nil).Answer(cmd.Context(), domain.AnswerRequest{
				Query: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}

			fmt.Fprintln(out, answer.Text)
			if len(answer.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for _, src := range answer.Sources {
					fmt.Fprintf(out, "  - %s\n", src)
				}
			}
			if len(answer.TimedOut) > 0 {
				fmt.Fprintf(out, "\n(search variants timed out: %s)\n", strings.Join(answer.TimedOut, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
