package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/relevance"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

func newClassifyCmd() *cobra.Command {
	var lexiconPath string
	var format string

	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Score a document against the UK legal lexicon",
		Long: `Extract the text of a pdf, docx, doc, txt or xlsx file and report
whether it reads as a UK employment or legal document.

Runs fully offline; no model or index is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lex := lexicon.Default()
			if lexiconPath != "" {
				loaded, err := lexicon.Load(lexiconPath)
				if err != nil {
					return err
				}
				lex = loaded
			}

			filename := filepath.Base(args[0])
			ex := extractor.New()
			if !ex.Supports(filename) {
				return fmt.Errorf("%s: unsupported format, expected pdf, doc, docx, txt or xlsx", filename)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			extracted, err := ex.Extract(cmd.Context(), filename, data)
			if err != nil {
				return err
			}

			assessment := relevance.NewClassifier(lex).Classify(extracted.Text, filename)
			var analysis *domain.DocumentAnalysis
			if assessment.IsRelevant {
				a := relevance.NewAnalyzer(lex).Analyze(extracted.Text)
				analysis = &a
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"filename":   filename,
					"assessment": assessment,
					"analysis":   analysis,
				})
			}

			verdict := "REJECTED"
			if assessment.IsRelevant {
				verdict = "ACCEPTED"
			}
			fmt.Fprintf(out, "%s: %s (score %d, %d categories)\n", filename, verdict, assessment.Score, assessment.CategoriesMatched)
			if analysis != nil {
				fmt.Fprintf(out, "Document type: %s, %d words\n", analysis.DocumentType, analysis.WordCount)
			}
			for _, w := range assessment.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			for _, s := range assessment.Suggestions {
				fmt.Fprintf(out, "  suggestion: %s\n", s)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&lexiconPath, "lexicon", "", "Lexicon YAML overriding the embedded default")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
