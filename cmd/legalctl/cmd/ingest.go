package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/uk-legal-assistant/internal/config"
	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/legislation"
)

func newIngestCmd() *cobra.Command {
	var sourcesPath string

	cmd := &cobra.Command{
		Use:   "ingest [url...]",
		Short: "Fetch, chunk, embed and index legislation",
		Long: `Ingest legislation into the vector index.

Sources are taken from the URLs given as arguments, else from --sources,
else from LEGISLATION_SOURCES_PATH. URLs may point at legislation.gov.uk
XML (…/data.xml) or at local files (file:///path/act.xml).

Examples:
  legalctl ingest https://www.legislation.gov.uk/ukpga/1996/18/data.xml
  legalctl ingest --sources configs/legislation_sources.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			var sources []domain.LegislationSource
			switch {
			case len(args) > 0:
				sources = legislation.SourcesFromURLs(args)
			default:
				path := sourcesPath
				if path == "" {
					path = cfg.LegislationSourcesPath
				}
				loaded, err := legislation.LoadSources(path)
				if err != nil {
					return err
				}
				sources = loaded
			}

			core, err := coreFactory(cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			report, err := core.Ingestor(nil).Ingest(cmd.Context(), sources)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested %d chunks from %d sources\n", report.ChunksWritten, len(sources)-len(report.Errors))
			if len(report.Errors) > 0 {
				payload, _ := json.MarshalIndent(report.Errors, "", "  ")
				fmt.Fprintf(out, "Failed sources:\n%s\n", payload)
				return fmt.Errorf("%d of %d sources failed: %s", len(report.Errors), len(sources), failedURLs(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourcesPath, "sources", "", "YAML file listing legislation sources")
	return cmd
}

func failedURLs(errs []domain.IngestError) string {
	urls := make([]string, 0, len(errs))
	for _, e := range errs {
		urls = append(urls, e.SourceURL)
	}
	return strings.Join(urls, ", ")
}
