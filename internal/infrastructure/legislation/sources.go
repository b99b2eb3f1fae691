package legislation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

type sourceFile struct {
	Sources []domain.LegislationSource `yaml:"sources"`
}

// LoadSources reads a YAML list of acts to ingest.
func LoadSources(path string) ([]domain.LegislationSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

func ParseSources(data []byte) ([]domain.LegislationSource, error) {
	var file sourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Sources))
	out := make([]domain.LegislationSource, 0, len(file.Sources))
	for i, src := range file.Sources {
		src.URL = strings.TrimSpace(src.URL)
		if src.URL == "" {
			return nil, fmt.Errorf("source %d: %w", i, errors.New("url is required"))
		}
		if _, dup := seen[src.URL]; dup {
			continue
		}
		seen[src.URL] = struct{}{}
		out = append(out, src)
	}
	return out, nil
}

// SourcesFromURLs builds bare sources whose metadata comes from the XML.
func SourcesFromURLs(urls []string) []domain.LegislationSource {
	out := make([]domain.LegislationSource, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, domain.LegislationSource{URL: u})
		}
	}
	return out
}
