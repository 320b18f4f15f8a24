package feed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk feed configuration (sources.yaml).
type Config struct {
	Sources []Source `yaml:"sources"`
}

// LoadConfig reads and parses a sources file. Duplicate URLs are dropped,
// keeping the first occurrence.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse sources config %s: %w", path, err)
	}

	cfg.Sources = DedupeSources(cfg.Sources)

	return &cfg, nil
}

// LoadSources merges sources from the given config files in order. Later files
// never shadow earlier ones: the first source for a URL wins.
func LoadSources(paths ...string) ([]Source, error) {
	var all []Source

	for _, p := range paths {
		cfg, err := LoadConfig(p)
		if err != nil {
			return nil, err
		}

		all = append(all, cfg.Sources...)
	}

	return DedupeSources(all), nil
}
