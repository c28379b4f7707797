package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// ErrInvalidManifest wraps manifest validation failures.
var ErrInvalidManifest = errors.New("invalid batch manifest")

// Manifest describes one batch: which year's scenes to process, where
// the inputs live and where the products go. Command-line flags override
// manifest values, manifest values override the config file.
type Manifest struct {
	// Year is the calendar year the batch covers.
	Year int `yaml:"year"`

	// InputDir is scanned for scene archives when Jobs is empty.
	InputDir string `yaml:"inputDir,omitempty"`

	// OutputDir receives preprocessed rasters and the final stack.
	OutputDir string `yaml:"outputDir"`

	// Tier optionally overrides the configured resolution tier.
	Tier string `yaml:"tier,omitempty"`

	// Graph optionally overrides the processing graph selected by tier.
	Graph string `yaml:"graph,omitempty"`

	// Statistic optionally overrides the compositing statistic.
	Statistic string `yaml:"statistic,omitempty"`

	// Jobs lists explicit work items in place of an InputDir scan.
	Jobs []ManifestJob `yaml:"jobs,omitempty"`
}

// ManifestJob is one explicit work item in a batch manifest.
type ManifestJob struct {
	ID     string `yaml:"id,omitempty"`
	Input  string `yaml:"input"`
	Output string `yaml:"output,omitempty"`
}

// LoadManifest reads and validates a batch manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest for structural problems.
func (m *Manifest) Validate() error {
	if m.Year < 2014 {
		return fmt.Errorf("%w: year %d predates the Sentinel-1 mission", ErrInvalidManifest, m.Year)
	}
	if m.OutputDir == "" {
		return fmt.Errorf("%w: outputDir is required", ErrInvalidManifest)
	}
	if m.InputDir == "" && len(m.Jobs) == 0 {
		return fmt.Errorf("%w: either inputDir or jobs must be set", ErrInvalidManifest)
	}
	for i, j := range m.Jobs {
		if j.Input == "" {
			return fmt.Errorf("%w: job %d has no input", ErrInvalidManifest, i)
		}
	}
	return nil
}
