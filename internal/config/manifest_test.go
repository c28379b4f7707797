package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadManifest(t *testing.T) {
	t.Run("ScanDirectory", func(t *testing.T) {
		path := writeManifest(t, `
year: 2024
inputDir: /data/scenes/2024
outputDir: /data/products/2024
tier: 20m
statistic: mean
`)
		m, err := LoadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, 2024, m.Year)
		assert.Equal(t, "/data/scenes/2024", m.InputDir)
		assert.Equal(t, "/data/products/2024", m.OutputDir)
		assert.Equal(t, "20m", m.Tier)
		assert.Equal(t, "mean", m.Statistic)
		assert.Empty(t, m.Jobs)
	})

	t.Run("ExplicitJobs", func(t *testing.T) {
		path := writeManifest(t, `
year: 2023
outputDir: /out
jobs:
  - id: scene-a
    input: /data/a.zip
  - input: /data/b.zip
    output: /out/b.img
`)
		m, err := LoadManifest(path)
		require.NoError(t, err)
		require.Len(t, m.Jobs, 2)
		assert.Equal(t, "scene-a", m.Jobs[0].ID)
		assert.Equal(t, "/data/b.zip", m.Jobs[1].Input)
		assert.Equal(t, "/out/b.img", m.Jobs[1].Output)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read manifest")
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := writeManifest(t, "year: [not a year")
		_, err := LoadManifest(path)
		assert.ErrorContains(t, err, "failed to parse manifest")
	})
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr string
	}{
		{
			name: "Valid",
			m:    Manifest{Year: 2024, InputDir: "/in", OutputDir: "/out"},
		},
		{
			name:    "YearTooEarly",
			m:       Manifest{Year: 2013, InputDir: "/in", OutputDir: "/out"},
			wantErr: "predates the Sentinel-1 mission",
		},
		{
			name:    "NoOutputDir",
			m:       Manifest{Year: 2024, InputDir: "/in"},
			wantErr: "outputDir is required",
		},
		{
			name:    "NoInputs",
			m:       Manifest{Year: 2024, OutputDir: "/out"},
			wantErr: "either inputDir or jobs",
		},
		{
			name: "JobWithoutInput",
			m: Manifest{Year: 2024, OutputDir: "/out", Jobs: []ManifestJob{
				{Input: "/data/a.zip"},
				{ID: "b"},
			}},
			wantErr: "job 1 has no input",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidManifest)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
