// Package pipeline wires the resource planner, batch scheduler and
// compositing stages into the end-to-end annual product flow:
// preprocess scene archives, composite them into periods, assemble the
// band stack.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/config"
	"github.com/sarops/s1compose/internal/planner"
)

// Pipeline carries the resolved configuration through the stages.
type Pipeline struct {
	cfg *config.Config
}

// New creates a Pipeline over the given configuration.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// tier resolves the resolution tier, with the manifest overriding the
// configuration.
func (p *Pipeline) tier(m *config.Manifest) (planner.Tier, error) {
	s := p.cfg.Batch.Tier
	if m != nil && m.Tier != "" {
		s = m.Tier
	}
	return planner.ParseTier(s)
}

// graphPath resolves the processing graph for a tier, with the manifest
// overriding the tier-derived default.
func (p *Pipeline) graphPath(m *config.Manifest, tier planner.Tier) string {
	if m != nil && m.Graph != "" {
		return m.Graph
	}
	return filepath.Join(p.cfg.Tools.GraphDir, fmt.Sprintf("s1_grd_%s.xml", tier))
}

// JobID derives the stable job identifier from an input path: the base
// name without its archive extension, sanitized. Stable ids make
// repeated runs of the same batch idempotent.
func JobID(input string) string {
	base := filepath.Base(input)
	for _, ext := range []string{".zip", ".safe"} {
		if strings.EqualFold(filepath.Ext(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	return fileutil.SafeName(base)
}
