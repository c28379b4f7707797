package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/cmn/logger"
	"github.com/sarops/s1compose/internal/cmn/logger/tag"
	"github.com/sarops/s1compose/internal/compose"
	"github.com/sarops/s1compose/internal/raster"
	"github.com/sarops/s1compose/internal/temporal"
)

// StackFile returns the annual stack raster path inside an output dir.
func StackFile(outputDir string, year int) string {
	return filepath.Join(outputDir, fmt.Sprintf("s1_stack_%d.img", year))
}

// Stack assembles the annual band stack from the period composites in
// outputDir. Periods whose composite is missing or unreadable become
// gap-filled bands. The per-band provenance is returned alongside the
// written stack path.
func (p *Pipeline) Stack(ctx context.Context, year int, outputDir string) (string, []compose.Provenance, error) {
	cal, err := temporal.NewCalendar(year, p.cfg.Stack.PeriodDays)
	if err != nil {
		return "", nil, err
	}

	composites := make([]*raster.Raster, cal.Periods())
	for period := 1; period <= cal.Periods(); period++ {
		path := PeriodFile(outputDir, period)
		if !fileutil.IsFileNonEmpty(path) {
			continue
		}
		r, err := raster.ReadRaster(path)
		if err != nil {
			// A broken composite degrades its period to gap-filled; it
			// must not sink the whole stack.
			logger.Warn(ctx, "Unreadable period composite",
				tag.Period(period), tag.File(path), tag.Error(err))
			continue
		}
		composites[period-1] = r
	}

	stack, provenance, err := compose.Assemble(ctx, cal, composites, p.cfg.Stack.FillGaps)
	if err != nil {
		return "", nil, err
	}
	for i, prov := range provenance {
		if prov == compose.ProvenanceObserved {
			continue
		}
		logger.Debug(ctx, "Synthesized band",
			tag.Period(i+1), tag.Provenance(string(prov)))
	}

	out := StackFile(outputDir, year)
	if err := raster.WriteStack(out, stack); err != nil {
		return "", nil, err
	}
	logger.Info(ctx, "Wrote annual stack",
		tag.Year(year), tag.Count(len(stack.Bands)), tag.File(out))
	return out, provenance, nil
}
