package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Harmonization cost functions accepted by otbcli_Mosaic.
const (
	HarmoCostRMSE  = "rmse"
	HarmoCostMuSig = "musig"
)

// ErrNoMosaicInputs indicates a mosaic request with an empty input list.
var ErrNoMosaicInputs = errors.New("runner: mosaic request has no inputs")

// MosaicRequest describes one otbcli_Mosaic invocation covering a single
// composite period.
type MosaicRequest struct {
	JobID     string
	AttemptID string

	// Inputs are the per-scene rasters mosaicked into one period image.
	Inputs []string
	Output string

	// SpacingMeters is the output pixel size on both axes. It must match
	// the resolution tier of the inputs.
	SpacingMeters float64

	Dir     string
	Env     []string
	LogPath string
	Timeout time.Duration
}

// MosaicRunner invokes Orfeo Toolbox's otbcli_Mosaic with feathering and
// band harmonization. Mosaic failures are terminal for the period, so
// callers do not retry them.
type MosaicRunner struct {
	runner    *Runner
	harmoCost string
	noData    int
}

// MosaicOption configures a MosaicRunner.
type MosaicOption func(*MosaicRunner)

// WithHarmoCost selects the harmonization cost function, rmse or musig.
// An empty cost keeps the default.
func WithHarmoCost(cost string) MosaicOption {
	return func(m *MosaicRunner) {
		if cost != "" {
			m.harmoCost = cost
		}
	}
}

// WithNoData overrides the output no-data value.
func WithNoData(v int) MosaicOption {
	return func(m *MosaicRunner) { m.noData = v }
}

// NewMosaic creates a MosaicRunner for the given otbcli_Mosaic
// executable.
func NewMosaic(executable string, opts ...MosaicOption) *MosaicRunner {
	m := &MosaicRunner{
		runner:    &Runner{executable: executable, grace: DefaultGraceDuration},
		harmoCost: HarmoCostRMSE,
		noData:    -32768,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run mosaics the request's inputs into one output raster.
func (m *MosaicRunner) Run(ctx context.Context, req MosaicRequest) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, ErrNoMosaicInputs
	}

	output, err := filepath.Abs(req.Output)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	args, err := m.args(req, output)
	if err != nil {
		return nil, err
	}

	return m.runner.invoke(ctx, Request{
		JobID:     req.JobID,
		AttemptID: req.AttemptID,
		Dir:       req.Dir,
		Env:       req.Env,
		LogPath:   req.LogPath,
		Timeout:   req.Timeout,
	}, args, output)
}

// args builds the otbcli_Mosaic argv. Both spacing values are passed
// positive; the tool derives the axis orientation itself.
func (m *MosaicRunner) args(req MosaicRequest, output string) ([]string, error) {
	args := []string{"-il"}
	for _, in := range req.Inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return nil, fmt.Errorf("resolve input path: %w", err)
		}
		args = append(args, abs)
	}
	spacing := strconv.FormatFloat(req.SpacingMeters, 'f', -1, 64)
	return append(args,
		"-out", output,
		"-comp.feather", "large",
		"-harmo.method", "band",
		"-harmo.cost", m.harmoCost,
		"-interpolator", "bco",
		"-output.spacingx", spacing,
		"-output.spacingy", spacing,
		"-nodata", strconv.Itoa(m.noData),
	), nil
}
