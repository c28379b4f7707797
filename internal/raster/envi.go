package raster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Rasters are persisted in the ENVI band-sequential format: a raw
// little-endian float32 file (.img) with a text header sidecar (.hdr).
// GDAL reads and writes the format directly (gdal_translate -of ENVI), so
// every intermediate product of the pipeline stays inspectable with
// standard tooling. Band names carry the period date range and provenance
// of each band.

var (
	// ErrNotENVI is returned when a header sidecar is missing or malformed.
	ErrNotENVI = errors.New("not an ENVI raster")
	// ErrUnsupportedLayout is returned for ENVI files that are not float32 BSQ.
	ErrUnsupportedLayout = errors.New("unsupported ENVI layout")
)

// Band is one band of a Stack together with its name.
type Band struct {
	Name   string
	Pixels []float32
}

// Stack is a multi-band raster on a single grid, one band per period in the
// final product.
type Stack struct {
	Grid   Grid
	NoData float32
	Bands  []Band
}

// BandRaster returns band i as a standalone raster sharing the stack's
// grid. The pixel slice is not copied.
func (s *Stack) BandRaster(i int) *Raster {
	return &Raster{Grid: s.Grid, NoData: s.NoData, Pixels: s.Bands[i].Pixels}
}

// HeaderPath returns the .hdr sidecar path for an image path.
func HeaderPath(imgPath string) string {
	return strings.TrimSuffix(imgPath, filepath.Ext(imgPath)) + ".hdr"
}

// WriteStack writes the stack to imgPath and its .hdr sidecar. The image
// file is written atomically (temp file plus rename); the header is written
// after the data so a header never refers to a partially written image.
func WriteStack(imgPath string, s *Stack) error {
	if err := s.Grid.Validate(); err != nil {
		return err
	}
	cells := s.Grid.Cells()
	for i, b := range s.Bands {
		if len(b.Pixels) != cells {
			return fmt.Errorf("band %d has %d pixels, grid has %d cells", i+1, len(b.Pixels), cells)
		}
	}

	if err := os.MkdirAll(filepath.Dir(imgPath), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(imgPath), filepath.Base(imgPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	buf := make([]byte, 4)
	for _, b := range s.Bands {
		for _, v := range b.Pixels {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), imgPath); err != nil {
		return err
	}

	return os.WriteFile(HeaderPath(imgPath), []byte(encodeHeader(s)), 0600)
}

func encodeHeader(s *Stack) string {
	var b strings.Builder
	b.WriteString("ENVI\n")
	b.WriteString("description = {Sentinel-1 period composite stack}\n")
	fmt.Fprintf(&b, "samples = %d\n", s.Grid.Width)
	fmt.Fprintf(&b, "lines = %d\n", s.Grid.Height)
	fmt.Fprintf(&b, "bands = %d\n", len(s.Bands))
	b.WriteString("header offset = 0\n")
	b.WriteString("file type = ENVI Standard\n")
	b.WriteString("data type = 4\n")
	b.WriteString("interleave = bsq\n")
	b.WriteString("byte order = 0\n")
	fmt.Fprintf(&b, "map info = {UTM, 1.0, 1.0, %g, %g, %g, %g, 0, North, WGS-84, units=Meters}\n",
		s.Grid.OriginX, s.Grid.OriginY, s.Grid.PixelSize, s.Grid.PixelSize)
	fmt.Fprintf(&b, "data ignore value = %g\n", s.NoData)
	names := make([]string, len(s.Bands))
	for i, band := range s.Bands {
		names[i] = band.Name
	}
	fmt.Fprintf(&b, "band names = {%s}\n", strings.Join(names, ", "))
	return b.String()
}

// ReadStack reads an ENVI float32 BSQ raster from imgPath and its .hdr
// sidecar.
func ReadStack(imgPath string) (*Stack, error) {
	hdrRaw, err := os.ReadFile(HeaderPath(imgPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotENVI, err)
	}
	s, err := decodeHeader(string(hdrRaw))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(imgPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	r := bufio.NewReaderSize(f, 1<<20)
	cells := s.Grid.Cells()
	data := make([]byte, 4*cells)
	for i := range s.Bands {
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("truncated band %d of %s: %w", i+1, imgPath, err)
		}
		pixels := make([]float32, cells)
		for j := range pixels {
			pixels[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*j:]))
		}
		s.Bands[i].Pixels = pixels
	}
	return s, nil
}

func decodeHeader(raw string) (*Stack, error) {
	if !strings.HasPrefix(strings.TrimSpace(raw), "ENVI") {
		return nil, ErrNotENVI
	}
	fields, err := parseHeaderFields(raw)
	if err != nil {
		return nil, err
	}

	atoi := func(key string) (int, error) {
		v, ok := fields[key]
		if !ok {
			return 0, fmt.Errorf("%w: missing %q", ErrNotENVI, key)
		}
		return strconv.Atoi(strings.TrimSpace(v))
	}

	samples, err := atoi("samples")
	if err != nil {
		return nil, err
	}
	lines, err := atoi("lines")
	if err != nil {
		return nil, err
	}
	bands, err := atoi("bands")
	if err != nil {
		return nil, err
	}
	if dt, err := atoi("data type"); err != nil || dt != 4 {
		return nil, fmt.Errorf("%w: data type must be 4 (float32)", ErrUnsupportedLayout)
	}
	if il := strings.TrimSpace(fields["interleave"]); il != "" && !strings.EqualFold(il, "bsq") {
		return nil, fmt.Errorf("%w: interleave %q", ErrUnsupportedLayout, il)
	}
	if bo, err := atoi("byte order"); err == nil && bo != 0 {
		return nil, fmt.Errorf("%w: byte order must be 0 (little-endian)", ErrUnsupportedLayout)
	}

	s := &Stack{
		Grid:   Grid{Width: samples, Height: lines},
		NoData: DefaultNoData,
		Bands:  make([]Band, bands),
	}

	if mi, ok := fields["map info"]; ok {
		parts := strings.Split(mi, ",")
		if len(parts) >= 7 {
			s.Grid.OriginX, _ = strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			s.Grid.OriginY, _ = strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
			s.Grid.PixelSize, _ = strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
		}
	}
	if s.Grid.PixelSize == 0 {
		s.Grid.PixelSize = 1
	}

	if v, ok := fields["data ignore value"]; ok {
		if nd, err := strconv.ParseFloat(strings.TrimSpace(v), 32); err == nil {
			s.NoData = float32(nd)
		}
	}
	if v, ok := fields["band names"]; ok {
		names := strings.Split(v, ",")
		for i := range s.Bands {
			if i < len(names) {
				s.Bands[i].Name = strings.TrimSpace(names[i])
			}
		}
	}

	if err := s.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotENVI, err)
	}
	return s, nil
}

// parseHeaderFields splits an ENVI header into key/value pairs. Values in
// braces may span multiple lines; the braces are stripped.
func parseHeaderFields(raw string) (map[string]string, error) {
	fields := make(map[string]string)
	lines := strings.Split(raw, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || line == "ENVI" {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		val := strings.TrimSpace(line[eq+1:])
		if strings.HasPrefix(val, "{") {
			for !strings.Contains(val, "}") {
				i++
				if i >= len(lines) {
					return nil, fmt.Errorf("%w: unterminated value for %q", ErrNotENVI, key)
				}
				val += " " + strings.TrimSpace(lines[i])
			}
			val = strings.TrimPrefix(val, "{")
			val = strings.TrimSpace(strings.SplitN(val, "}", 2)[0])
		}
		fields[key] = val
	}
	return fields, nil
}

// WriteRaster writes a single-band ENVI raster.
func WriteRaster(imgPath string, r *Raster, name string) error {
	return WriteStack(imgPath, &Stack{
		Grid:   r.Grid,
		NoData: r.NoData,
		Bands:  []Band{{Name: name, Pixels: r.Pixels}},
	})
}

// ReadRaster reads the first band of an ENVI raster.
func ReadRaster(imgPath string) (*Raster, error) {
	s, err := ReadStack(imgPath)
	if err != nil {
		return nil, err
	}
	if len(s.Bands) == 0 {
		return nil, fmt.Errorf("%s has no bands", imgPath)
	}
	return s.BandRaster(0), nil
}
