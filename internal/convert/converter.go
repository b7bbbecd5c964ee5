// Package convert turns exported per-year GeoJSON snapshots into shapefiles
// carrying an OID, a Chinese title and an English title per feature.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ppiankov/ohmexport/internal/export"
)

// Options locates inputs and outputs
type Options struct {
	InputDir  string // Directory holding <prefix>_<year>.geojson
	Prefix    string
	OutputDir string // Shapefiles land in <OutputDir>/<year>/
}

// Result summarizes a conversion run
type Result struct {
	Years      int
	Written    int
	Missing    int
	Failed     int
	Translated int // Names sent for translation
}

// Converter runs the scan, translate and write phases
type Converter struct {
	opts       Options
	translator *Translator
	out        io.Writer
	logger     *slog.Logger
}

// NewConverter creates a converter printing progress to out
func NewConverter(opts Options, translator *Translator, out io.Writer, logger *slog.Logger) *Converter {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		opts:       opts,
		translator: translator,
		out:        out,
		logger:     logger.With(slog.String("component", "convert")),
	}
}

// ShapefilePath returns where the shapefile for year is written
func (c *Converter) ShapefilePath(year int) string {
	name := fmt.Sprintf("%s_%d.shp", c.opts.Prefix, year)
	return filepath.Join(c.opts.OutputDir, strconv.Itoa(year), name)
}

// Run converts every year in [start, end]. Names are translated once for the
// whole range before any file is written. A year whose GeoJSON is missing is
// skipped; a year that fails to write is reported and the run continues.
func (c *Converter) Run(ctx context.Context, start, end int) (*Result, error) {
	if err := export.Validate(start, end, 1); err != nil {
		return nil, err
	}
	years := export.Years(start, end)
	res := &Result{Years: len(years)}

	fmt.Fprintf(c.out, "Phase 1: scanning %d GeoJSON file(s) for names without a Chinese tag\n", len(years))
	var pending []string
	for _, year := range years {
		features, err := ReadFeatures(c.inputPath(year))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn("scan failed", slog.Int("year", year), slog.String("error", err.Error()))
			}
			continue
		}
		pending = append(pending, PendingNames(features)...)
	}

	fmt.Fprintf(c.out, "Phase 2: translating\n")
	n, err := c.translator.Prime(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("translate names: %w", err)
	}
	res.Translated = n
	if n == 0 {
		fmt.Fprintf(c.out, "  All names resolved from tags or cache, no translation needed.\n")
	} else {
		fmt.Fprintf(c.out, "  Translated %d unique name(s).\n", n)
	}

	fmt.Fprintf(c.out, "\nPhase 3: writing shapefiles\n\n")
	if err := os.MkdirAll(c.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ok, err := c.convertYear(year)
		switch {
		case err != nil:
			res.Failed++
			fmt.Fprintf(c.out, "[%d] failed: %v\n", year, err)
		case ok:
			res.Written++
		default:
			res.Missing++
		}
	}

	fmt.Fprintf(c.out, "\nDone: %d/%d shapefile(s) written to %s/\n", res.Written, res.Years, c.opts.OutputDir)
	return res, nil
}

func (c *Converter) inputPath(year int) string {
	return export.ArtifactPath(c.opts.InputDir, c.opts.Prefix, year)
}

// convertYear reports false without error when the input is missing
func (c *Converter) convertYear(year int) (bool, error) {
	src := c.inputPath(year)

	features, err := ReadFeatures(src)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(c.out, "[%d] %s not found, skipping.\n", year, filepath.Base(src))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	dst := c.ShapefilePath(year)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("create year directory: %w", err)
	}

	records := BuildRecords(features, c.translator.Lookup)
	written, skipped, err := WriteShapefile(dst, records)
	if err != nil {
		return false, err
	}
	if skipped > 0 {
		c.logger.Warn("skipped features without polygon geometry", slog.Int("year", year), slog.Int("skipped", skipped))
	}

	fmt.Fprintf(c.out, "[%d] %3d features → %s\n", year, written, dst)
	return true, nil
}
