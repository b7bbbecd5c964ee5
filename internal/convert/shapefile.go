package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// dbfStringLen is the widest character field dBASE allows
const dbfStringLen = 254

const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// WriteShapefile writes records as a polygon shapefile with OID, TITLE and
// TITLE_EN attributes, plus .cpg and .prj sidecars. OIDs are 1-based and
// contiguous over written rows. Records without polygonal geometry are
// skipped and counted.
func WriteShapefile(path string, records []Record) (written, skipped int, err error) {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return 0, 0, fmt.Errorf("create shapefile: %w", err)
	}

	written, skipped, err = writeShapes(w, records)
	// Close flushes the .shx and .dbf headers
	w.Close()
	if err != nil {
		return written, skipped, err
	}

	base := strings.TrimSuffix(path, ".shp")
	if err := fixTableName(base); err != nil {
		return written, skipped, err
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return written, skipped, fmt.Errorf("write cpg: %w", err)
	}
	if err := os.WriteFile(base+".prj", []byte(wgs84PRJ), 0o644); err != nil {
		return written, skipped, fmt.Errorf("write prj: %w", err)
	}

	return written, skipped, nil
}

func writeShapes(w *shp.Writer, records []Record) (written, skipped int, err error) {
	fields := []shp.Field{
		shp.NumberField("OID", 10),
		shp.StringField("TITLE", dbfStringLen),
		shp.StringField("TITLE_EN", dbfStringLen),
	}
	if err := w.SetFields(fields); err != nil {
		return 0, 0, fmt.Errorf("set fields: %w", err)
	}

	for _, rec := range records {
		parts := polygonParts(rec.Geometry)
		if len(parts) == 0 {
			skipped++
			continue
		}

		poly := shp.Polygon(*shp.NewPolyLine(parts))
		row := int(w.Write(&poly))
		written++

		if err := w.WriteAttribute(row, 0, written); err != nil {
			return written, skipped, fmt.Errorf("write OID: %w", err)
		}
		if err := w.WriteAttribute(row, 1, truncateBytes(rec.Title, dbfStringLen)); err != nil {
			return written, skipped, fmt.Errorf("write TITLE: %w", err)
		}
		if err := w.WriteAttribute(row, 2, truncateBytes(rec.TitleEN, dbfStringLen)); err != nil {
			return written, skipped, fmt.Errorf("write TITLE_EN: %w", err)
		}
	}
	return written, skipped, nil
}

// fixTableName moves the attribute table to <base>.dbf. go-shp v0.1.1 names
// it <base>dbf, which readers do not pick up.
func fixTableName(base string) error {
	misnamed := base + "dbf"
	if _, err := os.Stat(misnamed); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("stat attribute table: %w", err)
	}
	if err := os.Rename(misnamed, base+".dbf"); err != nil {
		return fmt.Errorf("rename attribute table: %w", err)
	}
	return nil
}

// isPolygonal reports whether g can be written as a shapefile polygon
func isPolygonal(g orb.Geometry) bool {
	return len(polygonParts(g)) > 0
}

// polygonParts flattens polygonal geometry into shapefile rings: outer rings
// clockwise, holes counter-clockwise.
func polygonParts(g orb.Geometry) [][]shp.Point {
	var polys []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	default:
		return nil
	}

	var parts [][]shp.Point
	for _, poly := range polys {
		for i, ring := range poly {
			if len(ring) < 4 {
				continue
			}
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			parts = append(parts, ringPoints(ring, want))
		}
	}
	return parts
}

func ringPoints(ring orb.Ring, want orb.Orientation) []shp.Point {
	pts := make([]shp.Point, len(ring))
	reverse := ring.Orientation() != want
	for i, p := range ring {
		j := i
		if reverse {
			j = len(ring) - 1 - i
		}
		pts[j] = shp.Point{X: p[0], Y: p[1]}
	}
	return pts
}
