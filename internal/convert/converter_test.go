package convert

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func writeCollection(t *testing.T, path string, features ...*geojson.Feature) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func square(x, y float64) orb.Polygon {
	// Counter-clockwise, as GeoJSON producers usually emit
	return orb.Polygon{orb.Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func feature(g orb.Geometry, name string, tags any) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["name"] = name
	if tags != nil {
		f.Properties["tags"] = tags
	}
	return f
}

func readAttributes(t *testing.T, path string) [][]string {
	t.Helper()
	r, err := shp.Open(path)
	if err != nil {
		t.Fatalf("open shapefile: %v", err)
	}
	defer r.Close()

	var rows [][]string
	for r.Next() {
		n, _ := r.Shape()
		row := make([]string, len(r.Fields()))
		for i := range row {
			row[i] = strings.Trim(r.ReadAttribute(n, i), " \x00")
		}
		rows = append(rows, row)
	}
	return rows
}

func TestConverter_Run(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "shp")

	writeCollection(t, filepath.Join(in, "countries_1850.geojson"),
		feature(square(0, 0), "France", `{"name:zh": "法国"}`),
		feature(orb.MultiPolygon{square(5, 5), square(8, 8)}, "Preußen", map[string]any{"name:en": "Prussia"}),
		feature(orb.Point{1, 1}, "Marker", nil),
	)
	writeCollection(t, filepath.Join(in, "countries_1852.geojson"),
		feature(square(2, 2), "Prussia", nil),
	)

	p := &fakeProvider{}
	var buf bytes.Buffer
	c := NewConverter(
		Options{InputDir: in, Prefix: "countries", OutputDir: out},
		newTestTranslator(p, nil, 50),
		&buf, nil,
	)

	res, err := c.Run(context.Background(), 1850, 1852)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Years != 3 || res.Written != 2 || res.Missing != 1 || res.Failed != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	// Prussia appears in two years but is translated once
	if res.Translated != 1 || len(p.calls()) != 1 {
		t.Errorf("expected one translated name in one call, got %d names and %v", res.Translated, p.calls())
	}

	output := buf.String()
	for _, want := range []string{"countries_1851.geojson not found, skipping.", "[1850]   2 features", "Done: 2/3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}

	dst := c.ShapefilePath(1850)
	if dst != filepath.Join(out, "1850", "countries_1850.shp") {
		t.Errorf("unexpected shapefile path %s", dst)
	}

	rows := readAttributes(t, dst)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := [][]string{
		{"1", "法国", "France"},
		{"2", "ZH:PRUSSIA", "Prussia"},
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("row %d field %d: expected %q, got %q", i, j, want[i][j], rows[i][j])
			}
		}
	}

	cpg, err := os.ReadFile(filepath.Join(out, "1850", "countries_1850.cpg"))
	if err != nil || string(cpg) != "UTF-8" {
		t.Errorf("expected UTF-8 code page file, got %q (%v)", cpg, err)
	}
}

func TestConverter_InvalidRange(t *testing.T) {
	c := NewConverter(Options{InputDir: t.TempDir(), Prefix: "p", OutputDir: t.TempDir()}, newTestTranslator(nil, nil, 1), nil, nil)
	if _, err := c.Run(context.Background(), 2000, 1900); err == nil {
		t.Error("expected error for reversed range")
	}
}

func TestPolygonParts_Orientation(t *testing.T) {
	outer := orb.Ring{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}} // CCW
	hole := orb.Ring{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}}  // CW

	parts := polygonParts(orb.Polygon{outer, hole})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}

	if ringOrientation(parts[0]) != orb.CW {
		t.Error("expected outer ring clockwise")
	}
	if ringOrientation(parts[1]) != orb.CCW {
		t.Error("expected hole counter-clockwise")
	}

	if polygonParts(orb.LineString{{0, 0}, {1, 1}}) != nil {
		t.Error("expected no parts for a line")
	}
}

func ringOrientation(pts []shp.Point) orb.Orientation {
	r := make(orb.Ring, len(pts))
	for i, p := range pts {
		r[i] = orb.Point{p.X, p.Y}
	}
	return r.Orientation()
}

func TestBuildRecords(t *testing.T) {
	features := []*geojson.Feature{
		feature(square(0, 0), "大清", nil),
		feature(square(0, 0), "", `{"name:en": "Siam"}`),
		feature(square(0, 0), "", nil),
	}

	recs := BuildRecords(features, func(s string) string { return "<" + s + ">" })
	if recs[0].Title != "大清" || recs[0].TitleEN != "大清" {
		t.Errorf("unexpected record %+v", recs[0])
	}
	if recs[1].Title != "<Siam>" || recs[1].TitleEN != "Siam" {
		t.Errorf("unexpected record %+v", recs[1])
	}
	if recs[2].Title != "" || recs[2].TitleEN != "" {
		t.Errorf("expected empty titles, got %+v", recs[2])
	}

	if got := PendingNames(features); len(got) != 1 || got[0] != "Siam" {
		t.Errorf("expected [Siam], got %v", got)
	}
}

func TestPendingNames_SkipsNonPolygonal(t *testing.T) {
	features := []*geojson.Feature{
		feature(square(0, 0), "Prussia", nil),
		feature(orb.Point{1, 1}, "Marker", nil),
		feature(orb.LineString{{0, 0}, {1, 1}}, "Border", nil),
	}

	if got := PendingNames(features); len(got) != 1 || got[0] != "Prussia" {
		t.Errorf("expected [Prussia], got %v", got)
	}
}

func TestWriteShapefile_AttributeTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "countries_1850.shp")

	written, skipped, err := WriteShapefile(path, []Record{
		{Title: "法国", TitleEN: "France", Geometry: square(0, 0)},
		{Title: "Marker", TitleEN: "Marker", Geometry: orb.Point{1, 1}},
	})
	if err != nil {
		t.Fatalf("WriteShapefile failed: %v", err)
	}
	if written != 1 || skipped != 1 {
		t.Errorf("expected 1 written and 1 skipped, got %d and %d", written, skipped)
	}

	for _, ext := range []string{".shp", ".shx", ".dbf", ".cpg", ".prj"} {
		if _, err := os.Stat(filepath.Join(dir, "countries_1850"+ext)); err != nil {
			t.Errorf("expected %s sidecar: %v", ext, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "countries_1850dbf")); !os.IsNotExist(err) {
		t.Error("attribute table left under a name readers do not find")
	}

	r, err := shp.Open(path)
	if err != nil {
		t.Fatalf("open shapefile: %v", err)
	}
	defer r.Close()

	if n := len(r.Fields()); n != 3 {
		t.Fatalf("expected 3 attribute fields, got %d", n)
	}
	rows := readAttributes(t, path)
	if len(rows) != 1 || rows[0][0] != "1" || rows[0][2] != "France" {
		t.Errorf("unexpected rows %v", rows)
	}
}
