package convert

import (
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Record is one output row before it is written
type Record struct {
	Title    string
	TitleEN  string
	Geometry orb.Geometry
}

// ReadFeatures loads every feature from a GeoJSON FeatureCollection
func ReadFeatures(path string) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc.Features, nil
}

func featureName(f *geojson.Feature) string {
	if s, ok := f.Properties["name"].(string); ok {
		return s
	}
	return ""
}

// PendingNames returns the English titles of polygonal features that carry no
// Chinese name, in feature order. Features the shapefile writer skips are left
// out. Duplicates are kept; the translator dedupes.
func PendingNames(features []*geojson.Feature) []string {
	var names []string
	for _, f := range features {
		if !isPolygonal(f.Geometry) {
			continue
		}
		tags := ParseTags(f.Properties["tags"])
		name := featureName(f)
		if _, ok := TitleZH(tags, name); ok {
			continue
		}
		if en := TitleEN(tags, name); en != "" {
			names = append(names, en)
		}
	}
	return names
}

// BuildRecords computes titles for features. lookup maps an English title to
// its translation and returns its input when none is known.
func BuildRecords(features []*geojson.Feature, lookup func(string) string) []Record {
	records := make([]Record, 0, len(features))
	for _, f := range features {
		tags := ParseTags(f.Properties["tags"])
		name := featureName(f)

		rec := Record{
			TitleEN:  TitleEN(tags, name),
			Geometry: f.Geometry,
		}
		if zh, ok := TitleZH(tags, name); ok {
			rec.Title = zh
		} else if strings.TrimSpace(rec.TitleEN) != "" {
			rec.Title = lookup(rec.TitleEN)
		}
		records = append(records, rec)
	}
	return records
}
