// Package inspect surveys the date tags of an OSM extract before import, so
// unparseable values show up before they silently become NULL years.
package inspect

import (
	"github.com/ppiankov/ohmexport/internal/store"
	"github.com/ppiankov/ohmexport/internal/temporal"
)

// maxSamples bounds how many unparseable values are kept
const maxSamples = 20

// Sample is one date value that did not normalize to a year
type Sample struct {
	Kind  string // node, way or relation
	ID    int64
	Tag   string
	Value string
}

// TagStats counts one date tag
type TagStats struct {
	Present  int64
	Parsed   int64
	Unparsed int64
}

// Tally aggregates date tag statistics over a stream of objects
type Tally struct {
	Objects int64
	Start   TagStats
	End     TagStats
	MinYear int
	MaxYear int
	Samples []Sample

	seenYear bool
}

// Add records one object's tags
func (t *Tally) Add(kind string, id int64, tags map[string]string) {
	t.Objects++
	t.count(&t.Start, kind, id, store.StartDateTag, tags)
	t.count(&t.End, kind, id, store.EndDateTag, tags)
}

func (t *Tally) count(s *TagStats, kind string, id int64, tag string, tags map[string]string) {
	raw, ok := tags[tag]
	if !ok {
		return
	}
	s.Present++

	year, ok := temporal.ParseYear(raw)
	if !ok {
		s.Unparsed++
		if len(t.Samples) < maxSamples {
			t.Samples = append(t.Samples, Sample{Kind: kind, ID: id, Tag: tag, Value: raw})
		}
		return
	}

	s.Parsed++
	if !t.seenYear || year < t.MinYear {
		t.MinYear = year
	}
	if !t.seenYear || year > t.MaxYear {
		t.MaxYear = year
	}
	t.seenYear = true
}

// HasYears reports whether any value parsed
func (t *Tally) HasYears() bool {
	return t.seenYear
}
