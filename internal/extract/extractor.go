// Package extract hands per-year snapshot queries to an external GIS tool
// that writes GeoJSON.
package extract

import (
	"context"
)

// Request describes one extraction
type Request struct {
	Year   int    // Snapshot year, used for the layer name
	Layer  string // Output layer name
	Query  string // SQL selecting the snapshot
	Output string // Path the tool must create
}

// Extractor writes the result of a snapshot query to a file
type Extractor interface {
	Extract(ctx context.Context, req Request) error
}

// ExtractorFunc adapts a function to Extractor
type ExtractorFunc func(ctx context.Context, req Request) error

// Extract calls f
func (f ExtractorFunc) Extract(ctx context.Context, req Request) error {
	return f(ctx, req)
}
