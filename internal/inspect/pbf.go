package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/qedus/osmpbf"
)

// ScanFile decodes an OSM PBF file and tallies its date tags
func ScanFile(ctx context.Context, path string) (*Tally, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return Scan(ctx, f)
}

// Scan tallies date tags from a PBF stream
func Scan(ctx context.Context, r io.Reader) (*Tally, error) {
	d := osmpbf.NewDecoder(r)
	d.SetBufferSize(osmpbf.MaxBlobSize)
	if err := d.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("start decoder: %w", err)
	}

	t := &Tally{}
	for n := 0; ; n++ {
		if n%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return t, err
			}
		}

		v, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return t, fmt.Errorf("decode: %w", err)
		}

		switch v := v.(type) {
		case *osmpbf.Node:
			t.Add("node", v.ID, v.Tags)
		case *osmpbf.Way:
			t.Add("way", v.ID, v.Tags)
		case *osmpbf.Relation:
			t.Add("relation", v.ID, v.Tags)
		}
	}
}
