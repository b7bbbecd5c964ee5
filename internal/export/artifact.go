package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ArtifactName returns the file name for year. Negative years keep their
// sign, so every integer maps to a distinct name.
func ArtifactName(prefix string, year int) string {
	return fmt.Sprintf("%s_%d.geojson", prefix, year)
}

// ArtifactPath joins ArtifactName onto dir.
func ArtifactPath(dir, prefix string, year int) string {
	return filepath.Join(dir, ArtifactName(prefix, year))
}

// artifactExists reports whether a regular file sits at path. A missing
// directory counts as missing artifacts.
func artifactExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// CountArtifacts counts artifacts present on disk for years.
func CountArtifacts(dir, prefix string, years []int) (int, error) {
	n := 0
	for _, year := range years {
		ok, err := artifactExists(ArtifactPath(dir, prefix, year))
		if err != nil {
			return n, fmt.Errorf("stat artifact for %d: %w", year, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}
