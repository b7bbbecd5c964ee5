// Package cache stores name translations across convert runs: a short-lived
// in-process layer in front of a persistent on-disk layer.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// TranslationKey derives a cache key for translating name into lang. Names
// are keyed verbatim; only surrounding whitespace is ignored.
func TranslationKey(lang, name string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(lang))))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(name)))
	return "ohmexport:tr:v1:" + hex.EncodeToString(h.Sum(nil))
}
