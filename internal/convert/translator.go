package convert

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/ohmexport/internal/cache"
	"github.com/ppiankov/ohmexport/internal/llm"
	"github.com/ppiankov/ohmexport/internal/metrics"
)

// TranslatorOptions configures batching
type TranslatorOptions struct {
	TargetLang string
	Model      string
	BatchSize  int
	BatchDelay time.Duration
	CacheTTL   time.Duration
}

// Translator resolves English titles to the target language once per run.
// Successful translations persist in the cache across runs; names that could
// not be translated fall back to English for this run only.
type Translator struct {
	provider llm.Provider
	cache    cache.Cache
	opts     TranslatorOptions
	logger   *slog.Logger

	mu       sync.RWMutex
	resolved map[string]string
}

// NewTranslator creates a translator. A nil provider keeps every uncached
// name in English; a nil cache disables persistence.
func NewTranslator(provider llm.Provider, c cache.Cache, opts TranslatorOptions, logger *slog.Logger) *Translator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		provider: provider,
		cache:    c,
		opts:     opts,
		logger:   logger.With(slog.String("component", "translate")),
		resolved: make(map[string]string),
	}
}

// Prime resolves names ahead of writing. It returns the number of names that
// needed a remote lookup.
func (t *Translator) Prime(ctx context.Context, names []string) (int, error) {
	pending := t.unresolved(names)
	if len(pending) == 0 {
		return 0, nil
	}

	if t.provider == nil {
		t.logger.Warn("no translation provider configured, keeping English names", slog.Int("names", len(pending)))
		for _, name := range pending {
			t.fallback(name)
		}
		return len(pending), nil
	}

	for i := 0; i < len(pending); i += t.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return len(pending), err
		}

		end := min(i+t.opts.BatchSize, len(pending))
		chunk := pending[i:end]

		translations, err := t.translate(ctx, chunk)
		if err != nil {
			t.logger.Warn("batch translation failed, retrying one by one",
				slog.Int("batch", len(chunk)), slog.String("error", err.Error()))
			t.translateEach(ctx, chunk)
		} else {
			for j, name := range chunk {
				t.store(name, translations[j])
			}
		}

		if end < len(pending) && t.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return len(pending), ctx.Err()
			case <-time.After(t.opts.BatchDelay):
			}
		}
	}

	return len(pending), nil
}

// Lookup returns the translation for name, or name itself
func (t *Translator) Lookup(name string) string {
	t.mu.RLock()
	v, ok := t.resolved[name]
	t.mu.RUnlock()
	if ok {
		return v
	}

	if v, ok := t.cached(name); ok {
		return v
	}
	return name
}

// unresolved dedupes names in order and drops those already known
func (t *Translator) unresolved(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		t.mu.RLock()
		_, ok := t.resolved[name]
		t.mu.RUnlock()
		if ok {
			continue
		}

		if v, ok := t.cached(name); ok {
			metrics.TranslationsTotal.WithLabelValues("cache").Inc()
			t.remember(name, v)
			continue
		}
		out = append(out, name)
	}
	return out
}

func (t *Translator) translate(ctx context.Context, names []string) ([]string, error) {
	resp, err := t.provider.Translate(ctx, llm.TranslateRequest{
		Names:      names,
		TargetLang: t.opts.TargetLang,
		Model:      t.opts.Model,
	})
	if err != nil {
		return nil, err
	}
	return resp.Translations, nil
}

func (t *Translator) translateEach(ctx context.Context, names []string) {
	for _, name := range names {
		out, err := t.translate(ctx, []string{name})
		if err != nil {
			t.logger.Warn("could not translate name", slog.String("name", name), slog.String("error", err.Error()))
			t.fallback(name)
			continue
		}
		t.store(name, out[0])
	}
}

// store records a remote translation. An empty reply falls back to English.
func (t *Translator) store(name, translated string) {
	if strings.TrimSpace(translated) == "" {
		t.fallback(name)
		return
	}

	metrics.TranslationsTotal.WithLabelValues("remote").Inc()
	t.remember(name, translated)
	if t.cache != nil {
		if err := t.cache.Set(t.key(name), []byte(translated), t.opts.CacheTTL); err != nil {
			t.logger.Debug("cache write failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
}

func (t *Translator) fallback(name string) {
	metrics.TranslationsTotal.WithLabelValues("fallback").Inc()
	t.remember(name, name)
}

func (t *Translator) remember(name, translated string) {
	t.mu.Lock()
	t.resolved[name] = translated
	t.mu.Unlock()
}

func (t *Translator) cached(name string) (string, bool) {
	if t.cache == nil {
		return "", false
	}
	v, ok := t.cache.Get(t.key(name))
	if !ok || len(v) == 0 {
		return "", false
	}
	return string(v), true
}

func (t *Translator) key(name string) string {
	return cache.TranslationKey(t.opts.TargetLang, name)
}
