// Package llm translates place names through a chat model. Names go out in
// batches and come back as a JSON array in the same order.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when a model reply cannot be matched back
// to the names that were sent.
var ErrMalformedResponse = errors.New("malformed translation response")

// Provider defines the interface for translation backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Translate returns one translation per input name, in input order
	Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error)
}

// TranslateRequest is one batch of names
type TranslateRequest struct {
	Names      []string
	TargetLang string
	Model      string // Overrides the configured model when set
}

// TranslateResponse pairs with TranslateRequest.Names by index
type TranslateResponse struct {
	Translations []string
	Model        string
	TokensUsed   int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI-compatible endpoints
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for a single request
	Timeout time.Duration
}

const systemPrompt = "You translate historical place and country names for a map legend. " +
	"Use the established name in the target language when one exists; otherwise transliterate. " +
	"Reply with a JSON array of strings only."

// BuildPrompt renders the user message for a batch
func BuildPrompt(names []string, targetLang string) string {
	list, _ := json.Marshal(names)
	return fmt.Sprintf(`Translate each of these %d names into %s.
Return a JSON array with exactly %d strings, in the same order, with no commentary.

%s`, len(names), targetLang, len(names), list)
}

// ParseTranslations extracts the JSON array from a model reply and checks it
// lines up with want names. Code fences and surrounding prose are tolerated.
func ParseTranslations(reply string, want int) ([]string, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in reply", ErrMalformedResponse)
	}

	var out []string
	if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: expected %d translations, got %d", ErrMalformedResponse, want, len(out))
	}

	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out, nil
}
