// Package loader runs the external tool that imports an OSM extract into the
// spatial store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/ppiankov/ohmexport/internal/model"
)

// Placeholders substituted in loader arguments
const (
	InputPlaceholder = "{input}"
	DSNPlaceholder   = "{dsn}"
)

// Loader imports an extract file into the store
type Loader struct {
	path   string
	args   []string
	dsn    string
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// New creates a loader from configuration. Tool output is streamed to stdout
// and stderr.
func New(cfg model.LoaderConfig, dsn string, stdout, stderr io.Writer, logger *slog.Logger) (*Loader, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("loader.path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		path:   cfg.Path,
		args:   cfg.Args,
		dsn:    dsn,
		stdout: stdout,
		stderr: stderr,
		logger: logger.With(slog.String("component", "loader")),
	}, nil
}

// Args renders the argument list for input
func (l *Loader) Args(input string) []string {
	r := strings.NewReplacer(InputPlaceholder, input, DSNPlaceholder, l.dsn)
	out := make([]string, len(l.args))
	for i, a := range l.args {
		out[i] = r.Replace(a)
	}
	return out
}

// Load runs the tool on input and waits for it to exit
func (l *Loader) Load(ctx context.Context, input string) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("extract %s: %w", input, err)
	}

	cmd := exec.CommandContext(ctx, l.path, l.Args(input)...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	l.logger.Info("running loader", slog.String("tool", l.path), slog.String("input", input))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", l.path, err)
	}
	return nil
}
