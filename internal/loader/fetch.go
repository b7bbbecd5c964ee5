package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = sleepContext

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const maxFetchAttempts = 3

// Fetcher downloads extracts given by URL into a local directory
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	dir        string
	logger     *slog.Logger
}

// NewFetcher creates a fetcher saving into dir. Downloads are bounded by the
// caller's context rather than a client timeout; planet files are large.
func NewFetcher(dir, userAgent string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		dir:       dir,
		logger:    logger.With(slog.String("component", "fetch")),
	}
}

// IsRemote reports whether input is an http(s) URL
func IsRemote(input string) bool {
	u, err := url.Parse(input)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// LocalName is the file name a URL is saved under
func LocalName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "extract.osm.pbf"
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		return "extract.osm.pbf"
	}
	return name
}

// FetchWithRetry downloads rawURL unless a file of the same name is already
// in the download directory, retrying server errors with backoff. It returns
// the local path.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (string, error) {
	dst := filepath.Join(f.dir, LocalName(rawURL))

	if info, err := os.Stat(dst); err == nil && info.Mode().IsRegular() {
		f.logger.Info("extract already downloaded", slog.String("path", dst))
		return dst, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		err := f.fetch(ctx, rawURL, dst)
		if err == nil {
			return dst, nil
		}
		lastErr = err

		var se *statusError
		if !errors.As(err, &se) || se.code < 500 || ctx.Err() != nil {
			return "", err
		}
		if attempt < maxFetchAttempts {
			f.logger.Warn("download failed, retrying", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			if err := fetchSleepFunc(ctx, time.Duration(attempt)*2*time.Second); err != nil {
				return "", fmt.Errorf("download interrupted: %w", err)
			}
		}
	}
	return "", lastErr
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.code, e.status)
}

// fetch streams the body into a temporary file and renames it into place
func (f *Fetcher) fetch(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	tmp := dst + "." + uuid.NewString() + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("read body: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish download: %w", err)
	}

	f.logger.Info("downloaded extract", slog.String("path", dst), slog.Int64("bytes", n))
	return nil
}
