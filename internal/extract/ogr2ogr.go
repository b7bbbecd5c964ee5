package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"net/url"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// maxToolOutput bounds how much tool output is carried in an error
const maxToolOutput = 512

// Ogr2Ogr runs GDAL's ogr2ogr against a PostGIS source
type Ogr2Ogr struct {
	tool      string
	source    string
	env       []string
	precision int
}

// NewOgr2Ogr builds an extractor for the database behind dsn. The password
// is handed to the tool through PGPASSWORD on the child process only, so it
// never shows up in the argument list.
func NewOgr2Ogr(tool, dsn string, precision int) (*Ogr2Ogr, error) {
	if tool == "" {
		return nil, errors.New("extraction tool path is empty")
	}

	source, password, err := GDALSource(dsn)
	if err != nil {
		return nil, err
	}

	var env []string
	if password != "" {
		env = append(env, "PGPASSWORD="+password)
	}

	return &Ogr2Ogr{
		tool:      tool,
		source:    source,
		env:       env,
		precision: precision,
	}, nil
}

// sslKeys are the libpq TLS parameters pgconn consumes while parsing; they are
// read from the raw dsn so ogr2ogr connects with the same TLS settings.
var sslKeys = []string{"sslmode", "sslrootcert", "sslcert", "sslkey"}

// GDALSource converts a libpq connection string or URL into a GDAL "PG:"
// datasource without the password, and returns the password separately.
// TLS parameters and runtime parameters such as application_name are carried
// over.
func GDALSource(dsn string) (string, string, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "", "", fmt.Errorf("parse store dsn: %w", err)
	}

	parts := []string{
		"host=" + quoteConnValue(cfg.Host),
		"port=" + strconv.Itoa(int(cfg.Port)),
		"dbname=" + quoteConnValue(cfg.Database),
	}
	if cfg.User != "" {
		parts = append(parts, "user="+quoteConnValue(cfg.User))
	}

	params := dsnParams(dsn)
	for _, key := range sslKeys {
		if v := params[key]; v != "" {
			parts = append(parts, key+"="+quoteConnValue(v))
		}
	}

	var options []string
	keys := make([]string, 0, len(cfg.RuntimeParams))
	for k := range cfg.RuntimeParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := cfg.RuntimeParams[k]
		if k == "application_name" {
			parts = append(parts, "application_name="+quoteConnValue(v))
			continue
		}
		options = append(options, "-c "+k+"="+v)
	}
	if len(options) > 0 {
		parts = append(parts, "options="+quoteConnValue(strings.Join(options, " ")))
	}

	return "PG:" + strings.Join(parts, " "), cfg.Password, nil
}

// dsnParams returns the query parameters of a URL dsn or the key=value pairs
// of a keyword dsn. Quoted keyword values are not unescaped.
func dsnParams(dsn string) map[string]string {
	params := map[string]string{}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return params
		}
		for k, v := range u.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		return params
	}
	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if ok {
			params[k] = strings.Trim(v, "'")
		}
	}
	return params
}

// quoteConnValue quotes a libpq keyword value when it needs it
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Args returns the ogr2ogr argument list for req
func (o *Ogr2Ogr) Args(req Request) []string {
	return []string{
		"-f", "GeoJSON",
		"-t_srs", "EPSG:4326",
		"-lco", fmt.Sprintf("COORDINATE_PRECISION=%d", o.precision),
		"-nln", req.Layer,
		"-sql", req.Query,
		req.Output,
		o.source,
	}
}

// Extract runs the tool and waits for it to exit
func (o *Ogr2Ogr) Extract(ctx context.Context, req Request) error {
	cmd := exec.CommandContext(ctx, o.tool, o.Args(req)...)
	cmd.Env = append(os.Environ(), o.env...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := tail(out); msg != "" {
			return fmt.Errorf("%s: %w: %s", o.tool, err, msg)
		}
		return fmt.Errorf("%s: %w", o.tool, err)
	}
	return nil
}

func tail(out []byte) string {
	out = bytes.TrimSpace(out)
	if len(out) > maxToolOutput {
		out = out[len(out)-maxToolOutput:]
	}
	return strings.ReplaceAll(string(out), "\n", " | ")
}
