package overlay

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/workshopwatch/internal/apperr"
)

// DefaultMaxTableSize bounds the bytes read from one table source.
const DefaultMaxTableSize = 32 << 20

// ErrTableTooLarge is returned when a table source exceeds the size limit.
var ErrTableTooLarge = errors.New("overlay: table too large")

// ExportURL rewrites a Google Sheets link (…/d/<id>/edit, /view, /copy…)
// into the CSV export URL of its first sheet.
func ExportURL(sheetURL string) (string, error) {
	parts := strings.Split(sheetURL, "/")
	for i, p := range parts {
		if p != "d" {
			continue
		}
		if i+1 >= len(parts) || parts[i+1] == "" {
			break
		}
		return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=0", parts[i+1]), nil
	}
	return "", fmt.Errorf("overlay: no document id in %q: %w", sheetURL, apperr.ErrInvalid)
}

// ParseCSV reads a whole delimited table. Rows may differ in length. Any
// syntax error discards the table.
func ParseCSV(r io.Reader) (Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("overlay: parse csv: %w", err)
	}
	return Snapshot(records), nil
}

// Loader fetches tables for overlay configurations. Concurrent loads of the
// same source share one request.
type Loader struct {
	http   *http.Client
	logger *slog.Logger
	group  singleflight.Group
	// maxSize bounds each table; larger sources are rejected, not cut.
	maxSize int64
	// exportURL is replaced in tests to point at a local server.
	exportURL func(string) (string, error)
}

// NewLoader creates a Loader whose HTTP requests time out after timeout.
func NewLoader(timeout time.Duration, logger *slog.Logger) *Loader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		exportURL: ExportURL,
		maxSize:   DefaultMaxTableSize,
	}
}

// Load returns the table cfg points at. It never returns a partial table:
// on any failure the snapshot is nil and the error says why.
func (l *Loader) Load(ctx context.Context, cfg Config) (Snapshot, error) {
	var key string
	var load func() (Snapshot, error)
	switch {
	case cfg.SheetURL != "":
		key = "url:" + cfg.SheetURL
		load = func() (Snapshot, error) { return l.loadURL(ctx, cfg.SheetURL) }
	case cfg.SheetFile != "":
		key = "file:" + cfg.SheetFile
		load = func() (Snapshot, error) { return l.loadFile(cfg.SheetFile) }
	default:
		return nil, apperr.ErrNoSource
	}

	v, err, shared := l.group.Do(key, func() (any, error) { return load() })
	if err != nil {
		l.logger.Warn("overlay: load failed", slog.String("source", key), slog.String("error", err.Error()))
		return nil, err
	}
	rows := v.(Snapshot)
	l.logger.Debug("overlay: loaded", slog.String("source", key), slog.Int("rows", len(rows)), slog.Bool("shared", shared))
	return rows, nil
}

func (l *Loader) loadURL(ctx context.Context, sheetURL string) (Snapshot, error) {
	export, err := l.exportURL(sheetURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, export, nil)
	if err != nil {
		return nil, fmt.Errorf("overlay: build request: %w", err)
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overlay: fetch sheet: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &apperr.APIError{Endpoint: "sheets", StatusCode: resp.StatusCode}
	}
	return l.readTable(resp.Body)
}

func (l *Loader) loadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("overlay: open table: %w", err)
	}
	defer f.Close()
	return l.readTable(f)
}

// readTable reads at most maxSize bytes and parses them. A source with more
// data fails with ErrTableTooLarge.
func (l *Loader) readTable(r io.Reader) (Snapshot, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("overlay: read table: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTableTooLarge, l.maxSize)
	}
	return ParseCSV(bytes.NewReader(data))
}
