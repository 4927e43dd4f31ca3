// Package sink implements the append-only record output: a CSV file plus an
// optional JSON Lines mirror of the same rows.
package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

// Config captures the output locations.
type Config struct {
	// CSVPath is the primary output file.
	CSVPath string `mapstructure:"csv_path"`
	// JSONLPath, when set, mirrors every appended row as a JSON object.
	JSONLPath string `mapstructure:"jsonl_path"`
}

// Sink writes rows durably. Every call opens, writes, flushes, fsyncs and
// closes the files, so a crash never leaves buffered rows behind.
type Sink struct {
	mu        sync.Mutex
	csvPath   string
	jsonlPath string
	logger    *zap.Logger
}

// jsonRow is the JSON Lines shape of a row.
type jsonRow struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	DocumentURL string `json:"documentUrl"`
}

// New validates cfg and creates the output directories.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.CSVPath) == "" {
		return nil, fmt.Errorf("output.csv_path is required")
	}
	if cfg.JSONLPath != "" && filepath.Clean(cfg.JSONLPath) == filepath.Clean(cfg.CSVPath) {
		return nil, fmt.Errorf("output.jsonl_path must differ from output.csv_path")
	}
	for _, p := range []string{cfg.CSVPath, cfg.JSONLPath} {
		if err := ensureDir(p); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{csvPath: cfg.CSVPath, jsonlPath: cfg.JSONLPath, logger: logger}, nil
}

// InitHeader truncates the output and writes header as its first rows.
func (s *Sink) InitHeader(ctx context.Context, header [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeCSV(s.csvPath, os.O_TRUNC, header); err != nil {
		return err
	}
	if s.jsonlPath != "" {
		if err := writeJSONL(s.jsonlPath, os.O_TRUNC, nil); err != nil {
			return err
		}
	}
	s.logger.Info("output initialized", zap.String("path", s.csvPath))
	return nil
}

// Append adds rows to the end of the output.
func (s *Sink) Append(ctx context.Context, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeCSV(s.csvPath, os.O_APPEND, rows); err != nil {
		return err
	}
	if s.jsonlPath != "" {
		if err := writeJSONL(s.jsonlPath, os.O_APPEND, rows); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the output files. Missing files are ignored.
func (s *Sink) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []string{s.csvPath, s.jsonlPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %w", crawl.ErrIO, p, err)
		}
	}
	return nil
}

// Path returns the CSV location.
func (s *Sink) Path() string {
	return s.csvPath
}

func writeCSV(path string, mode int, rows [][]string) error {
	return withFile(path, mode, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.WriteAll(rows); err != nil {
			return fmt.Errorf("write csv rows: %w", err)
		}
		return nil
	})
}

func writeJSONL(path string, mode int, rows [][]string) error {
	return withFile(path, mode, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetEscapeHTML(false)
		for _, row := range rows {
			if err := enc.Encode(toJSONRow(row)); err != nil {
				return fmt.Errorf("encode json record: %w", err)
			}
		}
		return nil
	})
}

// withFile opens path in the given mode, runs fn, then syncs and closes it.
func withFile(path string, mode int, fn func(*os.File) error) (err error) {
	// #nosec G304 -- output path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", crawl.ErrIO, path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", crawl.ErrIO, path, closeErr)
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("%w: %s: %w", crawl.ErrIO, path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", crawl.ErrIO, path, err)
	}
	return nil
}

func toJSONRow(row []string) jsonRow {
	var out jsonRow
	if len(row) > 0 {
		out.Title = row[0]
	}
	if len(row) > 1 {
		out.Date = row[1]
	}
	if len(row) > 2 {
		out.DocumentURL = row[2]
	}
	return out
}

func ensureDir(filename string) error {
	if filename == "" {
		return nil
	}
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
