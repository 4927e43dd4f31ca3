// Package local implements a checkpoint backend on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
)

// Config captures the parameters for the file backend.
type Config struct {
	// Path is the checkpoint file.
	Path string `mapstructure:"path" yaml:"path"`
}

// Backend stores the record in a single JSON file. Writes go to a temp file
// in the same directory which is synced and renamed over the target.
type Backend struct {
	path string
}

// New creates the parent directory if needed and checks it is writable.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	dir := filepath.Dir(cfg.Path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat checkpoint directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("checkpoint directory %q is not a directory", dir)
	}
	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("checkpoint path %q is a directory", cfg.Path)
	}

	probe, err := os.CreateTemp(dir, ".writable_test*")
	if err != nil {
		return nil, fmt.Errorf("checkpoint directory is not writable: %w", err)
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}
	return &Backend{path: cfg.Path}, nil
}

// Read returns the file contents or checkpoint.ErrNotFound.
func (b *Backend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Write atomically replaces the file.
func (b *Backend) Write(_ context.Context, data []byte) (err error) {
	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return syncDir(dir)
}

// Delete removes the file if present.
func (b *Backend) Delete(_ context.Context) error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// Location returns a file:// URI.
func (b *Backend) Location() string {
	return fmt.Sprintf("file://%s", b.path)
}

// syncDir flushes the rename to disk. Filesystems that refuse to fsync a
// directory are tolerated.
func syncDir(dir string) error {
	d, err := os.Open(dir) // #nosec G304 -- directory of the configured checkpoint path.
	if err != nil {
		return fmt.Errorf("failed to open checkpoint directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil && !isUnsupported(err) {
		return fmt.Errorf("failed to sync checkpoint directory: %w", err)
	}
	return nil
}

func isUnsupported(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "not supported")
}
