// Package gcs stores the checkpoint record as a Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
)

// Config names the object that holds the record.
type Config struct {
	Bucket string
	Object string
}

// Backend writes the record with a single object writer; GCS only makes the
// new generation visible once the writer closes successfully.
type Backend struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed checkpoint backend.
func New(client *storage.Client, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &Backend{client: client, bucket: cfg.Bucket, object: cfg.Object}, nil
}

func (b *Backend) handle() *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.object)
}

// Read downloads the record.
func (b *Backend) Read(ctx context.Context) ([]byte, error) {
	r, err := b.handle().NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Write uploads the record, replacing the previous generation.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	writer := b.handle().NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Delete removes the object if present.
func (b *Backend) Delete(ctx context.Context) error {
	err := b.handle().Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Close closes the storage client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Location returns a gs:// URI.
func (b *Backend) Location() string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, b.object)
}
