package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

// ErrNotFound is returned by a Backend when no record has been written yet.
var ErrNotFound = errors.New("checkpoint not found")

// Backend moves the encoded record to and from durable storage. Write must
// replace the previous record atomically: a reader sees either the old or
// the new bytes, never a mix.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
	Close() error
	// Location describes where the record lives, for logs.
	Location() string
}

// Store implements crawl.CheckpointStore on top of a Backend.
type Store struct {
	backend Backend
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for lastUpdate.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps backend in a Store.
func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("checkpoint backend is required")
	}
	s := &Store{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the persisted state, or crawl.EmptyState when nothing was saved.
func (s *Store) Load(ctx context.Context) (crawl.CheckpointState, error) {
	rec, found, err := s.Snapshot(ctx)
	if err != nil {
		return crawl.CheckpointState{}, err
	}
	if !found {
		s.logger.Info("no checkpoint found, starting fresh", zap.String("location", s.backend.Location()))
		return crawl.EmptyState(), nil
	}
	return rec.State(), nil
}

// Snapshot returns the raw persisted record and whether one exists.
func (s *Store) Snapshot(ctx context.Context) (Record, bool, error) {
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: read checkpoint %s: %w", crawl.ErrIO, s.backend.Location(), err)
	}
	rec, err := Decode(data)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode checkpoint %s: %w", s.backend.Location(), err)
	}
	return rec, true, nil
}

// Save atomically replaces the record with the given progress.
func (s *Store) Save(ctx context.Context, page int, itemURLs, documentURLs []string) error {
	data, err := NewRecord(page, itemURLs, documentURLs, s.now()).Encode()
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("%w: write checkpoint %s: %w", crawl.ErrIO, s.backend.Location(), err)
	}
	s.logger.Debug("checkpoint saved",
		zap.Int("page", page),
		zap.Int("processed_urls", len(itemURLs)),
		zap.Int("processed_documents", len(documentURLs)),
	)
	return nil
}

// Reset removes the persisted record. Removing an absent record is not an error.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("%w: delete checkpoint %s: %w", crawl.ErrIO, s.backend.Location(), err)
	}
	return nil
}

// Location reports where the record lives.
func (s *Store) Location() string {
	return s.backend.Location()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
