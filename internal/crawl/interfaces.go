package crawl

import (
	"context"
	"time"
)

// CheckpointStore persists CheckpointState as a single durable record.
type CheckpointStore interface {
	// Load returns EmptyState when no record exists and ErrCorruptState when
	// the record cannot be decoded.
	Load(ctx context.Context) (CheckpointState, error)
	// Save replaces the record atomically.
	Save(ctx context.Context, page int, itemURLs, documentURLs []string) error
}

// RecordSink is the append-only tabular output.
type RecordSink interface {
	InitHeader(ctx context.Context, header [][]string) error
	Append(ctx context.Context, rows [][]string) error
}

// Page is an open browsing context. Callers must Close it exactly once.
type Page interface {
	URL() string
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Fetcher opens pages. Open always returns a non-nil Page; err is set only
// for FetchNetworkFailure.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (Page, FetchOutcome, error)
	Close() error
}

// Item is one entry on a listing page.
type Item struct {
	// Link is the resolved detail URL, empty when the entry has none.
	Link string
	// Href is the attribute value as written on the page. Checkpoints from
	// older tools recorded this form, so it also counts as processed.
	Href string
}

// Enumerator lists the items of a listing page in document order.
type Enumerator interface {
	Items(ctx context.Context, page Page) ([]Item, error)
}

// Extractor pulls fields from a detail page. An empty DocumentURL triggers
// the fallback row.
type Extractor interface {
	Extract(ctx context.Context, page Page) (Fields, error)
}

// PaginationReader reads the pagination indicator of a listing page.
type PaginationReader interface {
	Marker(ctx context.Context, page Page) (PaginationMarker, error)
}

// Reporter receives progress notifications. Implementations must not block.
type Reporter interface {
	RunStarted(startPage int, state CheckpointState)
	PageCommitted(page int, records int)
	ItemRecorded(page int, item ExtractedItem)
	ItemSkipped(page int, url string, reason string)
	RunFinished(result Result)
}

// AttentionFunc is called for listing entries that need an operator, such
// as items without a link.
type AttentionFunc func(ctx context.Context, page, index int, reason string)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error
