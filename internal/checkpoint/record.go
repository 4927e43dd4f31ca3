// Package checkpoint persists crawl progress as a single JSON record and
// exposes it through crawl.CheckpointStore.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

// naiveLayout is the zone-less ISO timestamp written by older checkpoint files.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a JSON time that also accepts zone-less ISO values, read as UTC.
type Timestamp struct {
	time.Time
}

// MarshalJSON writes RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339 or a zone-less ISO timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("lastUpdate must be a string: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	parsed, err := time.Parse(naiveLayout, raw)
	if err != nil {
		return fmt.Errorf("parse lastUpdate %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// Record is the on-disk shape of a checkpoint.
type Record struct {
	LastPage              int       `json:"lastPage"`
	ProcessedURLs         []string  `json:"processedUrls"`
	ProcessedDocumentURLs []string  `json:"processedDocumentUrls"`
	LastUpdate            Timestamp `json:"lastUpdate"`
}

// NewRecord builds the record persisted for a committed page.
func NewRecord(page int, itemURLs, documentURLs []string, now time.Time) Record {
	return Record{
		LastPage:              page,
		ProcessedURLs:         nonNil(itemURLs),
		ProcessedDocumentURLs: nonNil(documentURLs),
		LastUpdate:            Timestamp{Time: now.UTC()},
	}
}

// Encode renders the record as indented JSON.
func (r Record) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks the structural invariants of a record.
func (r Record) Validate() error {
	if r.LastPage < 0 {
		return fmt.Errorf("%w: lastPage %d is negative", crawl.ErrCorruptState, r.LastPage)
	}
	for _, u := range r.ProcessedURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: empty entry in processedUrls", crawl.ErrCorruptState)
		}
	}
	for _, u := range r.ProcessedDocumentURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: empty entry in processedDocumentUrls", crawl.ErrCorruptState)
		}
	}
	return nil
}

// State converts the record into the in-memory checkpoint.
func (r Record) State() crawl.CheckpointState {
	return crawl.CheckpointState{
		LastCompletedPage:     r.LastPage,
		ProcessedItemURLs:     crawl.NewURLSet(r.ProcessedURLs...),
		ProcessedDocumentURLs: crawl.NewURLSet(r.ProcessedDocumentURLs...),
		LastUpdate:            r.LastUpdate.Time,
	}
}

// wireRecord tells an absent or null field apart from a zero value.
type wireRecord struct {
	LastPage              *int       `json:"lastPage"`
	ProcessedURLs         *[]string  `json:"processedUrls"`
	ProcessedDocumentURLs *[]string  `json:"processedDocumentUrls"`
	LastUpdate            *Timestamp `json:"lastUpdate"`
}

// Decode parses and validates a persisted record. Any malformed input yields
// crawl.ErrCorruptState, including a missing or null lastPage, processedUrls
// or processedDocumentUrls. lastUpdate may be absent.
func Decode(data []byte) (Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Record{}, fmt.Errorf("%w: empty record", crawl.ErrCorruptState)
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return Record{}, fmt.Errorf("%w: record is null", crawl.ErrCorruptState)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var wire wireRecord
	if err := dec.Decode(&wire); err != nil {
		return Record{}, fmt.Errorf("%w: %w", crawl.ErrCorruptState, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Record{}, fmt.Errorf("%w: trailing data after record", crawl.ErrCorruptState)
	}
	switch {
	case wire.LastPage == nil:
		return Record{}, fmt.Errorf("%w: lastPage is missing", crawl.ErrCorruptState)
	case wire.ProcessedURLs == nil:
		return Record{}, fmt.Errorf("%w: processedUrls is missing", crawl.ErrCorruptState)
	case wire.ProcessedDocumentURLs == nil:
		return Record{}, fmt.Errorf("%w: processedDocumentUrls is missing", crawl.ErrCorruptState)
	}

	rec := Record{
		LastPage:              *wire.LastPage,
		ProcessedURLs:         nonNil(*wire.ProcessedURLs),
		ProcessedDocumentURLs: nonNil(*wire.ProcessedDocumentURLs),
	}
	if wire.LastUpdate != nil {
		rec.LastUpdate = *wire.LastUpdate
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
