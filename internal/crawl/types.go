// Package crawl implements the resumable pagination loop that walks listing
// pages, fetches each linked detail page, and commits rows plus checkpoint
// state one page at a time.
package crawl

import (
	"sort"
	"time"
)

// FallbackPrefix tags the title of a row whose detail page had no document URL.
const FallbackPrefix = "[fallback] "

// Reasons passed to Reporter.ItemSkipped.
const (
	SkipAlreadyProcessed = "already processed"
	SkipMissingLink      = "missing link"
	SkipUnavailable      = "detail page unavailable"
)

// Header is the single header row written to a fresh output file.
var Header = []string{"Title", "Date", "DocumentUrl"}

// HeaderRows returns a fresh copy of the output header rows.
func HeaderRows() [][]string {
	return [][]string{append([]string(nil), Header...)}
}

// URLSet is an insertion-only set of URLs.
type URLSet map[string]struct{}

// NewURLSet builds a set from the given URLs, ignoring empty strings.
func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Has reports whether u is in the set.
func (s URLSet) Has(u string) bool {
	_, ok := s[u]
	return ok
}

// Add inserts u and reports whether it was new.
func (s URLSet) Add(u string) bool {
	if u == "" || s.Has(u) {
		return false
	}
	s[u] = struct{}{}
	return true
}

// Len returns the number of URLs in the set.
func (s URLSet) Len() int {
	return len(s)
}

// Sorted returns the members in lexical order so persisted records are stable.
func (s URLSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s URLSet) Clone() URLSet {
	out := make(URLSet, len(s))
	for u := range s {
		out[u] = struct{}{}
	}
	return out
}

// CheckpointState is the resumable progress record.
type CheckpointState struct {
	// LastCompletedPage is the highest page fully committed; 0 means none.
	LastCompletedPage int
	// ProcessedItemURLs holds every detail URL already fetched and recorded.
	ProcessedItemURLs URLSet
	// ProcessedDocumentURLs holds every real document URL seen so far.
	ProcessedDocumentURLs URLSet
	// LastUpdate is stamped by the store on every save.
	LastUpdate time.Time
}

// EmptyState returns the zero checkpoint used when no record exists.
func EmptyState() CheckpointState {
	return CheckpointState{
		ProcessedItemURLs:     URLSet{},
		ProcessedDocumentURLs: URLSet{},
	}
}

// Fresh reports whether no page has ever been committed.
func (s CheckpointState) Fresh() bool {
	return s.LastCompletedPage == 0
}

// ExtractedItem is one output row.
type ExtractedItem struct {
	Title       string
	Date        string
	DocumentURL string
	ItemURL     string
	Fallback    bool
}

// Row renders the item as [Title, Date, DocumentUrl].
func (i ExtractedItem) Row() []string {
	title := i.Title
	if i.Fallback {
		title = FallbackPrefix + title
	}
	return []string{title, i.Date, i.DocumentURL}
}

// Fields is what a field extractor pulls from a detail page.
type Fields struct {
	Title       string
	Date        string
	DocumentURL string
}

// PaginationMarker is the "current of total" indicator on a listing page.
type PaginationMarker struct {
	Current int
	Total   int
}

// Done reports whether the marker points at the last page.
func (m PaginationMarker) Done() bool {
	return m.Current >= m.Total
}

// FetchOutcome classifies a navigation.
type FetchOutcome int

// Navigation outcomes.
const (
	FetchSuccess FetchOutcome = iota
	FetchNotFound
	FetchServerError
	FetchNetworkFailure
)

func (o FetchOutcome) String() string {
	switch o {
	case FetchSuccess:
		return "success"
	case FetchNotFound:
		return "not_found"
	case FetchServerError:
		return "server_error"
	case FetchNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// ClassifyStatus maps an HTTP status code onto a FetchOutcome.
func ClassifyStatus(code int) FetchOutcome {
	switch {
	case code == 404:
		return FetchNotFound
	case code >= 500 && code < 600:
		return FetchServerError
	default:
		return FetchSuccess
	}
}

// Outcome is the terminal state of a run.
type Outcome string

// Terminal outcomes.
const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeIncomplete Outcome = "incomplete"
	OutcomeFatal      Outcome = "fatal"
)

// Result summarizes a finished run.
type Result struct {
	Outcome        Outcome
	StartPage      int
	LastPage       int
	PagesCommitted int
	Records        int
	Skipped        int
	Failed         int
	TotalProcessed int
	Elapsed        time.Duration
	Err            error
}
