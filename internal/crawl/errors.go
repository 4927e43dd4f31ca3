package crawl

import "errors"

var (
	// ErrCorruptState is returned when a checkpoint record exists but is malformed.
	ErrCorruptState = errors.New("corrupt checkpoint state")
	// ErrIO wraps every durable read/write failure of the store or sink.
	ErrIO = errors.New("durable io failure")
	// ErrFetch marks a navigation failure.
	ErrFetch = errors.New("fetch failed")
	// ErrExtract marks a field extraction failure on a detail page.
	ErrExtract = errors.New("extraction failed")
	// ErrPagination marks an unreadable pagination indicator.
	ErrPagination = errors.New("pagination marker unreadable")
	// ErrListing marks a listing page that did not load.
	ErrListing = errors.New("listing page unavailable")
)
