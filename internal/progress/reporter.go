package progress

import (
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

// Reporter adapts an Emitter to crawl.Reporter.
type Reporter struct {
	runID   uuid.UUID
	emitter Emitter
	now     func() time.Time
}

// NewReporter stamps every event with runID. A nil now uses UTC wall time.
func NewReporter(runID uuid.UUID, emitter Emitter, now func() time.Time) *Reporter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reporter{runID: runID, emitter: emitter, now: now}
}

// RunID returns the identifier stamped on events.
func (r *Reporter) RunID() uuid.UUID {
	return r.runID
}

func (r *Reporter) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.TS = r.now()
	r.emitter.Emit(evt)
}

// RunStarted implements crawl.Reporter.
func (r *Reporter) RunStarted(startPage int, state crawl.CheckpointState) {
	r.emit(Event{
		Stage:   StageRunStart,
		Page:    startPage,
		Records: state.ProcessedItemURLs.Len(),
	})
}

// PageCommitted implements crawl.Reporter.
func (r *Reporter) PageCommitted(page int, records int) {
	r.emit(Event{Stage: StagePageDone, Page: page, Records: records})
}

// ItemRecorded implements crawl.Reporter.
func (r *Reporter) ItemRecorded(page int, item crawl.ExtractedItem) {
	r.emit(Event{Stage: StageItemDone, Page: page, URL: item.ItemURL, Fallback: item.Fallback})
}

// ItemSkipped implements crawl.Reporter.
func (r *Reporter) ItemSkipped(page int, url string, reason string) {
	r.emit(Event{Stage: StageItemSkipped, Page: page, URL: url, Note: reason})
}

// RunFinished implements crawl.Reporter.
func (r *Reporter) RunFinished(result crawl.Result) {
	evt := Event{
		Stage:   StageRunDone,
		Page:    result.LastPage,
		Records: result.Records,
		Outcome: string(result.Outcome),
		Dur:     result.Elapsed,
	}
	if result.Outcome == crawl.OutcomeFatal {
		evt.Stage = StageRunError
	}
	if result.Err != nil {
		evt.Note = result.Err.Error()
	}
	r.emit(evt)
}
