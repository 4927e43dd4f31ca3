package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/paginated-scraper/internal/progress"
)

// RunStatus is a point-in-time view of the current or most recent run.
type RunStatus struct {
	RunID          uuid.UUID `json:"run_id"`
	Running        bool      `json:"running"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	StartPage      int       `json:"start_page"`
	LastPage       int       `json:"last_page"`
	PagesCommitted int       `json:"pages_committed"`
	Records        int       `json:"records"`
	Fallbacks      int       `json:"fallbacks"`
	Skipped        int       `json:"skipped"`
	Outcome        string    `json:"outcome,omitempty"`
	Error          string    `json:"error,omitempty"`
	DurationSec    float64   `json:"duration_seconds,omitempty"`
}

// StatusSink folds progress events into a RunStatus snapshot.
type StatusSink struct {
	mu     sync.RWMutex
	status RunStatus
	seen   bool
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{}
}

// Consume applies each event to the snapshot. A RUN_START for a new run
// resets it.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.Stage == progress.StageRunStart {
			s.status = RunStatus{
				RunID:     evt.RunID,
				Running:   true,
				StartedAt: evt.TS,
				StartPage: evt.Page,
			}
			s.seen = true
		} else if !s.seen || evt.RunID != s.status.RunID {
			continue
		}
		s.status.UpdatedAt = evt.TS
		switch evt.Stage {
		case progress.StagePageDone:
			s.status.PagesCommitted++
			s.status.LastPage = evt.Page
		case progress.StageItemDone:
			s.status.Records++
			if evt.Fallback {
				s.status.Fallbacks++
			}
		case progress.StageItemSkipped:
			s.status.Skipped++
		case progress.StageRunDone, progress.StageRunError:
			s.status.Running = false
			s.status.Outcome = evt.Outcome
			s.status.DurationSec = evt.Dur.Seconds()
			s.status.Error = evt.Note
		}
	}
	return nil
}

// Snapshot returns the latest status and whether any run has been seen.
func (s *StatusSink) Snapshot() (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.seen
}

// Close implements progress.Sink.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
