// Package progress defines the events a crawl run reports.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StagePageDone    Stage = "PAGE_DONE"
	StageItemDone    Stage = "ITEM_DONE"
	StageItemSkipped Stage = "ITEM_SKIPPED"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
)

// Event captures one step of a crawl run.
type Event struct {
	// RunID identifies the process run (UUID v7, time ordered).
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Page is the listing page index the event belongs to.
	Page int
	// URL is the item or document URL for item events.
	URL string
	// Records counts rows written for PAGE_DONE and RUN_* events.
	Records int
	// Fallback marks an ITEM_DONE whose row used the item URL.
	Fallback bool
	// Outcome is the terminal outcome for RUN_DONE and RUN_ERROR.
	Outcome string
	// Dur is the run duration for terminal events.
	Dur time.Duration
	// Note carries low-volume context such as a skip reason or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
	case StagePageDone, StageItemDone, StageItemSkipped:
		if e.Page < 1 {
			return fmt.Errorf("%s requires page >= 1", e.Stage)
		}
	case StageRunDone, StageRunError:
		if e.Outcome == "" {
			return fmt.Errorf("%s requires outcome", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
