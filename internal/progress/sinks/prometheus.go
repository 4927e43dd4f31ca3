package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
	"github.com/JakeFAU/paginated-scraper/internal/progress"
)

// PrometheusSink exports run progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	pages         prometheus.Counter
	lastPage      prometheus.Gauge
	records       *prometheus.CounterVec
	itemsSkipped  *prometheus.CounterVec
	runInProgress prometheus.Gauge
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_runs_started_total",
			Help: "Total crawl runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_finished_total",
			Help: "Total crawl runs finished partitioned by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_run_duration_seconds",
			Help:    "Wall time per crawl run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"outcome"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_pages_committed_total",
			Help: "Listing pages committed to the checkpoint.",
		}),
		lastPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_last_committed_page",
			Help: "Most recent listing page committed.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Rows written partitioned by kind (document or fallback).",
		}, []string{"kind"}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_skipped_total",
			Help: "Listing entries skipped partitioned by reason.",
		}, []string{"reason"}),
		runInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_run_in_progress",
			Help: "1 while a crawl run is active.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runDuration,
		s.pages,
		s.lastPage,
		s.records,
		s.itemsSkipped,
		s.runInProgress,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.runInProgress.Set(1)
		case progress.StagePageDone:
			s.pages.Inc()
			s.lastPage.Set(float64(evt.Page))
		case progress.StageItemDone:
			kind := "document"
			if evt.Fallback {
				kind = "fallback"
			}
			s.records.WithLabelValues(kind).Inc()
		case progress.StageItemSkipped:
			s.itemsSkipped.WithLabelValues(skipReason(evt.Note)).Inc()
		case progress.StageRunDone, progress.StageRunError:
			s.runsFinished.WithLabelValues(evt.Outcome).Inc()
			s.runDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
			s.runInProgress.Set(0)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// skipReason bounds label cardinality to the reasons the orchestrator emits.
func skipReason(note string) string {
	switch note {
	case crawl.SkipAlreadyProcessed, crawl.SkipMissingLink, crawl.SkipUnavailable:
		return note
	default:
		return "other"
	}
}
