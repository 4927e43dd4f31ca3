package crawl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PagePlaceholder is substituted with the page index in Config.URLTemplate.
const PagePlaceholder = "{page}"

// Config holds the process-level knobs consumed by the orchestrator.
type Config struct {
	// URLTemplate is the listing URL with PagePlaceholder where the page index goes.
	URLTemplate string
	// PageSettle is waited after a listing page loads.
	PageSettle time.Duration
	// ElementSettle is waited after a detail page loads.
	ElementSettle time.Duration
	// RequestDelay is waited after every detail fetch.
	RequestDelay time.Duration
	// MaxPages caps the pages committed in one run; 0 means no cap.
	MaxPages int
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if !strings.Contains(c.URLTemplate, PagePlaceholder) {
		return fmt.Errorf("url template %q must contain %s", c.URLTemplate, PagePlaceholder)
	}
	if c.PageSettle < 0 || c.ElementSettle < 0 || c.RequestDelay < 0 {
		return errors.New("settle and delay durations must be >= 0")
	}
	if c.MaxPages < 0 {
		return errors.New("max pages must be >= 0")
	}
	return nil
}

// PageURL renders the listing URL for a page index.
func (c Config) PageURL(page int) string {
	return strings.ReplaceAll(c.URLTemplate, PagePlaceholder, strconv.Itoa(page))
}

// Dependencies are the collaborators driven by the orchestrator.
type Dependencies struct {
	Store      CheckpointStore
	Sink       RecordSink
	Fetcher    Fetcher
	Enumerator Enumerator
	Extractor  Extractor
	Pagination PaginationReader

	// Optional.
	Reporter  Reporter
	Attention AttentionFunc
	Clock     Clock
	Sleep     Sleeper
}

// Orchestrator runs the resumable crawl. It is single-use per Run call and
// not safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
}

// New validates cfg and deps and returns an Orchestrator.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("checkpoint store is required")
	case deps.Sink == nil:
		return nil, errors.New("record sink is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Enumerator == nil, deps.Extractor == nil, deps.Pagination == nil:
		return nil, errors.New("enumerator, extractor and pagination reader are required")
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

// runState is the mutable progress of a single Run.
type runState struct {
	state          CheckpointState
	page           int
	headerPending  bool
	pagesCommitted int
	records        int
	skipped        int
	failed         int
}

type itemStatus int

const (
	itemRecorded itemStatus = iota
	itemSkipped
	itemUnlinked
	itemDeferred
	itemFatal
)

// stop is the decision taken at the end of a page.
type stop struct {
	done    bool
	outcome Outcome
	err     error
}

func halt(outcome Outcome, err error) stop {
	return stop{done: true, outcome: outcome, err: err}
}

// Run executes the crawl until pagination ends, a listing page is unavailable,
// or an unexpected failure aborts the run. The fetcher is closed on every path.
func (o *Orchestrator) Run(ctx context.Context) (res Result) {
	start := o.deps.Clock.Now()
	run := &runState{}

	defer func() {
		if err := o.deps.Fetcher.Close(); err != nil {
			o.logger.Warn("failed to close browser", zap.Error(err))
		}
		res.PagesCommitted = run.pagesCommitted
		res.Records = run.records
		res.Skipped = run.skipped
		res.Failed = run.failed
		res.LastPage = run.state.LastCompletedPage
		res.TotalProcessed = run.state.ProcessedItemURLs.Len()
		res.Elapsed = o.deps.Clock.Now().Sub(start)
		o.logSummary(res)
		o.deps.Reporter.RunFinished(res)
	}()

	state, err := o.deps.Store.Load(ctx)
	if err != nil {
		res.Outcome = OutcomeFatal
		res.Err = fmt.Errorf("load checkpoint: %w", err)
		return res
	}
	if state.ProcessedItemURLs == nil {
		state.ProcessedItemURLs = URLSet{}
	}
	if state.ProcessedDocumentURLs == nil {
		state.ProcessedDocumentURLs = URLSet{}
	}
	run.state = state
	run.page = state.LastCompletedPage + 1
	// Only a run with no committed page may truncate the output. A resumed
	// run appends, even when its checkpoint lists no item URLs.
	run.headerPending = state.Fresh()
	res.StartPage = run.page

	o.logger.Info("starting crawl",
		zap.Time("start_time", start),
		zap.Int("start_page", run.page),
		zap.Int("processed_urls", state.ProcessedItemURLs.Len()),
		zap.Int("processed_documents", state.ProcessedDocumentURLs.Len()),
	)
	if run.page > 1 {
		o.logger.Info("resuming from checkpoint", zap.Int("page", run.page))
	}
	o.deps.Reporter.RunStarted(run.page, state)

	for {
		decision := o.crawlPage(ctx, run)
		if !decision.done {
			continue
		}
		res.Outcome = decision.outcome
		res.Err = decision.err
		if decision.outcome == OutcomeFatal && ctx.Err() != nil {
			// Interruption, not a failure: the last commit is intact.
			res.Outcome = OutcomeIncomplete
			res.Err = ctx.Err()
		}
		return res
	}
}

func (o *Orchestrator) crawlPage(ctx context.Context, run *runState) stop {
	listingURL := o.cfg.PageURL(run.page)
	logger := o.logger.With(zap.Int("page", run.page))

	listing, outcome, err := o.deps.Fetcher.Open(ctx, listingURL)
	defer o.release(listing, listingURL)
	if outcome != FetchSuccess {
		logger.Warn("listing page unavailable; stopping without advancing checkpoint",
			zap.String("url", listingURL),
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
		return halt(OutcomeIncomplete, fmt.Errorf("%w: page %d (%s)", ErrListing, run.page, outcome))
	}

	if err := o.deps.Sleep(ctx, o.cfg.PageSettle); err != nil {
		return halt(OutcomeFatal, err)
	}

	items, err := o.deps.Enumerator.Items(ctx, listing)
	if err != nil {
		return halt(OutcomeFatal, fmt.Errorf("enumerate items on page %d: %w", run.page, err))
	}
	logger.Info("processing listing page", zap.String("url", listingURL), zap.Int("items", len(items)))

	var pageResult []ExtractedItem
	for idx, item := range items {
		rec, status, err := o.processItem(ctx, run, idx+1, len(items), item)
		switch status {
		case itemRecorded:
			pageResult = append(pageResult, rec)
			o.deps.Reporter.ItemRecorded(run.page, rec)
		case itemSkipped:
			run.skipped++
			o.deps.Reporter.ItemSkipped(run.page, item.Link, SkipAlreadyProcessed)
		case itemUnlinked:
			run.failed++
			o.deps.Reporter.ItemSkipped(run.page, "", SkipMissingLink)
		case itemDeferred:
			run.failed++
			o.deps.Reporter.ItemSkipped(run.page, item.Link, SkipUnavailable)
		case itemFatal:
			logger.Error("scraping interrupted",
				zap.String("position", position(idx+1, len(items))),
				zap.String("url", item.Link),
				zap.Error(err),
			)
			return halt(OutcomeFatal, err)
		}
		if status == itemRecorded || status == itemDeferred {
			if err := o.deps.Sleep(ctx, o.cfg.RequestDelay); err != nil {
				return halt(OutcomeFatal, err)
			}
		}
	}

	if err := o.commit(context.WithoutCancel(ctx), run, pageResult); err != nil {
		return halt(OutcomeFatal, err)
	}

	marker, err := o.deps.Pagination.Marker(ctx, listing)
	if err != nil {
		return halt(OutcomeFatal, fmt.Errorf("%w: page %d: %w", ErrPagination, run.page, err))
	}
	logger.Info("pagination", zap.Int("current", marker.Current), zap.Int("total", marker.Total))
	if marker.Done() {
		logger.Info("scraping completed")
		return halt(OutcomeCompleted, nil)
	}
	if o.cfg.MaxPages > 0 && run.pagesCommitted >= o.cfg.MaxPages {
		logger.Info("page cap reached", zap.Int("max_pages", o.cfg.MaxPages))
		return halt(OutcomeIncomplete, nil)
	}
	run.page++
	return stop{}
}

func (o *Orchestrator) processItem(
	ctx context.Context,
	run *runState,
	index, total int,
	item Item,
) (ExtractedItem, itemStatus, error) {
	logger := o.logger.With(
		zap.Int("page", run.page),
		zap.String("position", position(index, total)),
	)
	if item.Link != "" && (run.state.ProcessedItemURLs.Has(item.Link) || run.state.ProcessedItemURLs.Has(item.Href)) {
		logger.Info("already processed, skipping", zap.String("url", item.Link))
		return ExtractedItem{}, itemSkipped, nil
	}
	if item.Link == "" {
		logger.Warn("no url found for listing entry; needs manual attention")
		if o.deps.Attention != nil {
			o.deps.Attention(ctx, run.page, index, SkipMissingLink)
		}
		return ExtractedItem{}, itemUnlinked, nil
	}

	detail, outcome, err := o.deps.Fetcher.Open(ctx, item.Link)
	defer o.release(detail, item.Link)

	switch outcome {
	case FetchNotFound, FetchServerError:
		logger.Warn("detail page unavailable; left for a later run",
			zap.String("url", item.Link),
			zap.Stringer("outcome", outcome),
		)
		return ExtractedItem{}, itemDeferred, nil
	case FetchNetworkFailure:
		if err == nil {
			err = errors.New(outcome.String())
		}
		return ExtractedItem{}, itemFatal, fmt.Errorf("%w: %s: %w", ErrFetch, item.Link, err)
	}

	if err := o.deps.Sleep(ctx, o.cfg.ElementSettle); err != nil {
		return ExtractedItem{}, itemFatal, err
	}

	fields, err := o.deps.Extractor.Extract(ctx, detail)
	if err != nil {
		return ExtractedItem{}, itemFatal, fmt.Errorf("%w: %s: %w", ErrExtract, pageURL(detail, item.Link), err)
	}

	rec := ExtractedItem{
		Title:       fields.Title,
		Date:        fields.Date,
		DocumentURL: fields.DocumentURL,
		ItemURL:     item.Link,
	}
	if rec.DocumentURL == "" {
		logger.Warn("no document url found, using item url", zap.String("url", item.Link))
		rec.DocumentURL = item.Link
		rec.Fallback = true
	} else if !run.state.ProcessedDocumentURLs.Add(rec.DocumentURL) {
		logger.Info("document already recorded for another item", zap.String("document_url", rec.DocumentURL))
	}
	run.state.ProcessedItemURLs.Add(item.Link)

	logger.Info("item recorded", zap.Strings("row", rec.Row()))
	return rec, itemRecorded, nil
}

// commit writes the page's rows and then advances the checkpoint. The order
// matters: a crash in between re-runs the page, and the item-URL check drops
// anything already written.
func (o *Orchestrator) commit(ctx context.Context, run *runState, pageResult []ExtractedItem) error {
	if len(pageResult) > 0 {
		if run.headerPending {
			if err := o.deps.Sink.InitHeader(ctx, HeaderRows()); err != nil {
				return fmt.Errorf("init output header: %w", err)
			}
			run.headerPending = false
		}
		rows := make([][]string, 0, len(pageResult))
		for _, rec := range pageResult {
			rows = append(rows, rec.Row())
		}
		if err := o.deps.Sink.Append(ctx, rows); err != nil {
			return fmt.Errorf("append page %d rows: %w", run.page, err)
		}
		run.records += len(rows)
		o.logger.Info("saved page records", zap.Int("page", run.page), zap.Int("records", len(rows)))
	}

	err := o.deps.Store.Save(
		ctx,
		run.page,
		run.state.ProcessedItemURLs.Sorted(),
		run.state.ProcessedDocumentURLs.Sorted(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint for page %d: %w", run.page, err)
	}
	run.state.LastCompletedPage = run.page
	run.pagesCommitted++
	o.deps.Reporter.PageCommitted(run.page, len(pageResult))
	return nil
}

func (o *Orchestrator) release(page Page, rawURL string) {
	if page == nil {
		return
	}
	if err := page.Close(); err != nil {
		o.logger.Debug("failed to close page", zap.String("url", rawURL), zap.Error(err))
	}
}

func (o *Orchestrator) logSummary(res Result) {
	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.Int("records_extracted", res.Records),
		zap.Int("total_processed", res.TotalProcessed),
		zap.Int("pages_committed", res.PagesCommitted),
		zap.Int("last_page", res.LastPage),
		zap.Duration("runtime", res.Elapsed),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	if res.Outcome == OutcomeFatal {
		o.logger.Error("crawl stopped", fields...)
		return
	}
	o.logger.Info("crawl stopped", fields...)
}

func position(index, total int) string {
	return fmt.Sprintf("%d/%d", index, total)
}

func pageURL(p Page, fallback string) string {
	if p == nil || p.URL() == "" {
		return fallback
	}
	return p.URL()
}

// SleepContext waits for d or returns early with ctx's error.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type nopReporter struct{}

func (nopReporter) RunStarted(int, CheckpointState) {}
func (nopReporter) PageCommitted(int, int)          {}
func (nopReporter) ItemRecorded(int, ExtractedItem) {}
func (nopReporter) ItemSkipped(int, string, string) {}
func (nopReporter) RunFinished(Result)              {}
