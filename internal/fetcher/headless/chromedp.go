// Package headless opens pages in a Chrome browser driven by chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

const defaultNavigationTimeout = 45 * time.Second

// Config controls the browser.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath overrides the Chrome binary location.
	ExecPath string
	// Filter resolves sub-resource requests; nil disables interception.
	Filter Filter
}

// Fetcher implements crawl.Fetcher with one browser per run and one tab per page.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger

	allocCancel context.CancelFunc

	startOnce     sync.Once
	startErr      error
	browser       context.Context
	browserCancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewChromedp prepares the browser allocator. Chrome is launched lazily on
// the first Open.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("navigation timeout must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Fetcher{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down. Later calls return the first result.
func (f *Fetcher) Close() error {
	f.closeOnce.Do(func() {
		err := chromedp.Cancel(f.browser)
		f.browserCancel()
		f.allocCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			f.closeErr = fmt.Errorf("close browser: %w", err)
		}
	})
	return f.closeErr
}

func (f *Fetcher) start() error {
	f.startOnce.Do(func() {
		if err := chromedp.Run(f.browser); err != nil {
			f.startErr = fmt.Errorf("launch browser: %w", err)
		}
	})
	return f.startErr
}

// Open navigates a new tab to rawURL and classifies the document response.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (crawl.Page, crawl.FetchOutcome, error) {
	if err := f.start(); err != nil {
		return closedPage(rawURL), crawl.FetchNetworkFailure, err
	}

	// Each tab gets its own browser context, disposed when the tab closes, so
	// cookies, storage and cache never carry between navigations.
	tabCtx, tabCancel := chromedp.NewContext(f.browser, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)
	page := &tabPage{url: rawURL, ctx: tabCtx, cancel: tabCancel, stop: stop, timeout: f.navTimeout()}

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	actions := []chromedp.Action{f.networkSetupAction()}
	var icpt *interceptor
	if f.cfg.Filter != nil {
		icpt = newInterceptor(f.cfg.Filter, f.logger)
		icpt.listen(tabCtx)
		actions = append(actions, icpt.enable())
	}
	var finalURL string
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	navCtx, navCancel := context.WithTimeout(tabCtx, f.navTimeout())
	err := chromedp.Run(navCtx, actions...)
	navCancel()

	status, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	page.url = responseURL
	if icpt != nil && icpt.Blocked() > 0 {
		f.logger.Debug("blocked requests", zap.String("url", rawURL), zap.Int64("count", icpt.Blocked()))
	}
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return page, crawl.FetchNetworkFailure, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	return page, crawl.ClassifyStatus(status), nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// tabPage is one browser tab.
type tabPage struct {
	url     string
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func() bool
	timeout time.Duration
	once    sync.Once
}

func (p *tabPage) URL() string { return p.url }

// HTML returns the rendered document.
func (p *tabPage) HTML(ctx context.Context) (string, error) {
	if p.ctx == nil {
		return "", fmt.Errorf("page %s is closed", p.url)
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

// Close closes the tab. Calling it more than once is a no-op.
func (p *tabPage) Close() error {
	var err error
	p.once.Do(func() {
		if p.stop != nil {
			p.stop()
		}
		if p.ctx != nil {
			if cerr := chromedp.Cancel(p.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
				err = fmt.Errorf("close tab: %w", cerr)
			}
		}
		if p.cancel != nil {
			p.cancel()
		}
	})
	return err
}

// closedPage is returned when no tab could be created.
func closedPage(rawURL string) *tabPage {
	return &tabPage{url: rawURL}
}

// responseMeta records the first document response of a tab.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Later document responses belong to iframes.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
