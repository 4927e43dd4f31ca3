// Package collyfetcher implements crawl.Fetcher with plain HTTP via gocolly,
// for sites whose listing and detail pages render without JavaScript.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Fetcher implements crawl.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchResult is filled by the collector callbacks.
type fetchResult struct {
	url    string
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	// Status codes are classified by the caller, not treated as errors.
	c.ParseHTTPErrorResponse = true
	// Failed detail pages are retried on later runs, possibly within one process.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Open GETs rawURL and returns its body as a static page.
func (f *Fetcher) Open(ctx context.Context, rawURL string) (crawl.Page, crawl.FetchOutcome, error) {
	var result fetchResult
	collector := f.buildCollector(&result)

	if err := f.runCollector(ctx, collector, rawURL, &result); err != nil {
		return &staticPage{url: rawURL}, crawl.FetchNetworkFailure, err
	}
	page := &staticPage{url: result.url, body: string(result.body)}
	if page.url == "" {
		page.url = rawURL
	}
	return page, crawl.ClassifyStatus(result.status), nil
}

// Close is a no-op; the collector holds no per-run resources.
func (f *Fetcher) Close() error {
	return nil
}

func (f *Fetcher) buildCollector(result *fetchResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	configureCollectorHooks(collector, result)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
		if r.Request != nil && r.Request.URL != nil {
			result.url = r.Request.URL.String()
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if result.err != nil {
			return fmt.Errorf("colly response failed: %w", result.err)
		}
		return nil
	}
}

// staticPage is an HTML snapshot.
type staticPage struct {
	url  string
	body string
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) HTML(context.Context) (string, error) { return p.body, nil }

func (p *staticPage) Close() error { return nil }

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
