package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

func htmlResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestOpenClassifiesStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   crawl.FetchOutcome
	}{
		{status: http.StatusOK, want: crawl.FetchSuccess},
		{status: http.StatusNotFound, want: crawl.FetchNotFound},
		{status: http.StatusInternalServerError, want: crawl.FetchServerError},
		{status: http.StatusBadGateway, want: crawl.FetchServerError},
		{status: http.StatusForbidden, want: crawl.FetchSuccess},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://example.test/list?page=1",
				htmlResponder(tc.status, "<html><body>listing</body></html>"))

			f := New(Config{Transport: transport, Timeout: time.Second})
			page, outcome, err := f.Open(context.Background(), "http://example.test/list?page=1")
			require.NoError(t, err)
			require.NotNil(t, page)
			assert.Equal(t, tc.want, outcome)
			assert.Equal(t, "http://example.test/list?page=1", page.URL())
			require.NoError(t, page.Close())
		})
	}
}

func TestOpenReturnsBody(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/item/1",
		htmlResponder(http.StatusOK, `<html><body><h1>Title</h1></body></html>`))

	f := New(Config{Transport: transport, UserAgent: "scraper-test"})
	page, outcome, err := f.Open(context.Background(), "http://example.test/item/1")
	require.NoError(t, err)
	require.Equal(t, crawl.FetchSuccess, outcome)

	html, err := page.HTML(context.Background())
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")

	// Revisiting the same URL must hit the network again.
	_, _, err = f.Open(context.Background(), "http://example.test/item/1")
	require.NoError(t, err)
	assert.Equal(t, 2, transport.GetTotalCallCount())
	require.NoError(t, f.Close())
}

func TestOpenNetworkFailure(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/down",
		httpmock.NewErrorResponder(errors.New("connection reset by peer")))

	f := New(Config{Transport: transport})
	page, outcome, err := f.Open(context.Background(), "http://example.test/down")
	require.Error(t, err)
	require.NotNil(t, page)
	assert.Equal(t, crawl.FetchNetworkFailure, outcome)
	assert.Equal(t, "http://example.test/down", page.URL())
}

func TestOpenCanceledContext(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	transport.RegisterResponder("GET", "http://example.test/slow", func(*http.Request) (*http.Response, error) {
		<-release
		return httpmock.NewStringResponse(http.StatusOK, ""), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Transport: transport})
	_, outcome, err := f.Open(ctx, "http://example.test/slow")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, crawl.FetchNetworkFailure, outcome)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var result fetchResult
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, &result)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	assert.Equal(t, http.StatusCreated, result.status)
	assert.Equal(t, "body", string(result.body))
	assert.Equal(t, "https://example.com/final", result.url)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, result.err, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
