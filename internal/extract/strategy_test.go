package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

type htmlPage struct {
	url  string
	html string
	err  error
}

func (p htmlPage) URL() string { return p.url }

func (p htmlPage) HTML(context.Context) (string, error) { return p.html, p.err }

func (p htmlPage) Close() error { return nil }

const listingHTML = `<html><body>
<table class="results">
  <tr class="row"><td><a class="detail" href="/docs/1">First</a></td></tr>
  <tr class="row"><td><a class="detail" href="https://Example.com:443/docs/2#top">Second</a></td></tr>
  <tr class="row"><td>No link here</td></tr>
  <tr class="row"><td><a class="detail" href="docs/3?b=2&a=1">Third</a></td></tr>
</table>
<div class="pager"> Página 3 / 10 </div>
</body></html>`

const detailHTML = `<html><body>
<h1 class="title">
   Annual   report
</h1>
<span class="date">2024-01-01</span>
<a class="download" href="../files/report.pdf">Download</a>
</body></html>`

func testSelectors() Selectors {
	return Selectors{
		Items:      "tr.row",
		ItemLink:   "a.detail",
		Title:      "h1.title",
		Date:       "span.date",
		Document:   "a.download",
		Pagination: "div.pager",
	}
}

func TestItemsResolvesLinksInOrder(t *testing.T) {
	t.Parallel()

	s, err := New(testSelectors(), nil)
	require.NoError(t, err)

	items, err := s.Items(context.Background(), htmlPage{url: "https://example.com/list/?page=3", html: listingHTML})
	require.NoError(t, err)
	assert.Equal(t, []crawl.Item{
		{Link: "https://example.com/docs/1", Href: "/docs/1"},
		{Link: "https://example.com/docs/2", Href: "https://Example.com:443/docs/2#top"},
		{Link: ""},
		{Link: "https://example.com/list/docs/3?b=2&a=1", Href: "docs/3?b=2&a=1"},
	}, items)
}

func TestItemsOnAnchorsDirectly(t *testing.T) {
	t.Parallel()

	sel := testSelectors()
	sel.Items = "a.detail"
	sel.ItemLink = ""
	s, err := New(sel, nil)
	require.NoError(t, err)

	items, err := s.Items(context.Background(), htmlPage{url: "https://example.com/", html: listingHTML})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestExtractFields(t *testing.T) {
	t.Parallel()

	s, err := New(testSelectors(), nil)
	require.NoError(t, err)

	fields, err := s.Extract(context.Background(), htmlPage{url: "https://example.com/docs/1/", html: detailHTML})
	require.NoError(t, err)
	assert.Equal(t, crawl.Fields{
		Title:       "Annual report",
		Date:        "2024-01-01",
		DocumentURL: "https://example.com/docs/files/report.pdf",
	}, fields)
}

func TestExtractMissingDocumentAndDate(t *testing.T) {
	t.Parallel()

	s, err := New(testSelectors(), nil)
	require.NoError(t, err)

	fields, err := s.Extract(context.Background(), htmlPage{
		url:  "https://example.com/docs/9",
		html: `<h1 class="title">Foo</h1><a class="download" href="#">n/a</a>`,
	})
	require.NoError(t, err)
	assert.Equal(t, crawl.Fields{Title: "Foo"}, fields)
}

func TestExtractMissingTitleFails(t *testing.T) {
	t.Parallel()

	s, err := New(testSelectors(), nil)
	require.NoError(t, err)

	_, err = s.Extract(context.Background(), htmlPage{url: "https://example.com/x", html: `<p>nothing</p>`})
	require.Error(t, err)
}

func TestPageReadErrorPropagates(t *testing.T) {
	t.Parallel()

	s, err := New(testSelectors(), nil)
	require.NoError(t, err)
	boom := errors.New("tab crashed")

	_, err = s.Items(context.Background(), htmlPage{err: boom})
	require.ErrorIs(t, err, boom)
	_, err = s.Marker(context.Background(), htmlPage{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestMarker(t *testing.T) {
	t.Parallel()

	s, err := New(testSelectors(), nil)
	require.NoError(t, err)

	marker, err := s.Marker(context.Background(), htmlPage{url: "https://example.com", html: listingHTML})
	require.NoError(t, err)
	assert.Equal(t, crawl.PaginationMarker{Current: 3, Total: 10}, marker)
	assert.False(t, marker.Done())

	_, err = s.Marker(context.Background(), htmlPage{url: "https://example.com", html: `<p>no pager</p>`})
	require.ErrorIs(t, err, ErrNoPagination)
}

func TestParseMarker(t *testing.T) {
	t.Parallel()

	cases := map[string]crawl.PaginationMarker{
		"3 / 10":        {Current: 3, Total: 10},
		"Page 3 of 10":  {Current: 3, Total: 10},
		"10/10":         {Current: 10, Total: 10},
		"página 7 de 7": {Current: 7, Total: 7},
	}
	for raw, want := range cases {
		got, err := ParseMarker(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "page 3", "0 / 10", "next"} {
		_, err := ParseMarker(raw)
		require.ErrorIs(t, err, ErrNoPagination, raw)
	}
}

func TestSelectorsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, testSelectors().Validate())

	err := Selectors{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selectors.items is required")
	assert.Contains(t, err.Error(), "selectors.title is required")
	assert.Contains(t, err.Error(), "selectors.pagination is required")

	bad := testSelectors()
	bad.Date = "span[["
	require.Error(t, bad.Validate())
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base, href, want string
	}{
		{"https://example.com/a/b", "c", "https://example.com/a/c"},
		{"https://example.com/a/b", "/c", "https://example.com/c"},
		{"https://example.com/a/b", "HTTP://Other.COM:80/x#frag", "http://other.com/x"},
		{"https://example.com/a/b", "", ""},
		{"https://example.com/a/b", "#section", ""},
		{"https://example.com/a/b", "javascript:void(0)", ""},
		{"", "https://example.com/z", "https://example.com/z"},
	}
	for _, tc := range cases {
		got, err := ResolveURL(tc.base, tc.href)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.href)
	}

	_, err := ResolveURL("https://example.com", "http://[::1")
	require.Error(t, err)
}
