// Package extract implements the site strategy: listing enumeration, detail
// field extraction and pagination reading driven by CSS selectors.
package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
)

// Selectors configures where each field lives in the page markup.
type Selectors struct {
	// Items matches one element per listing entry.
	Items string `mapstructure:"items"`
	// ItemLink optionally narrows to the link element inside an entry; empty
	// means the entry element carries the link itself.
	ItemLink string `mapstructure:"item_link"`
	// LinkAttr is the attribute holding the detail URL. Defaults to href.
	LinkAttr string `mapstructure:"link_attr"`
	// Title is required on every detail page.
	Title string `mapstructure:"title"`
	// Date is optional; a missing date yields an empty field.
	Date string `mapstructure:"date"`
	// Document matches the document link; a missing one triggers the fallback row.
	Document string `mapstructure:"document"`
	// DocumentAttr is the attribute holding the document URL. Defaults to href.
	DocumentAttr string `mapstructure:"document_attr"`
	// Pagination matches the "current / total" indicator on listing pages.
	Pagination string `mapstructure:"pagination"`
}

// Validate checks required selectors and their syntax.
func (s Selectors) Validate() error {
	var errs []error
	required := map[string]string{
		"selectors.items":      s.Items,
		"selectors.title":      s.Title,
		"selectors.pagination": s.Pagination,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	for key, value := range map[string]string{
		"selectors.items":      s.Items,
		"selectors.item_link":  s.ItemLink,
		"selectors.title":      s.Title,
		"selectors.date":       s.Date,
		"selectors.document":   s.Document,
		"selectors.pagination": s.Pagination,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := cascadia.Compile(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid selector %q: %w", key, value, err))
		}
	}
	return errors.Join(errs...)
}

// ErrNoPagination is returned when the indicator is missing or unparsable.
var ErrNoPagination = errors.New("pagination indicator not found")

var numberPattern = regexp.MustCompile(`\d+`)

// Strategy implements crawl.Enumerator, crawl.Extractor and crawl.PaginationReader.
type Strategy struct {
	sel    Selectors
	logger *zap.Logger
}

// New validates sel and returns a Strategy.
func New(sel Selectors, logger *zap.Logger) (*Strategy, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.LinkAttr == "" {
		sel.LinkAttr = "href"
	}
	if sel.DocumentAttr == "" {
		sel.DocumentAttr = "href"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{sel: sel, logger: logger}, nil
}

// Items lists the entries of a listing page in document order.
func (s *Strategy) Items(ctx context.Context, page crawl.Page) ([]crawl.Item, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return nil, err
	}
	var items []crawl.Item
	doc.Find(s.sel.Items).Each(func(_ int, entry *goquery.Selection) {
		linkEl := entry
		if s.sel.ItemLink != "" {
			linkEl = entry.Find(s.sel.ItemLink).First()
		}
		href, _ := linkEl.Attr(s.sel.LinkAttr)
		link, err := ResolveURL(page.URL(), href)
		if err != nil {
			s.logger.Warn("unparsable item link", zap.String("href", href), zap.Error(err))
			link = ""
		}
		items = append(items, crawl.Item{Link: link, Href: strings.TrimSpace(href)})
	})
	return items, nil
}

// Extract reads title, date and document URL from a detail page.
func (s *Strategy) Extract(ctx context.Context, page crawl.Page) (crawl.Fields, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return crawl.Fields{}, err
	}
	title := text(doc.Find(s.sel.Title).First())
	if title == "" {
		return crawl.Fields{}, fmt.Errorf("title %q not found", s.sel.Title)
	}
	fields := crawl.Fields{Title: title}
	if s.sel.Date != "" {
		fields.Date = text(doc.Find(s.sel.Date).First())
	}
	if s.sel.Document != "" {
		href, _ := doc.Find(s.sel.Document).First().Attr(s.sel.DocumentAttr)
		docURL, err := ResolveURL(page.URL(), href)
		if err != nil {
			return crawl.Fields{}, fmt.Errorf("document link: %w", err)
		}
		fields.DocumentURL = docURL
	}
	return fields, nil
}

// Marker reads the pagination indicator.
func (s *Strategy) Marker(ctx context.Context, page crawl.Page) (crawl.PaginationMarker, error) {
	doc, err := document(ctx, page)
	if err != nil {
		return crawl.PaginationMarker{}, err
	}
	return ParseMarker(text(doc.Find(s.sel.Pagination).First()))
}

// ParseMarker reads the first two integers of an indicator such as "3 / 10"
// or "Page 3 of 10".
func ParseMarker(raw string) (crawl.PaginationMarker, error) {
	nums := numberPattern.FindAllString(raw, 2)
	if len(nums) < 2 {
		return crawl.PaginationMarker{}, fmt.Errorf("%w: %q", ErrNoPagination, raw)
	}
	current, err := strconv.Atoi(nums[0])
	if err != nil {
		return crawl.PaginationMarker{}, fmt.Errorf("%w: current %q: %w", ErrNoPagination, nums[0], err)
	}
	total, err := strconv.Atoi(nums[1])
	if err != nil {
		return crawl.PaginationMarker{}, fmt.Errorf("%w: total %q: %w", ErrNoPagination, nums[1], err)
	}
	if current < 1 || total < 1 {
		return crawl.PaginationMarker{}, fmt.Errorf("%w: %q", ErrNoPagination, raw)
	}
	return crawl.PaginationMarker{Current: current, Total: total}, nil
}

func document(ctx context.Context, page crawl.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
