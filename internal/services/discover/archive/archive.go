// Package archive discovers articles from a dated newspaper archive by
// walking its per-day pages and following pagination links
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	perr "muckrake/internal/platform/errors"
	"muckrake/internal/platform/logger"
	ptime "muckrake/internal/platform/time"
	"muckrake/internal/services/discover/domain"
)

// Section assigned to every archive page item
const Section = "archive"

// pageDateRx pulls the date segment out of an archive page URL
var pageDateRx = regexp.MustCompile(`/(\d{4}-\d{2}-\d{2})/`)

// Config configures the archive discoverer
type Config struct {
	// BaseURL is the archive root, without trailing slash
	BaseURL string

	// Publication is the path segment under BaseURL
	Publication string

	// Timeout per HTTP request, defaults to 30s
	Timeout time.Duration

	// MaxAttempts per page fetch, defaults to 3
	MaxAttempts int

	// RetryBase is the first backoff step, defaults to 2s
	RetryBase time.Duration

	// CrawlDelay is the pause before each follow-up page request, defaults to 2s
	CrawlDelay time.Duration

	// Client overrides the HTTP client, mostly for tests
	Client *http.Client
}

func (c *Config) defaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.CrawlDelay <= 0 {
		c.CrawlDelay = 2 * time.Second
	}
}

// Discoverer implements domain.Discoverer over a dated page archive.
// Each archive PAGE becomes one item; a date with six pages yields six.
type Discoverer struct {
	cfg        Config
	client     *http.Client
	start, end time.Time // inclusive, midnight UTC
	now        func() time.Time
}

// sentinel for redirected date URLs, the archive redirects to the
// publication root when a date has no edition
var errRedirected = errors.New("archive: redirected")

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string { return fmt.Sprintf("archive: %s returned %d", e.url, e.code) }

// NewRange builds a discoverer covering every day from start through end
// inclusive. Times are truncated to midnight UTC.
func NewRange(cfg Config, start, end time.Time) (*Discoverer, error) {
	if cfg.BaseURL == "" || cfg.Publication == "" {
		return nil, perr.Validationf("archive: base url and publication are required")
	}
	start, end = midnightUTC(start), midnightUTC(end)
	if end.Before(start) {
		return nil, perr.Validationf("archive: end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	cfg.defaults()
	cl := cfg.Client
	if cl == nil {
		cl = &http.Client{Timeout: cfg.Timeout}
	}
	return &Discoverer{cfg: cfg, client: cl, start: start, end: end, now: time.Now}, nil
}

// ForDate builds a discoverer for a single calendar day
func ForDate(cfg Config, year, month, day int) (*Discoverer, error) {
	if err := validateYearMonth(year, month); err != nil {
		return nil, err
	}
	if day < 1 || day > 31 {
		return nil, perr.Validationf("invalid day: %d (must be between 1-31)", day)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow, so Feb 30 rolls into March
	if d.Day() != day || d.Month() != time.Month(month) {
		return nil, perr.Validationf("invalid date: %04d-%02d-%02d", year, month, day)
	}
	return NewRange(cfg, d, d)
}

// ForMonth builds a discoverer spanning a whole calendar month
func ForMonth(cfg Config, year, month int) (*Discoverer, error) {
	if err := validateYearMonth(year, month); err != nil {
		return nil, err
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return NewRange(cfg, first, last)
}

func validateYearMonth(year, month int) error {
	if year < 1900 || year > 3000 {
		return perr.Validationf("invalid year: %d (must be between 1900-3000)", year)
	}
	if month < 1 || month > 12 {
		return perr.Validationf("invalid month: %d (must be between 1-12)", month)
	}
	return nil
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Discover walks every date in the range and returns the union of their
// pages, deduplicated by URL. A date that keeps failing is logged and
// skipped; the remaining dates still contribute.
func (d *Discoverer) Discover(ctx context.Context, sourceID int64) ([]domain.Item, error) {
	if sourceID <= 0 {
		return nil, perr.Validationf("invalid source id %d", sourceID)
	}
	log := logger.C(ctx)
	log.Info().
		Str("publication", d.cfg.Publication).
		Str("start", d.start.Format("2006-01-02")).
		Str("end", d.end.Format("2006-01-02")).
		Msg("archive discovery started")

	var all []domain.Item
	for day := d.start; !day.After(d.end); day = day.AddDate(0, 0, 1) {
		items, err := d.discoverDate(ctx, day, sourceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("date", day.Format("2006-01-02")).Msg("date failed, continuing")
			continue
		}
		log.Info().Str("date", day.Format("2006-01-02")).Int("pages", len(items)).Msg("date processed")
		all = append(all, items...)
	}
	return domain.DedupeByURL(all), nil
}

// discoverDate walks the pagination chain for one day. The base date URL
// is tried first; a redirect means the date has no edition and is skipped,
// a 404 falls back to the explicit /page-1/ form.
func (d *Discoverer) discoverDate(ctx context.Context, day time.Time, sourceID int64) ([]domain.Item, error) {
	log := logger.C(ctx)

	pageURL := d.dateURL(day, 0)
	html, err := d.fetchWithRetry(ctx, pageURL)
	if errors.Is(err, errRedirected) {
		log.Info().Str("date", day.Format("2006-01-02")).Msg("date absent from archive, skipping")
		return nil, nil
	}
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		pageURL = d.dateURL(day, 1)
		html, err = d.fetchWithRetry(ctx, pageURL)
	}
	if err != nil {
		return nil, err
	}

	var items []domain.Item
	for {
		doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html))
		if derr != nil {
			return items, perr.Parsef("parse archive page %s: %v", pageURL, derr)
		}
		items = append(items, d.itemFromPage(pageURL, doc, sourceID))

		next := nextPageURL(doc, pageURL)
		if next == "" {
			break
		}
		if err := sleepCtx(ctx, d.cfg.CrawlDelay); err != nil {
			return items, err
		}
		html, err = d.fetchWithRetry(ctx, next)
		if err != nil {
			return items, err
		}
		pageURL = next
	}
	return items, nil
}

func (d *Discoverer) dateURL(day time.Time, page int) string {
	base := fmt.Sprintf("%s/%s/%s/", d.cfg.BaseURL, d.cfg.Publication, day.Format("2006-01-02"))
	if page > 0 {
		return fmt.Sprintf("%spage-%d/", base, page)
	}
	return base
}

// itemFromPage builds an item for one archive page. The page URL itself is
// the article URL, the title comes from og:title falling back to <title>,
// and the published date is read back out of the URL.
func (d *Discoverer) itemFromPage(pageURL string, doc *goquery.Document, sourceID int64) domain.Item {
	it := domain.Item{
		URL:          pageURL,
		SourceID:     sourceID,
		Section:      Section,
		DiscoveredAt: d.now().UTC(),
		Title:        pageTitle(doc),
	}
	if m := pageDateRx.FindStringSubmatch(pageURL); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			it.PublishedAt = ptime.Ptr(t.UTC())
		}
	}
	return it
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func nextPageURL(doc *goquery.Document, cur string) string {
	href, ok := doc.Find(`link[rel="next"]`).Attr("href")
	if !ok || href == "" {
		return ""
	}
	base, err := url.Parse(cur)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// fetchWithRetry fetches a page, retrying HTTP and network failures with
// exponential backoff. Redirects are never retried, they mean the date is
// not in the archive.
func (d *Discoverer) fetchWithRetry(ctx context.Context, pageURL string) (string, error) {
	var last error
	for i := range d.cfg.MaxAttempts {
		html, err := d.fetchOnce(ctx, pageURL)
		if err == nil {
			return html, nil
		}
		if errors.Is(err, errRedirected) {
			return "", err
		}
		last = err
		if i == d.cfg.MaxAttempts-1 {
			break
		}
		w := min(d.cfg.RetryBase<<i, 30*time.Second)
		j := w/2 + time.Duration(rand.Int63n(int64(w/2)))
		if se := sleepCtx(ctx, j); se != nil {
			return "", se
		}
	}
	return "", last
}

func (d *Discoverer) fetchOnce(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", perr.Networkf("build request %s: %v", pageURL, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", perr.Networkf("fetch %s: %v", pageURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if final := resp.Request.URL.String(); final != pageURL {
		return "", fmt.Errorf("%w: %s -> %s", errRedirected, pageURL, final)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, url: pageURL}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perr.Networkf("read %s: %v", pageURL, err)
	}
	return string(b), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
