// Package feed discovers articles from configured RSS and Atom feeds
package feed

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	perr "muckrake/internal/platform/errors"
	"muckrake/internal/platform/logger"
	ptime "muckrake/internal/platform/time"
	"muckrake/internal/services/discover/domain"
)

// Config configures the feed discoverer
type Config struct {
	// Feeds lists the sources to poll, in priority order. When the same
	// URL appears in several feeds the earliest feed keeps it.
	Feeds []domain.FeedSource

	// Timeout per HTTP request, defaults to 30s
	Timeout time.Duration

	// MaxAttempts per feed fetch, defaults to 3
	MaxAttempts int

	// RetryBase is the first backoff step, defaults to 2s
	RetryBase time.Duration

	// CrawlDelay is the pause between consecutive feeds, defaults to 2s
	CrawlDelay time.Duration

	// Client overrides the HTTP client, mostly for tests
	Client *http.Client
}

// Discoverer implements domain.Discoverer over RSS/Atom feeds
type Discoverer struct {
	cfg    Config
	client *http.Client
	parser *gofeed.Parser
	now    func() time.Time
}

// New builds a feed discoverer and panics when no feeds are configured
func New(cfg Config) *Discoverer {
	if len(cfg.Feeds) == 0 {
		panic("feed: at least one feed is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.CrawlDelay <= 0 {
		cfg.CrawlDelay = 2 * time.Second
	}
	cl := cfg.Client
	if cl == nil {
		cl = &http.Client{Timeout: cfg.Timeout}
	}
	return &Discoverer{cfg: cfg, client: cl, parser: gofeed.NewParser(), now: time.Now}
}

// Discover polls every configured feed and returns the union of their items,
// deduplicated by URL. A feed that keeps failing after retries is logged and
// skipped; the remaining feeds still contribute.
func (d *Discoverer) Discover(ctx context.Context, sourceID int64) ([]domain.Item, error) {
	if sourceID <= 0 {
		return nil, perr.Validationf("invalid source id %d", sourceID)
	}
	log := logger.C(ctx)

	var all []domain.Item
	for i, fs := range d.cfg.Feeds {
		if i > 0 {
			if err := sleepCtx(ctx, d.cfg.CrawlDelay); err != nil {
				return nil, err
			}
		}
		items, err := d.discoverFeed(ctx, fs, sourceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("feed", fs.URL).Msg("feed failed, continuing with remaining feeds")
			continue
		}
		log.Info().Str("feed", fs.URL).Str("section", fs.Section).Int("items", len(items)).Msg("feed processed")
		all = append(all, items...)
	}

	before := len(all)
	all = domain.DedupeByURL(all)
	if removed := before - len(all); removed > 0 {
		log.Info().Int("removed", removed).Int("unique", len(all)).Msg("cross-feed duplicates removed")
	}
	return all, nil
}

func (d *Discoverer) discoverFeed(ctx context.Context, fs domain.FeedSource, sourceID int64) ([]domain.Item, error) {
	body, err := d.fetchWithRetry(ctx, fs.URL)
	if err != nil {
		return nil, err
	}
	parsed, err := d.parser.ParseString(body)
	if err != nil {
		return nil, perr.Parsef("parse feed %s: %v", fs.URL, err)
	}

	now := d.now().UTC()
	items := make([]domain.Item, 0, len(parsed.Items))
	for _, e := range parsed.Items {
		if e.Link == "" {
			continue
		}
		it := domain.Item{
			URL:          e.Link,
			SourceID:     sourceID,
			Section:      fs.Section,
			DiscoveredAt: now,
			Title:        e.Title,
		}
		if e.PublishedParsed != nil {
			it.PublishedAt = ptime.Ptr(e.PublishedParsed.UTC())
		}
		items = append(items, it)
	}
	return items, nil
}

func (d *Discoverer) fetchWithRetry(ctx context.Context, url string) (string, error) {
	var last error
	for i := range d.cfg.MaxAttempts {
		body, err := d.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		last = err
		if i == d.cfg.MaxAttempts-1 {
			break
		}
		// Exponential backoff with jitter, capped at 30s
		w := min(d.cfg.RetryBase<<i, 30*time.Second)
		j := w/2 + time.Duration(rand.Int63n(int64(w/2)))
		if se := sleepCtx(ctx, j); se != nil {
			return "", se
		}
	}
	return "", last
}

func (d *Discoverer) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", perr.Networkf("build request %s: %v", url, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", perr.Networkf("fetch feed %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", perr.Networkf("fetch feed %s: %s", url, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", perr.Networkf("read feed %s: %v", url, err)
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
