// Command muckrake-discover enumerates candidate articles from RSS feeds or
// a dated newspaper archive and writes them to an NDJSON batch file.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"muckrake/internal/platform/config"
	"muckrake/internal/platform/logger"
	"muckrake/internal/services/discover/archive"
	"muckrake/internal/services/discover/batch"
	"muckrake/internal/services/discover/domain"
	"muckrake/internal/services/discover/feed"
)

func main() {
	logger.Init(logger.FromEnv())
	l := logger.Get()

	root := config.New().Prefix("MUCKRAKE_")

	var (
		fMode     = flag.String("mode", "feeds", "discovery mode: feeds | archive")
		fOut      = flag.String("out", "discovered.jsonl", "output NDJSON path")
		fSourceID = flag.Int64("source-id", 1, "news source id stamped on items")

		// archive mode
		fStart = flag.String("start", "", "archive start date YYYY-MM-DD")
		fEnd   = flag.String("end", "", "archive end date YYYY-MM-DD inclusive")
		fMonth = flag.String("month", "", "archive whole month YYYY-MM (overrides -start/-end)")

		fCrawlDelay = flag.Duration("crawl-delay", 0, "override crawl delay between requests")
	)
	flag.Parse()

	ctx := logger.WithRun(context.Background(), uuid.NewString(), *fMode)

	var (
		d   domain.Discoverer
		err error
	)
	switch *fMode {
	case "feeds":
		d = feed.New(feed.Config{
			Feeds:      feedsFromConfig(root),
			CrawlDelay: *fCrawlDelay,
		})
	case "archive":
		cfg := archive.Config{
			BaseURL:     root.MayString("ARCHIVE_BASE_URL", "https://gleaner.newspaperarchive.com"),
			Publication: root.MayString("ARCHIVE_PUBLICATION", "kingston-gleaner"),
			CrawlDelay:  *fCrawlDelay,
		}
		d, err = archiveDiscoverer(cfg, *fMonth, *fStart, *fEnd)
		if err != nil {
			l.Panic().Err(err).Msg("bad archive range")
		}
	default:
		l.Panic().Str("mode", *fMode).Msg("unknown mode")
	}

	items, err := d.Discover(ctx, *fSourceID)
	if err != nil {
		l.Panic().Err(err).Msg("discovery failed")
	}
	if err := batch.WriteFile(*fOut, items, nil); err != nil {
		l.Panic().Err(err).Msg("writing batch file failed")
	}
	l.Info().Int("items", len(items)).Str("out", *fOut).Msg("discovery written")
	os.Exit(0)
}

// feedsFromConfig reads MUCKRAKE_FEEDS as url=section pairs
func feedsFromConfig(root config.Conf) []domain.FeedSource {
	pairs := root.MayCSV("FEEDS", []string{
		"https://jamaica-gleaner.com/feed/rss.xml=news",
		"https://jamaica-gleaner.com/feed/business/rss.xml=business",
	})
	feeds := make([]domain.FeedSource, 0, len(pairs))
	for _, p := range pairs {
		url, section, ok := strings.Cut(p, "=")
		if !ok {
			section = "news"
		}
		feeds = append(feeds, domain.FeedSource{URL: url, Section: section})
	}
	return feeds
}

func archiveDiscoverer(cfg archive.Config, month, start, end string) (domain.Discoverer, error) {
	if month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, err
		}
		return archive.ForMonth(cfg, t.Year(), int(t.Month()))
	}
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, err
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, err
	}
	return archive.NewRange(cfg, s, e)
}
