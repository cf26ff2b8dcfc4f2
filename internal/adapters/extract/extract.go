// Package extract pulls usable article content out of news pages
package extract

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	perr "muckrake/internal/platform/errors"
	"muckrake/internal/services/pipeline/domain"
)

// minTextLen guards against boilerplate-only pages
const minTextLen = 50

// Config configures the HTML extractor
type Config struct {
	// Timeout per fetch, defaults to 30s
	Timeout time.Duration

	// Client overrides the HTTP client, mostly for tests
	Client *http.Client
}

// HTML implements domain.Extractor for article pages. Selectors follow the
// Gleaner layout: h1.title, div.article-content paragraphs, a.author-term
// and the article:published_time meta.
type HTML struct {
	client *http.Client
}

// New builds the HTML extractor
func New(cfg Config) *HTML {
	cl := cfg.Client
	if cl == nil {
		if cfg.Timeout <= 0 {
			cfg.Timeout = 30 * time.Second
		}
		cl = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTML{client: cl}
}

// Extract fetches the page and parses its content. Fetch problems come
// back as network errors, selector misses as parse errors.
func (h *HTML) Extract(ctx context.Context, url string) (domain.ExtractedContent, error) {
	var out domain.ExtractedContent

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, perr.Networkf("build request %s: %v", url, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return out, perr.Networkf("fetch %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return out, perr.Networkf("fetch %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, perr.Networkf("read %s: %v", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return out, perr.Parsef("parse %s: %v", url, err)
	}
	return h.fromDocument(doc, url)
}

func (h *HTML) fromDocument(doc *goquery.Document, url string) (domain.ExtractedContent, error) {
	var out domain.ExtractedContent

	title := text(doc.Find("h1.title").First())
	if title == "" {
		title = text(doc.Find("h1").First())
	}
	if title == "" {
		return out, perr.Parsef("no title in %s", url)
	}

	full, err := fullText(doc, url)
	if err != nil {
		return out, err
	}

	out = domain.ExtractedContent{
		URL:      url,
		Title:    title,
		FullText: full,
		Author:   author(doc),
	}
	if t, ok := publishedAt(doc); ok {
		out.PublishedAt = &t
	}
	return out, nil
}

func fullText(doc *goquery.Document, url string) (string, error) {
	container := doc.Find("div.article-content").First()
	if container.Length() == 0 {
		container = doc.Find("div.field-name-body").First()
	}
	if container.Length() == 0 {
		return "", perr.Parsef("no content container in %s", url)
	}

	var paras []string
	container.Find("p").Each(func(_ int, s *goquery.Selection) {
		t := text(s)
		// the closing paragraph is often just the reporter's email
		if t == "" || strings.HasSuffix(t, "@gleanerjm.com") {
			return
		}
		paras = append(paras, t)
	})
	if len(paras) == 0 {
		return "", perr.Parsef("no paragraphs in %s", url)
	}
	full := strings.Join(paras, "\n\n")
	if len(full) < minTextLen {
		return "", perr.Parsef("extracted text too short in %s", url)
	}
	return full, nil
}

func author(doc *goquery.Document) string {
	a := text(doc.Find("a.author-term").First())
	if a == "" {
		return ""
	}
	a = strings.ReplaceAll(a, "By ", "")
	a = strings.ReplaceAll(a, "by ", "")
	if i := strings.Index(a, "/"); i >= 0 {
		a = strings.TrimSpace(a[:i])
	}
	return a
}

func publishedAt(doc *goquery.Document) (time.Time, bool) {
	if c, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := parseISO(c); err == nil {
			return t, true
		}
	}
	if c, ok := doc.Find("time").First().Attr("datetime"); ok {
		if t, err := parseISO(c); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, perr.Parsef("unrecognized timestamp %q", s)
}

func text(s *goquery.Selection) string { return strings.TrimSpace(s.Text()) }
