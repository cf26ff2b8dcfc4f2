package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perr "muckrake/internal/platform/errors"
)

const articleHTML = `<html><head>
<meta property="article:published_time" content="2025-03-14T09:30:00+00:00" />
</head><body>
<h1 class="title">Contract Probe Widens</h1>
<a class="author-term">By Jane Brown/Staff Reporter</a>
<div class="article-content">
<p>The national works agency confirmed on Friday that the audit has been extended to three more parishes.</p>
<p>Officials declined to name the contractors under review.</p>
<p>jane.brown@gleanerjm.com</p>
</div>
</body></html>`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract_FullArticle(t *testing.T) {
	t.Parallel()

	srv := serve(t, http.StatusOK, articleHTML)
	c, err := New(Config{}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Title != "Contract Probe Widens" {
		t.Fatalf("title = %q", c.Title)
	}
	if c.Author != "Jane Brown" {
		t.Fatalf("author = %q, want cleaned name", c.Author)
	}
	if strings.Contains(c.FullText, "@gleanerjm.com") {
		t.Fatalf("reporter email leaked into text: %q", c.FullText)
	}
	if !strings.Contains(c.FullText, "three more parishes") || !strings.Contains(c.FullText, "\n\n") {
		t.Fatalf("text = %q", c.FullText)
	}
	if c.PublishedAt == nil || c.PublishedAt.Format("2006-01-02") != "2025-03-14" {
		t.Fatalf("published = %v", c.PublishedAt)
	}
}

func TestExtract_FallbackSelectors(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1>Plain Heading</h1>
<div class="field-name-body">
<p>` + strings.Repeat("words and more words ", 5) + `</p>
</div>
<time datetime="2024-06-01T00:00:00Z">June 1</time>
</body></html>`
	srv := serve(t, http.StatusOK, html)

	c, err := New(Config{}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Title != "Plain Heading" {
		t.Fatalf("title = %q", c.Title)
	}
	if c.PublishedAt == nil || c.PublishedAt.Format("2006-01-02") != "2024-06-01" {
		t.Fatalf("published = %v", c.PublishedAt)
	}
	if c.Author != "" {
		t.Fatalf("author = %q, want empty", c.Author)
	}
}

func TestExtract_ErrorsAreCategorized(t *testing.T) {
	t.Parallel()

	srv := serve(t, http.StatusInternalServerError, "boom")
	_, err := New(Config{}).Extract(context.Background(), srv.URL)
	if perr.CategoryOf(err) != "network" {
		t.Fatalf("5xx should be a network error, got %v (%s)", err, perr.CategoryOf(err))
	}

	noTitle := serve(t, http.StatusOK, `<html><body><div class="article-content"><p>text</p></div></body></html>`)
	_, err = New(Config{}).Extract(context.Background(), noTitle.URL)
	if perr.CategoryOf(err) != "parse" {
		t.Fatalf("missing title should be a parse error, got %v (%s)", err, perr.CategoryOf(err))
	}

	short := serve(t, http.StatusOK, `<html><body><h1>T</h1><div class="article-content"><p>tiny</p></div></body></html>`)
	_, err = New(Config{}).Extract(context.Background(), short.URL)
	if perr.CategoryOf(err) != "parse" {
		t.Fatalf("short text should be a parse error, got %v (%s)", err, perr.CategoryOf(err))
	}
}
