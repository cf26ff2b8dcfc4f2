package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testConfig(base string) Config {
	return Config{
		BaseURL:     base,
		Publication: "kingston-gleaner",
		MaxAttempts: 2,
		RetryBase:   time.Millisecond,
		CrawlDelay:  time.Millisecond,
	}
}

func archivePage(title, next string) string {
	h := `<html><head><title>` + title + `</title>`
	if next != "" {
		h += `<link rel="next" href="` + next + `" />`
	}
	return h + `</head><body>scans</body></html>`
}

func TestFactoryValidation(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://archive.example.com")
	cases := []struct {
		name    string
		build   func() error
		wantErr bool
	}{
		{"valid date", func() error { _, e := ForDate(cfg, 2021, 11, 15); return e }, false},
		{"valid month", func() error { _, e := ForMonth(cfg, 2021, 11); return e }, false},
		{"year too small", func() error { _, e := ForMonth(cfg, 1899, 1); return e }, true},
		{"year too large", func() error { _, e := ForMonth(cfg, 3001, 1); return e }, true},
		{"month zero", func() error { _, e := ForMonth(cfg, 2021, 0); return e }, true},
		{"month thirteen", func() error { _, e := ForMonth(cfg, 2021, 13); return e }, true},
		{"day zero", func() error { _, e := ForDate(cfg, 2021, 11, 0); return e }, true},
		{"day thirty-two", func() error { _, e := ForDate(cfg, 2021, 11, 32); return e }, true},
		{"feb 30", func() error { _, e := ForDate(cfg, 2021, 2, 30); return e }, true},
		{"nov 31", func() error { _, e := ForDate(cfg, 2021, 11, 31); return e }, true},
		{"leap day", func() error { _, e := ForDate(cfg, 2020, 2, 29); return e }, false},
		{"non-leap feb 29", func() error { _, e := ForDate(cfg, 2021, 2, 29); return e }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	if _, err := NewRange(cfg, time.Date(2021, 11, 5, 0, 0, 0, 0, time.UTC), time.Date(2021, 11, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error for reversed range")
	}
	if _, err := NewRange(Config{}, time.Now(), time.Now()); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

func TestForMonth_SpansWholeMonth(t *testing.T) {
	t.Parallel()

	d, err := ForMonth(testConfig("https://archive.example.com"), 2021, 2)
	if err != nil {
		t.Fatalf("ForMonth: %v", err)
	}
	if got := d.start.Format("2006-01-02"); got != "2021-02-01" {
		t.Fatalf("start = %s, want 2021-02-01", got)
	}
	if got := d.end.Format("2006-01-02"); got != "2021-02-28" {
		t.Fatalf("end = %s, want 2021-02-28", got)
	}
}

func TestDiscover_FollowsPagination(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/kingston-gleaner/2021-11-07/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("Kingston Gleaner November 7 1971", srv.URL+"/kingston-gleaner/2021-11-07/page-2/"))
	})
	mux.HandleFunc("/kingston-gleaner/2021-11-07/page-2/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("Page 2", "/kingston-gleaner/2021-11-07/page-3/"))
	})
	mux.HandleFunc("/kingston-gleaner/2021-11-07/page-3/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("Page 3", ""))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d, err := ForDate(testConfig(srv.URL), 2021, 11, 7)
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	items, err := d.Discover(context.Background(), 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3 pages", len(items))
	}
	first := items[0]
	if first.URL != srv.URL+"/kingston-gleaner/2021-11-07/" {
		t.Fatalf("first URL = %s", first.URL)
	}
	if first.Title != "Kingston Gleaner November 7 1971" {
		t.Fatalf("first title = %q", first.Title)
	}
	if first.Section != Section {
		t.Fatalf("section = %q, want %q", first.Section, Section)
	}
	if first.PublishedAt == nil || first.PublishedAt.Format("2006-01-02") != "2021-11-07" {
		t.Fatalf("published = %v, want 2021-11-07", first.PublishedAt)
	}
	// relative next href resolves against the current page
	if items[2].URL != srv.URL+"/kingston-gleaner/2021-11-07/page-3/" {
		t.Fatalf("third URL = %s", items[2].URL)
	}
}

func TestDiscover_RedirectedDateIsSkipped(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/kingston-gleaner/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("Publication Root", ""))
	})
	mux.HandleFunc("/kingston-gleaner/2021-11-07/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/kingston-gleaner/", http.StatusFound)
	})
	mux.HandleFunc("/kingston-gleaner/2021-11-08/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("November 8", ""))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d, err := NewRange(testConfig(srv.URL),
		time.Date(2021, 11, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 11, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}
	items, err := d.Discover(context.Background(), 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(items) != 1 || !strings.Contains(items[0].URL, "2021-11-08") {
		t.Fatalf("items = %+v, want only the Nov 8 page", items)
	}
}

func TestDiscover_NotFoundFallsBackToPageOne(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/kingston-gleaner/2021-11-07/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/kingston-gleaner/2021-11-07/page-1/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("Fallback Page", ""))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d, err := ForDate(testConfig(srv.URL), 2021, 11, 7)
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	items, err := d.Discover(context.Background(), 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Fallback Page" {
		t.Fatalf("items = %+v, want the page-1 fallback", items)
	}
}

func TestDiscover_FailingDateDoesNotAbortRange(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/kingston-gleaner/2021-11-07/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/kingston-gleaner/2021-11-08/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, archivePage("November 8", ""))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	d, err := NewRange(cfg,
		time.Date(2021, 11, 7, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 11, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRange: %v", err)
	}
	items, err := d.Discover(context.Background(), 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(items) != 1 || !strings.Contains(items[0].URL, "2021-11-08") {
		t.Fatalf("items = %+v, want only the healthy date", items)
	}
}

func TestDiscover_OgTitlePreferred(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/kingston-gleaner/2021-11-07/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<html><head>`+
			`<meta property="og:title" content="OG Wins" />`+
			`<title>Plain Title</title></head><body></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d, err := ForDate(testConfig(srv.URL), 2021, 11, 7)
	if err != nil {
		t.Fatalf("ForDate: %v", err)
	}
	items, err := d.Discover(context.Background(), 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(items) != 1 || items[0].Title != "OG Wins" {
		t.Fatalf("items = %+v, want og:title", items)
	}
}
