package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/nao1215/sbdl/internal/fetch"
	"github.com/nao1215/sbdl/internal/model"
)

const site = "https://www.realmofdarkness.net"

// fakePage is one page of a fake site.
type fakePage struct {
	title string
	links []string
}

// fakeFetcher serves fakePages as HTML and counts fetches per URL.
type fakeFetcher struct {
	pages   map[string]fakePage
	fetched map[string]int
	order   []string
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages, fetched: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*model.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.fetched[rawURL]++
	f.order = append(f.order, rawURL)

	p, ok := f.pages[rawURL]
	if !ok {
		return nil, &fetch.FetchError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return &model.Page{
		URL:         rawURL,
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Raw:         []byte(renderPage(p)),
	}, nil
}

func renderPage(p fakePage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s - Realm of Darkness.net - Soundboards for Mobile</title></head><body>", p.title)
	for _, l := range p.links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// recorder is a Dispatcher that records dispatched URLs.
type recorder struct {
	urls []string
	err  error
}

func (r *recorder) Dispatch(_ context.Context, u string) error {
	r.urls = append(r.urls, u)
	return r.err
}

func defaultOptions() []SpiderOption {
	return []SpiderOption{
		WithLinkPrefix(site + "/sb/"),
		WithExcludeURLs([]string{site + "/sb/", site + "/sb/contact"}),
	}
}

// cyclicSite has a category that links back to the root, a soundboard page
// reachable from two categories, and shared soundboard links.
func cyclicSite() map[string]fakePage {
	return map[string]fakePage{
		site + "/sb/soundboards/": {
			title: "Soundboards",
			links: []string{
				site + "/sb/",
				site + "/sb/cartoons/",
				site + "/sb/koth-hank/",
				site + "/sb/soundboards/",
				site + "/sb/contact",
				"https://example.com/sb/elsewhere/",
			},
		},
		site + "/sb/cartoons/": {
			title: "Cartoon Soundboards",
			links: []string{
				site + "/sb/koth-hank/",
				site + "/sb/simpsons-homer/",
				site + "/sb/soundboards/",
			},
		},
		site + "/sb/koth-hank/": {
			title: "Hank Hill Soundboard: King of the Hill",
			links: []string{
				site + "/sb/koth-bobby/",
				site + "/sb/koth-peggy/",
				site + "/sb/cartoons/",
			},
		},
		site + "/sb/simpsons-homer/": {
			title: "Homer Simpson Soundboard",
			links: []string{
				site + "/sb/koth-bobby/",
				site + "/sb/simpsons-bart/",
			},
		},
	}
}

func TestSpider_Crawl(t *testing.T) {
	t.Parallel()

	t.Run("depth-first walk with at-most-once expansion", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(cyclicSite())
		rec := &recorder{}

		stats, err := NewSpider(fetcher, defaultOptions()...).Crawl(context.Background(), site+"/sb/soundboards/", rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantVisited := []string{
			site + "/sb/soundboards/",
			site + "/sb/cartoons/",
			site + "/sb/koth-hank/",
			site + "/sb/simpsons-homer/",
		}
		if !slices.Equal(stats.Visited, wantVisited) {
			t.Errorf("Visited = %v, want %v", stats.Visited, wantVisited)
		}
		if !slices.Equal(fetcher.order, wantVisited) {
			t.Errorf("fetch order = %v, want %v", fetcher.order, wantVisited)
		}

		wantDiscovered := []string{
			site + "/sb/koth-bobby/",
			site + "/sb/koth-peggy/",
			site + "/sb/simpsons-bart/",
		}
		if !slices.Equal(stats.Discovered, wantDiscovered) {
			t.Errorf("Discovered = %v, want %v", stats.Discovered, wantDiscovered)
		}
		if !slices.Equal(rec.urls, wantDiscovered) {
			t.Errorf("dispatched = %v, want %v", rec.urls, wantDiscovered)
		}

		for u, n := range fetcher.fetched {
			if n > 1 {
				t.Errorf("%s fetched %d times", u, n)
			}
		}
		if stats.PagesVisited != 4 {
			t.Errorf("PagesVisited = %d, want 4", stats.PagesVisited)
		}
	})

	t.Run("visited and discovered are disjoint", func(t *testing.T) {
		t.Parallel()

		stats, err := NewSpider(newFakeFetcher(cyclicSite()), defaultOptions()...).
			Crawl(context.Background(), site+"/sb/soundboards/", &recorder{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, d := range stats.Discovered {
			if slices.Contains(stats.Visited, d) {
				t.Errorf("%s is both visited and discovered", d)
			}
		}
	})

	t.Run("root failure is fatal", func(t *testing.T) {
		t.Parallel()

		_, err := NewSpider(newFakeFetcher(nil), defaultOptions()...).
			Crawl(context.Background(), site+"/sb/soundboards/", &recorder{})
		if fetch.StatusCode(err) != http.StatusNotFound {
			t.Errorf("expected wrapped 404, got %v", err)
		}
	})

	t.Run("child failure skips only that branch", func(t *testing.T) {
		t.Parallel()

		pages := map[string]fakePage{
			site + "/sb/soundboards/": {
				title: "Soundboards",
				links: []string{site + "/sb/broken/", site + "/sb/koth-hank/"},
			},
			site + "/sb/koth-hank/": {
				title: "Hank Hill Soundboard",
				links: []string{site + "/sb/koth-bobby/"},
			},
		}
		rec := &recorder{}

		stats, err := NewSpider(newFakeFetcher(pages), defaultOptions()...).
			Crawl(context.Background(), site+"/sb/soundboards/", rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(stats.Failures) != 1 || stats.Failures[0].URL != site+"/sb/broken/" {
			t.Errorf("Failures = %+v", stats.Failures)
		}
		if !slices.Equal(rec.urls, []string{site + "/sb/koth-bobby/"}) {
			t.Errorf("dispatched = %v", rec.urls)
		}
		if !slices.Contains(stats.Visited, site+"/sb/broken/") {
			t.Error("failed page must still be marked visited")
		}
	})

	t.Run("unclassifiable page links are ignored", func(t *testing.T) {
		t.Parallel()

		pages := map[string]fakePage{
			site + "/sb/soundboards/": {
				title: "Soundboards",
				links: []string{site + "/sb/about/"},
			},
			site + "/sb/about/": {
				title: "About us",
				links: []string{site + "/sb/koth-bobby/", site + "/sb/more/"},
			},
		}
		fetcher := newFakeFetcher(pages)
		rec := &recorder{}

		stats, err := NewSpider(fetcher, defaultOptions()...).Crawl(context.Background(), site+"/sb/soundboards/", rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.urls) != 0 || len(stats.Discovered) != 0 {
			t.Errorf("dispatched = %v", rec.urls)
		}
		if fetcher.fetched[site+"/sb/more/"] != 0 {
			t.Error("links of unclassifiable pages must not be followed")
		}
	})

	t.Run("dispatch errors are counted and crawl continues", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{err: errors.New("disk full")}
		stats, err := NewSpider(newFakeFetcher(cyclicSite()), defaultOptions()...).
			Crawl(context.Background(), site+"/sb/soundboards/", rec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.DispatchErrors != 3 || len(rec.urls) != 3 {
			t.Errorf("DispatchErrors = %d, dispatched = %v", stats.DispatchErrors, rec.urls)
		}
	})

	t.Run("max depth stops expansion", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(cyclicSite())
		opts := append(defaultOptions(), WithMaxDepth(1))

		stats, err := NewSpider(fetcher, opts...).Crawl(context.Background(), site+"/sb/soundboards/", &recorder{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fetcher.fetched[site+"/sb/cartoons/"] != 1 {
			t.Error("depth 1 page must be expanded")
		}
		for _, u := range []string{site + "/sb/koth-hank/", site + "/sb/simpsons-homer/"} {
			if fetcher.fetched[u] != 0 {
				t.Errorf("depth 2 page %s must not be expanded", u)
			}
			if !slices.Contains(stats.Visited, u) {
				t.Errorf("page %s beyond max depth must still be marked visited", u)
			}
		}
	})

	t.Run("ignore patterns and robots filter links", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(cyclicSite())
		opts := append(defaultOptions(),
			WithIgnorePatterns([]string{"/sb/cartoons/*"}),
			WithRobots(denyRobots{site + "/sb/koth-peggy/": true}),
		)
		rec := &recorder{}

		if _, err := NewSpider(fetcher, opts...).Crawl(context.Background(), site+"/sb/soundboards/", rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fetcher.fetched[site+"/sb/cartoons/"] != 0 {
			t.Error("ignored page was fetched")
		}
		if !slices.Equal(rec.urls, []string{site + "/sb/koth-bobby/"}) {
			t.Errorf("dispatched = %v", rec.urls)
		}
	})

	t.Run("on page hook sees running count", func(t *testing.T) {
		t.Parallel()

		var counts []int
		opts := append(defaultOptions(), WithOnPage(func(_ string, discovered int) {
			counts = append(counts, discovered)
		}))

		if _, err := NewSpider(newFakeFetcher(cyclicSite()), opts...).
			Crawl(context.Background(), site+"/sb/soundboards/", &recorder{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []int{0, 0, 0, 2}; !slices.Equal(counts, want) {
			t.Errorf("counts = %v, want %v", counts, want)
		}
	})

	t.Run("cancellation stops the crawl", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		d := DispatcherFunc(func(context.Context, string) error {
			cancel()
			return nil
		})

		stats, err := NewSpider(newFakeFetcher(cyclicSite()), defaultOptions()...).Crawl(ctx, site+"/sb/soundboards/", d)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(stats.Discovered) != 1 {
			t.Errorf("Discovered = %v", stats.Discovered)
		}
	})
}

type denyRobots map[string]bool

func (d denyRobots) Allowed(u string) bool { return !d[u] }

func TestSpider_CrawlHTTP(t *testing.T) {
	t.Parallel()

	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/sb/soundboards/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, renderPage(fakePage{
			title: "Soundboards",
			links: []string{"/sb/", "/sb/koth-hank/", "/sb/privacy"},
		}))
	})
	mux.HandleFunc("/sb/koth-hank/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, renderPage(fakePage{
			title: "Hank Hill Soundboard",
			links: []string{"/sb/koth-bobby/", "/sb/koth-bobby/"},
		}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	rec := &recorder{}
	spider := NewSpider(fetch.New(),
		WithLinkPrefix(base+"/sb/"),
		WithExcludeURLs([]string{base + "/sb/", base + "/sb/privacy"}),
	)

	stats, err := spider.Crawl(context.Background(), base+"/sb/soundboards/", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(rec.urls, []string{base + "/sb/koth-bobby/"}) {
		t.Errorf("dispatched = %v", rec.urls)
	}
	if stats.PagesVisited != 2 {
		t.Errorf("PagesVisited = %d", stats.PagesVisited)
	}
}

func TestSpider_NonHTMLLink(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/sb/soundboards/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, renderPage(fakePage{
			title: "Soundboards",
			links: []string{"/sb/banner.png", "/sb/cartoons/"},
		}))
	})
	mux.HandleFunc("/sb/banner.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/sb/cartoons/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, renderPage(fakePage{title: "Cartoon Soundboards"}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	spider := NewSpider(fetch.New(), WithLinkPrefix(srv.URL+"/sb/"))
	stats, err := spider.Crawl(context.Background(), srv.URL+"/sb/soundboards/", &recorder{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.Failures) != 0 {
		t.Errorf("non-HTML link must not be a failure: %v", stats.Failures)
	}
	if stats.PagesVisited != 3 {
		t.Errorf("PagesVisited = %d, want 3", stats.PagesVisited)
	}
}

func TestSession(t *testing.T) {
	t.Parallel()

	s := NewSession()
	if !s.MarkVisited("a") {
		t.Error("first MarkVisited must succeed")
	}
	if s.MarkVisited("a") || s.AddDiscovered("a") {
		t.Error("a seen URL must not be added again")
	}
	if !s.AddDiscovered("b") {
		t.Error("first AddDiscovered must succeed")
	}
	if s.MarkVisited("b") {
		t.Error("a discovered URL must not become visited")
	}
	if !s.Seen("a") || !s.Seen("b") || s.Seen("c") {
		t.Error("Seen mismatch")
	}
	if !slices.Equal(s.Visited(), []string{"a"}) || !slices.Equal(s.Discovered(), []string{"b"}) {
		t.Errorf("Visited = %v, Discovered = %v", s.Visited(), s.Discovered())
	}
	if s.DiscoveredCount() != 1 {
		t.Errorf("DiscoveredCount = %d", s.DiscoveredCount())
	}
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/sb/contact/*", "/sb/contact/form", true},
		{"/sb/contact/*", "/sb/contact", true},
		{"/sb/contact/*", "/sb/contacts", false},
		{"*.php", "/sb/index.php", true},
		{"*.php", "/sb/index.html", false},
		{"/sb/page?", "/sb/page2", true},
		{"print*", "/sb/koth/print-view", true},
		{"[", "/sb/", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.path, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}
