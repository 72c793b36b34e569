package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/sbdl/internal/markup"
	"github.com/nao1215/sbdl/internal/model"
)

// PageFetcher is the subset of fetch.Client the spider needs.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
}

// Parser is the subset of markup.Extractor the spider needs.
type Parser interface {
	Parse(pageURL string, body []byte, contentType string) (*markup.Document, error)
}

// Dispatcher receives every newly discovered soundboard URL. Dispatch runs
// synchronously: the crawl continues once it returns.
type Dispatcher interface {
	Dispatch(ctx context.Context, soundboardURL string) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, soundboardURL string) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, soundboardURL string) error {
	return f(ctx, soundboardURL)
}

// PageFunc is called before each page is fetched with the number of
// soundboards discovered so far.
type PageFunc func(pageURL string, discovered int)

// Stats summarises a finished or interrupted crawl.
type Stats struct {
	// PagesVisited counts category pages fetched and parsed, root included.
	PagesVisited int

	// Visited lists category URLs in the order they were marked visited.
	Visited []string

	// Discovered lists soundboard URLs in discovery order.
	Discovered []string

	// DispatchErrors counts soundboards whose dispatch returned an error.
	DispatchErrors int

	// Failures lists category pages that could not be fetched or parsed.
	Failures []model.CrawlFailure
}

// Spider walks the category tree of a soundboard site depth-first and hands
// every soundboard it finds to a Dispatcher.
type Spider struct {
	fetcher  PageFetcher
	parser   Parser
	filter   linkFilter
	maxDepth int
	onPage   PageFunc
	logger   *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithLinkPrefix sets the prefix every followed link must start with,
// e.g. "https://www.realmofdarkness.net/sb/".
func WithLinkPrefix(prefix string) SpiderOption {
	return func(s *Spider) {
		s.filter.prefix = prefix
	}
}

// WithExcludeURLs adds URLs that are never followed. Matching is exact.
func WithExcludeURLs(urls []string) SpiderOption {
	return func(s *Spider) {
		for _, u := range urls {
			s.filter.exclude[u] = struct{}{}
		}
	}
}

// WithIgnorePatterns sets URL path glob patterns that are never followed.
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.ignorePatterns = patterns
	}
}

// WithRobots makes the spider skip links disallowed by rc.
func WithRobots(rc RobotsChecker) SpiderOption {
	return func(s *Spider) {
		s.filter.robots = rc
	}
}

// WithMaxDepth limits how many category levels below the root are
// expanded. 0 means unlimited.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithOnPage sets a hook called before each page is fetched.
func WithOnPage(fn PageFunc) SpiderOption {
	return func(s *Spider) {
		s.onPage = fn
	}
}

// WithParser replaces the default markup extractor.
func WithParser(p Parser) SpiderOption {
	return func(s *Spider) {
		s.parser = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider that reads pages through fetcher.
func NewSpider(fetcher PageFetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher: fetcher,
		filter:  linkFilter{exclude: make(map[string]struct{})},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parser == nil {
		s.parser = markup.NewExtractor(markup.WithLogger(s.logger))
	}
	return s
}

// frame is one category page being expanded. links are already filtered;
// cursor is the index of the next link to examine.
type frame struct {
	url    string
	class  model.PageClass
	links  []string
	cursor int
	depth  int
}

// Crawl walks the site from rootURL.
//
// The class of a page, taken from its title, decides what its links are:
// every unseen link on a category page is marked visited and expanded
// before the next sibling is looked at, and every unseen link on a
// soundboard page is recorded as discovered and dispatched. Links on
// unclassifiable pages are ignored. No URL is fetched as a category twice
// and no soundboard is dispatched twice.
//
// Failing to read the root is an error. Failures below the root are logged,
// recorded in Stats.Failures, and only abandon that branch. Dispatch errors
// are logged and counted. Cancelling ctx stops the crawl with ctx.Err().
func (s *Spider) Crawl(ctx context.Context, rootURL string, d Dispatcher) (*Stats, error) {
	session := NewSession()
	stats := &Stats{}
	defer func() {
		stats.Visited = session.Visited()
		stats.Discovered = session.Discovered()
	}()

	session.MarkVisited(rootURL)
	root, err := s.load(ctx, rootURL, 0, session)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, fmt.Errorf("crawl root %s: %w", rootURL, err)
	}
	stats.PagesVisited++

	stack := []*frame{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		top := stack[len(stack)-1]
		if top.cursor >= len(top.links) {
			stack = stack[:len(stack)-1]
			continue
		}
		link := top.links[top.cursor]
		top.cursor++

		if session.Seen(link) {
			continue
		}

		switch top.class {
		case model.PageCategory:
			session.MarkVisited(link)
			if s.maxDepth > 0 && top.depth+1 > s.maxDepth {
				s.logger.Debug("max depth reached", "url", link, "depth", top.depth+1)
				continue
			}

			child, err := s.load(ctx, link, top.depth+1, session)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				s.logger.Warn("skipping page", "url", link, "error", err)
				stats.Failures = append(stats.Failures, model.CrawlFailure{URL: link, Error: err.Error()})
				continue
			}
			stats.PagesVisited++
			stack = append(stack, child)

		case model.PageSoundboard:
			session.AddDiscovered(link)
			if err := d.Dispatch(ctx, link); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				s.logger.Warn("soundboard failed", "url", link, "error", err)
				stats.DispatchErrors++
			}

		case model.PageUnclassifiable:
		}
	}

	return stats, nil
}

// load fetches and parses pageURL into a frame.
func (s *Spider) load(ctx context.Context, pageURL string, depth int, session *Session) (*frame, error) {
	s.logger.Info("scraping page", "url", pageURL, "soundboards", session.DiscoveredCount())
	if s.onPage != nil {
		s.onPage(pageURL, session.DiscoveredCount())
	}

	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	// Stray links to audio or images under the link prefix are not pages.
	if !page.IsHTML() {
		s.logger.Debug("not an HTML page", "url", pageURL, "contentType", page.ContentType)
		return &frame{url: pageURL, class: model.PageUnclassifiable, depth: depth}, nil
	}

	doc, err := s.parser.Parse(page.URL, page.Raw, page.ContentType)
	if err != nil {
		return nil, err
	}

	f := &frame{
		url:   pageURL,
		class: model.Classify(doc.Title),
		depth: depth,
	}
	if f.class != model.PageUnclassifiable {
		f.links = s.filter.apply(doc.Anchors)
	}

	s.logger.Debug("page classified",
		"url", pageURL,
		"class", f.class,
		"title", strings.TrimSpace(model.TrimSiteSuffix(doc.Title)),
		"links", len(f.links),
	)
	return f, nil
}
