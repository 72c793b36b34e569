// Package crawler discovers soundboards by walking a site's category tree.
//
// # Architecture
//
// Spider keeps an explicit stack of frames, one per category page being
// expanded, so the walk is depth-first in anchor order without recursion.
// A Session records which pages were visited as categories and which were
// discovered as soundboards; a URL is never in both and is handled at most
// once.
//
// Every page's title decides how its links are treated:
//
//   - "... Soundboards ..." (category): links are visited and expanded
//   - "... Soundboard ..." (soundboard): links are discovered and dispatched
//   - anything else: links are ignored
//
// # Link filtering
//
// Only anchors under the configured prefix are followed. Exact exclusions
// (home, contact, privacy), glob ignore patterns and an optional robots.txt
// policy narrow that further.
//
// # Usage
//
//	spider := crawler.NewSpider(client,
//		crawler.WithLinkPrefix(cfg.LinkPrefix()),
//		crawler.WithExcludeURLs(cfg.ExcludeURLs),
//	)
//	stats, err := spider.Crawl(ctx, cfg.RootURL, dispatcher)
package crawler
