package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// RobotsChecker decides whether a URL may be crawled. *fetch.RobotsPolicy
// implements it.
type RobotsChecker interface {
	Allowed(rawURL string) bool
}

// linkFilter keeps the anchors of a page that the crawler may follow.
type linkFilter struct {
	prefix         string
	exclude        map[string]struct{}
	ignorePatterns []string
	robots         RobotsChecker
}

// keep reports whether link passes every filter: it starts with the link
// prefix, is not an excluded URL, matches no ignore pattern and is allowed
// by robots.txt when a checker is set.
func (f *linkFilter) keep(link string) bool {
	if !strings.HasPrefix(link, f.prefix) {
		return false
	}
	if _, ok := f.exclude[link]; ok {
		return false
	}
	if f.ignored(link) {
		return false
	}
	if f.robots != nil && !f.robots.Allowed(link) {
		return false
	}
	return true
}

// apply filters links, keeping document order.
func (f *linkFilter) apply(links []string) []string {
	kept := make([]string, 0, len(links))
	for _, link := range links {
		if f.keep(link) {
			kept = append(kept, link)
		}
	}
	return kept
}

func (f *linkFilter) ignored(link string) bool {
	if len(f.ignorePatterns) == 0 {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//
// Examples:
//   - "/sb/contact/*" matches "/sb/contact/form"
//   - "*.php" matches "/sb/index.php"
//   - "/sb/page?" matches "/sb/page2"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Bare file patterns like "print*" match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}
