package markup

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Document is what the crawler and resolver need from one HTML page.
type Document struct {
	// Title is the trimmed text of the first <title> element.
	Title string

	// Anchors are the href targets of every <a> element in document order,
	// resolved to absolute URLs. Duplicates are kept.
	Anchors []string
}

// Extractor parses HTML pages. It is stateless and safe for concurrent use.
type Extractor struct {
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parse extracts the title and anchors from body. The body is decoded to
// UTF-8 using contentType and any <meta charset> before parsing. Relative
// hrefs are resolved against <base href> when present, else pageURL.
func (e *Extractor) Parse(pageURL string, body []byte, contentType string) (*Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(decode(body, contentType))
	if err != nil {
		return nil, fmt.Errorf("parse HTML of %s: %w", pageURL, err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	result := &Document{
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Anchors: make([]string, 0),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if resolved := resolve(base, href); resolved != "" {
			result.Anchors = append(result.Anchors, resolved)
		}
	})

	e.logger.Debug("page parsed", "url", pageURL, "title", result.Title, "anchors", len(result.Anchors))
	return result, nil
}

// decode wraps body in a UTF-8 decoding reader. Unknown encodings fall back
// to the raw bytes.
func decode(body []byte, contentType string) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

// resolve turns href into an absolute URL, or "" for links that do not
// point at a page.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := base.Parse(href)
	if err != nil {
		return ""
	}
	return u.String()
}

// manifestScriptRegex matches the script tag that loads a soundboard's
// sound manifest, e.g. <script src="/scripts/sb/koth/hank/1/sounds.js">.
var manifestScriptRegex = regexp.MustCompile(`<script\s+src="(/scripts/sb/[^"]+?/sounds\.js)"[^>]*>`)

// ManifestScript returns the site-relative path of the first manifest
// script referenced in body.
func ManifestScript(body []byte) (string, bool) {
	m := manifestScriptRegex.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
