package soundboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/sbdl/internal/markup"
	"github.com/nao1215/sbdl/internal/model"
)

var (
	// ErrManifestNotFound means the page carries no manifest script tag.
	ErrManifestNotFound = errors.New("manifest script not found")

	// ErrManifestParse means the manifest body has fewer than three lines.
	ErrManifestParse = errors.New("malformed manifest")
)

// MaxDisplayNameLength is the maximum display name length in characters.
const MaxDisplayNameLength = 250

const (
	manifestPrefix = "/scripts/sb/"
	manifestSuffix = "/sounds.js"
	audioPrefix    = "/audio/"
)

// Fetcher is the subset of fetch.Client the resolver needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Page, error)
}

// Parser is the subset of markup.Extractor the resolver needs.
type Parser interface {
	Parse(pageURL string, body []byte, contentType string) (*markup.Document, error)
}

// Resolver turns a soundboard page URL into a model.Soundboard.
type Resolver struct {
	fetcher Fetcher
	parser  Parser
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithParser replaces the default markup extractor.
func WithParser(p Parser) Option {
	return func(r *Resolver) {
		r.parser = p
	}
}

// NewResolver creates a Resolver that fetches pages and manifests with f.
func NewResolver(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: f,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parser == nil {
		r.parser = markup.NewExtractor(markup.WithLogger(r.logger))
	}
	return r
}

// Resolve fetches the soundboard page at pageURL, locates its manifest,
// fetches and parses it, and derives the audio URL template.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (*model.Soundboard, error) {
	page, err := r.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch soundboard page: %w", err)
	}

	doc, err := r.parser.Parse(page.URL, page.Raw, page.ContentType)
	if err != nil {
		return nil, fmt.Errorf("parse soundboard page: %w", err)
	}

	scriptPath, ok := markup.ManifestScript(page.Raw)
	if !ok {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrManifestNotFound)
	}

	manifestURL, err := resolveRef(pageURL, scriptPath)
	if err != nil {
		return nil, err
	}

	template, err := AudioURLTemplate(pageURL, scriptPath)
	if err != nil {
		return nil, err
	}

	manifestPage, err := r.fetcher.Fetch(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}

	identifiers, err := ParseManifest(manifestPage.Text())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", manifestURL, err)
	}

	sb := &model.Soundboard{
		URL:              pageURL,
		Title:            doc.Title,
		DisplayName:      DisplayName(doc.Title),
		ManifestURL:      manifestURL,
		AudioURLTemplate: template,
		Manifest:         identifiers,
	}

	r.logger.Info("found sound files", "url", pageURL, "soundboard", sb.DisplayName, "count", len(identifiers))
	return sb, nil
}

// DisplayName derives the output directory name from a page title: the text
// before " - Realm", NFC-normalised, capped at MaxDisplayNameLength
// characters, without ":" and path separators, trimmed. A name of "." or
// ".." is returned as empty.
func DisplayName(title string) string {
	name := norm.NFC.String(model.TrimSiteSuffix(title))

	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		name = string([]rune(name)[:MaxDisplayNameLength])
	}

	name = strings.TrimSpace(strings.NewReplacer(":", "", "/", "", `\`, "").Replace(name))
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// manifestStripper removes the JavaScript array syntax around identifiers.
var manifestStripper = strings.NewReplacer("\t", "", "\r", "", ",", "", `"`, "")

// ParseManifest extracts the ordered identifiers from a sounds.js body.
// The first two lines and the last line carry the array wrapper; blank
// lines are dropped.
func ParseManifest(text string) ([]string, error) {
	cleaned := strings.TrimRight(manifestStripper.Replace(text), "\n")

	lines := strings.Split(cleaned, "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: %d lines", ErrManifestParse, len(lines))
	}

	identifiers := make([]string, 0, len(lines)-3)
	for _, line := range lines[2 : len(lines)-1] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		identifiers = append(identifiers, line)
	}
	return identifiers, nil
}

// AudioURLTemplate maps /scripts/sb/<x>/sounds.js to an absolute
// /audio/<x>/%s.mp3 URL resolved against pageURL.
func AudioURLTemplate(pageURL, scriptPath string) (string, error) {
	if !strings.HasPrefix(scriptPath, manifestPrefix) || !strings.HasSuffix(scriptPath, manifestSuffix) {
		return "", fmt.Errorf("%w: unexpected script path %q", ErrManifestNotFound, scriptPath)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(scriptPath, manifestPrefix), manifestSuffix)

	base, err := resolveRef(pageURL, audioPrefix+inner+"/")
	if err != nil {
		return "", err
	}
	return base + model.IdentifierPlaceholder + model.AudioExtension, nil
}

func resolveRef(pageURL, ref string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page URL: %w", err)
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return u.String(), nil
}
