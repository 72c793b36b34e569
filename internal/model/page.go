package model

import (
	"encoding/hex"
	"mime"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Page represents one fetched resource: a category page, a soundboard page
// or a sound manifest. Audio files are streamed to disk and never held in
// a Page.
type Page struct {
	// URL is the final URL of the resource after redirects.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains all HTTP response headers in canonical form.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the raw Content-Type header, including any charset
	// parameter. The markup extractor needs the parameter to decode
	// legacy encodings.
	ContentType string `json:"content_type"`

	// Raw contains the response body, limited to MaxPageSize bytes.
	Raw []byte `json:"-"`

	// Hash is the BLAKE2b-256 digest of Raw, hex encoded.
	Hash string `json:"hash,omitempty"`
}

// MaxPageSize is the maximum size of a page body kept in memory.
// Soundboard pages and manifests are a few hundred kilobytes at most.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// ComputeHash calculates and sets the BLAKE2b-256 hash of the page's raw content.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	sum := blake2b.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(sum[:])
}

// MediaType returns the lower-cased media type of ContentType without
// parameters. An unparsable header yields an empty string.
func (p *Page) MediaType() string {
	if p.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// IsHTML returns true if the page content type indicates HTML.
// Servers that send no Content-Type at all are treated as HTML, which is
// what browsers do for the pages this tool reads.
func (p *Page) IsHTML() bool {
	switch p.MediaType() {
	case "text/html", "application/xhtml+xml", "":
		return true
	default:
		return false
	}
}

// Text returns the body as a string.
func (p *Page) Text() string {
	return string(p.Raw)
}
