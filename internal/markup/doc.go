// Package markup extracts page titles, anchors and manifest script
// references from soundboard site HTML.
//
// Parsing uses goquery over a charset-decoded body, so pages served in
// legacy encodings still yield correct titles. The manifest reference is
// matched with a narrow regular expression against the raw body, the same
// way the site emits it.
package markup
