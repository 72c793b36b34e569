package model

import "strings"

// PageClass is the role a page plays in the site hierarchy.
// A page's class is decided by its <title> alone.
type PageClass int

const (
	// PageUnclassifiable is a page whose title names neither a soundboard nor a
	// category. Links found on such pages are ignored.
	PageUnclassifiable PageClass = iota

	// PageCategory is an index page listing further categories or soundboards.
	// Its title contains "Soundboards".
	PageCategory

	// PageSoundboard is a leaf page with a playable sound manifest.
	// Its title contains "Soundboard" but not "Soundboards".
	PageSoundboard
)

// Title markers. Matching is case-sensitive.
const (
	categoryMarker   = "Soundboards"
	soundboardMarker = "Soundboard"
)

// SiteSuffixMarker starts the site-wide part of every page title, e.g.
// " - Realm of Darkness.net - Soundboards for Mobile, Android, ...".
const SiteSuffixMarker = " - Realm"

// TrimSiteSuffix cuts title at the first SiteSuffixMarker.
func TrimSiteSuffix(title string) string {
	head, _, _ := strings.Cut(title, SiteSuffixMarker)
	return head
}

// Classify maps a page title to a PageClass. The site suffix is cut first,
// since it mentions "Soundboards" on every page. "Soundboards" is checked
// before "Soundboard" because every category title also contains the
// singular.
func Classify(title string) PageClass {
	title = TrimSiteSuffix(title)
	switch {
	case strings.Contains(title, categoryMarker):
		return PageCategory
	case strings.Contains(title, soundboardMarker):
		return PageSoundboard
	default:
		return PageUnclassifiable
	}
}

// String returns a human-readable representation of the page class.
func (c PageClass) String() string {
	switch c {
	case PageCategory:
		return "category"
	case PageSoundboard:
		return "soundboard"
	case PageUnclassifiable:
		return "unclassifiable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so classes read naturally
// in JSON reports and log lines.
func (c PageClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
