package model

import (
	"net/url"
	"strings"
)

// IdentifierPlaceholder is the slot in an audio URL template that receives
// a sound identifier.
const IdentifierPlaceholder = "%s"

// AudioExtension is the file extension of every downloaded artifact.
const AudioExtension = ".mp3"

// Soundboard is a resolved soundboard page: where its sounds live and what
// they are called.
type Soundboard struct {
	// URL is the soundboard page URL as discovered by the crawler.
	URL string `json:"url"`

	// Title is the raw <title> of the page.
	Title string `json:"title"`

	// DisplayName is the sanitized title used as the output directory name.
	DisplayName string `json:"display_name"`

	// ManifestURL is the absolute URL of the sounds.js manifest.
	ManifestURL string `json:"manifest_url"`

	// AudioURLTemplate is an absolute URL with exactly one "%s" slot for
	// the sound identifier.
	AudioURLTemplate string `json:"audio_url_template"`

	// Manifest lists the sound identifiers in declared order.
	Manifest []string `json:"manifest"`
}

// DownloadJob is the unit of work handed to the bulk downloader.
// Manifest holds only identifiers that are still missing locally.
type DownloadJob struct {
	// Soundboard is the display name, used for progress and logging.
	Soundboard string

	// Directory is the absolute or working-directory-relative target dir.
	Directory string

	// AudioURLTemplate has one "%s" slot for the identifier.
	AudioURLTemplate string

	// Manifest is the ordered list of identifiers to fetch.
	Manifest []string
}

// AudioURL fills the template slot with the path-escaped identifier.
func (j DownloadJob) AudioURL(identifier string) string {
	return strings.Replace(j.AudioURLTemplate, IdentifierPlaceholder, url.PathEscape(identifier), 1)
}

// ArtifactName returns the file name stored for identifier.
func ArtifactName(identifier string) string {
	return identifier + AudioExtension
}
