package model

import (
	"sort"
	"time"
)

// ProgressEvent is emitted by the bulk downloader after every finished item,
// successful or not.
type ProgressEvent struct {
	// Soundboard is the display name of the soundboard being downloaded.
	Soundboard string

	// Identifier is the sound that just finished.
	Identifier string

	// Completed is the number of finished items, including this one.
	Completed int

	// Total is the number of items in the job.
	Total int

	// Err is non-nil when the item failed after all retries.
	Err error
}

// Done reports whether this event closes the job.
func (e ProgressEvent) Done() bool {
	return e.Completed >= e.Total
}

// ProgressFunc receives progress events. Implementations must be safe for
// concurrent use when the downloader runs with more than one worker.
type ProgressFunc func(ProgressEvent)

// Artifact is one sound file written to disk.
type Artifact struct {
	// Identifier is the manifest entry the file was fetched for.
	Identifier string `json:"identifier"`

	// Path is where the file was written.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// Checksum is the hex-encoded BLAKE2b-256 digest of the file.
	Checksum string `json:"checksum"`

	// DownloadedAt is when the file was renamed into place.
	DownloadedAt time.Time `json:"downloaded_at"`
}

// DownloadResult is what a single bulk download produced.
type DownloadResult struct {
	// Artifacts lists successfully written files in completion order.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Failed maps identifiers to the last error seen for them.
	Failed map[string]string `json:"failed,omitempty"`

	// Bytes is the total number of bytes written.
	Bytes int64 `json:"bytes"`
}

// NewDownloadResult returns an empty result ready for use.
func NewDownloadResult() *DownloadResult {
	return &DownloadResult{Failed: make(map[string]string)}
}

// Downloaded returns the number of artifacts written.
func (r *DownloadResult) Downloaded() int {
	return len(r.Artifacts)
}

// FailedIdentifiers returns failed identifiers in lexical order.
func (r *DownloadResult) FailedIdentifiers() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SoundboardResult is the outcome of one soundboard pipeline run.
type SoundboardResult struct {
	// URL is the soundboard page URL.
	URL string `json:"url"`

	// DisplayName is the output directory name. Empty if resolution failed.
	DisplayName string `json:"display_name,omitempty"`

	// ManifestSize is the number of identifiers declared by the manifest.
	ManifestSize int `json:"manifest_size"`

	// Downloaded is the number of files written in this run.
	Downloaded int `json:"downloaded"`

	// Skipped is the number of files that already existed.
	Skipped int `json:"skipped"`

	// Failed lists identifiers that could not be downloaded.
	Failed []string `json:"failed,omitempty"`

	// Bytes is the number of bytes written in this run.
	Bytes int64 `json:"bytes"`

	// Error contains the fatal error for this soundboard, if any.
	Error string `json:"error,omitempty"`

	// Duration is how long the pipeline took.
	Duration time.Duration `json:"duration"`
}

// OK reports whether the soundboard finished without a fatal error or
// failed identifiers.
func (r SoundboardResult) OK() bool {
	return r.Error == "" && len(r.Failed) == 0
}
