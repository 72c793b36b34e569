package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CrawlFailure records a page the crawler could not read.
type CrawlFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// RunSummary is the end-of-run report for a crawl or scrape invocation.
// It is safe for concurrent use: batch scrapes add results from several
// goroutines.
type RunSummary struct {
	mu sync.Mutex

	// ID uniquely identifies the run in the history database.
	ID string `json:"id"`

	// Command is "crawl" or "scrape".
	Command string `json:"command"`

	// Root is the crawl root, or the first target for scrapes.
	Root string `json:"root"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended. Zero while running.
	FinishedAt time.Time `json:"finished_at"`

	// PagesVisited is the number of category pages expanded.
	PagesVisited int `json:"pages_visited"`

	// SoundboardsDiscovered counts soundboard pages found by the crawler,
	// or targets given to scrape.
	SoundboardsDiscovered int `json:"soundboards_discovered"`

	// FilesDownloaded is the total of files written across soundboards.
	FilesDownloaded int `json:"files_downloaded"`

	// FilesSkipped is the total of files that already existed.
	FilesSkipped int `json:"files_skipped"`

	// FilesFailed is the total of identifiers that failed after retries.
	FilesFailed int `json:"files_failed"`

	// BytesDownloaded is the total number of bytes written.
	BytesDownloaded int64 `json:"bytes_downloaded"`

	// Soundboards holds the per-soundboard outcomes in completion order.
	Soundboards []SoundboardResult `json:"soundboards"`

	// CrawlFailures lists pages that could not be fetched or parsed.
	CrawlFailures []CrawlFailure `json:"crawl_failures,omitempty"`

	// Interrupted is true when the run was cancelled before finishing.
	Interrupted bool `json:"interrupted,omitempty"`
}

// NewRunSummary starts a summary with a fresh run ID.
func NewRunSummary(command, root string) *RunSummary {
	return &RunSummary{
		ID:        uuid.NewString(),
		Command:   command,
		Root:      root,
		StartedAt: time.Now(),
	}
}

// AddSoundboard records one soundboard outcome and updates the totals.
func (s *RunSummary) AddSoundboard(r SoundboardResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Soundboards = append(s.Soundboards, r)
	s.FilesDownloaded += r.Downloaded
	s.FilesSkipped += r.Skipped
	s.FilesFailed += len(r.Failed)
	s.BytesDownloaded += r.Bytes
}

// AddCrawlFailure records a page the crawler could not read.
func (s *RunSummary) AddCrawlFailure(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CrawlFailures = append(s.CrawlFailures, CrawlFailure{URL: url, Error: err.Error()})
}

// SetCrawlStats copies crawler counters into the summary.
func (s *RunSummary) SetCrawlStats(pagesVisited, discovered int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.PagesVisited = pagesVisited
	s.SoundboardsDiscovered = discovered
}

// Finish stamps the end time.
func (s *RunSummary) Finish(interrupted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FinishedAt = time.Now()
	s.Interrupted = interrupted
}

// Duration returns the run's wall-clock time so far.
func (s *RunSummary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailedSoundboards returns results that carry a fatal error.
func (s *RunSummary) FailedSoundboards() []SoundboardResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []SoundboardResult
	for _, r := range s.Soundboards {
		if r.Error != "" {
			failed = append(failed, r)
		}
	}
	return failed
}

// HasFailures reports whether anything in the run went wrong.
func (s *RunSummary) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FilesFailed > 0 || len(s.CrawlFailures) > 0 {
		return true
	}
	for _, r := range s.Soundboards {
		if r.Error != "" {
			return true
		}
	}
	return false
}
