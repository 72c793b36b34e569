package config

import "errors"

// Configuration validation errors.
// These are returned by the Validate methods so callers can match them
// with errors.Is.
var (
	// ErrNoTarget is returned when scrape is run without any soundboard URL.
	ErrNoTarget = errors.New("no target specified: provide at least one soundboard URL")

	// ErrInvalidTarget is returned when a scrape target is not an http(s) URL.
	ErrInvalidTarget = errors.New("invalid target: must be an absolute http or https URL")

	// ErrInvalidBaseURL is returned when the site base URL is not an http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrInvalidRootURL is returned when the crawl root is not an http(s) URL.
	ErrInvalidRootURL = errors.New("invalid root URL: must be an absolute http or https URL")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidRetryBackoff is returned when the retry backoff is negative.
	ErrInvalidRetryBackoff = errors.New("invalid retry backoff: must be non-negative")

	// ErrInvalidRate is returned when the request rate is negative.
	ErrInvalidRate = errors.New("invalid rate: must be non-negative; use 0 to disable pacing")

	// ErrInvalidConcurrency is returned when the download concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid jobs: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidDepth is returned when the maximum crawl depth is negative.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative; use 0 for unlimited")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingTransports is returned when both --tor and --proxy are set.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")
)
