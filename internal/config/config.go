package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultBaseURL is the site every soundboard lives on.
	DefaultBaseURL = "https://www.realmofdarkness.net"

	// DefaultRootPath is the soundboard index that a full crawl starts from.
	DefaultRootPath = "/sb/soundboards/"

	// DefaultLinkPath is the path prefix a link must have to be followed.
	DefaultLinkPath = "/sb/"

	// DefaultOutputDir is where soundboard directories are created.
	DefaultOutputDir = "sounds"

	// DefaultTimeout bounds a single HTTP request, including reading the body.
	// Large soundboards serve multi-megabyte clips, so this is generous.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is how many times a failed sound download is retried.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the base delay between retries. It doubles on
	// each attempt.
	DefaultRetryBackoff = 500 * time.Millisecond

	// DefaultRequestsPerSecond paces all requests to the site.
	DefaultRequestsPerSecond = 2.0

	// DefaultConcurrency is the number of sounds fetched in parallel within
	// one soundboard. One keeps the original sequential behaviour.
	DefaultConcurrency = 1

	// DefaultBatchSize is the number of soundboards scraped in parallel by
	// the scrape command.
	DefaultBatchSize = 1

	// DefaultMaxDepth of zero means the crawl is not depth limited.
	DefaultMaxDepth = 0

	// AppName is the application name used for XDG directory paths.
	AppName = "sbdl"

	// DefaultUserAgent mimics a desktop browser; the site serves a reduced
	// page to unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"

	// DefaultMaxBodySize limits how much of a page or manifest is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// DefaultHeaders are sent with every request unless overridden.
var DefaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Connection":      "keep-alive",
}

// Config holds all configuration options for sbdl.
// It is populated from CLI flags and the optional config file, then passed
// down explicitly; nothing reads global state.
type Config struct {
	// BaseURL is the scheme and host of the site, without a trailing slash.
	BaseURL string

	// RootURL is where a crawl starts. Defaults to BaseURL + DefaultRootPath.
	RootURL string

	// OutputDir is the directory soundboard folders are created in.
	OutputDir string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts for a failed sound download
	// or a transient page fetch failure.
	MaxRetries int

	// RetryBackoff is the base delay between retries.
	RetryBackoff time.Duration

	// RequestsPerSecond paces outbound requests. Zero disables pacing.
	RequestsPerSecond float64

	// Concurrency is the number of parallel sound downloads per soundboard.
	Concurrency int

	// BatchSize is the number of soundboards scraped in parallel.
	BatchSize int

	// MaxDepth limits how many category levels below the root are
	// expanded. Zero means unlimited.
	MaxDepth int

	// ExcludeURLs are exact URLs the crawler never follows, in addition to
	// DefaultExcludeURLs.
	ExcludeURLs []string

	// IgnorePatterns are glob patterns matched against link paths.
	IgnorePatterns []string

	// Headers are extra HTTP request headers.
	Headers map[string]string

	// Cookie is sent as the Cookie header when non-empty.
	Cookie string

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum page or manifest size in bytes to read.
	MaxBodySize int64

	// RespectRobots enables robots.txt checks for crawled links.
	RespectRobots bool

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes all traffic through it.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap.
	TorStartupTimeout time.Duration

	// Verbose enables debug log output.
	Verbose bool

	// LogFile, when set, receives a JSON copy of every Info and higher
	// record, appended across runs.
	LogFile string

	// ConfigFilePath is the path to the configuration file. If empty, the
	// tool searches the current directory and then the home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configuration from the config file.
	SiteConfigs *File

	// JSONReport selects JSON run reports.
	JSONReport bool

	// MarkdownReport selects Markdown run reports.
	MarkdownReport bool

	// ReportFile writes the run report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory holding the history database.
	DBDir string

	// SaveToDB records runs, soundboards and artifacts in the history
	// database.
	SaveToDB bool

	// Targets are the soundboard URLs given to the scrape command.
	Targets []string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	headers := make(map[string]string, len(DefaultHeaders))
	for k, v := range DefaultHeaders {
		headers[k] = v
	}

	return &Config{
		BaseURL:           DefaultBaseURL,
		RootURL:           DefaultBaseURL + DefaultRootPath,
		OutputDir:         DefaultOutputDir,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryBackoff:      DefaultRetryBackoff,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Concurrency:       DefaultConcurrency,
		BatchSize:         DefaultBatchSize,
		MaxDepth:          DefaultMaxDepth,
		Headers:           headers,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// DefaultExcludeURLs returns the pages that link to everything and are never
// followed: the soundboard home, the index itself, contact and privacy.
func DefaultExcludeURLs(baseURL string) []string {
	base := strings.TrimRight(baseURL, "/")
	return []string{
		base + "/sb/",
		base + "/sb/soundboards",
		base + "/sb/contact",
		base + "/sb/privacy",
	}
}

// LinkPrefix returns the prefix a link must have to be followed.
func (c *Config) LinkPrefix() string {
	return strings.TrimRight(c.BaseURL, "/") + DefaultLinkPath
}

// Excluded returns the full exact-match exclusion list.
func (c *Config) Excluded() []string {
	return append(DefaultExcludeURLs(c.BaseURL), c.ExcludeURLs...)
}

// Host returns the host part of BaseURL, used to look up site config.
func (c *Config) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ApplySiteConfig merges file-level settings for the configured host into c.
// Values already set explicitly on the command line win; callers pass those
// in via the explicit set.
func (c *Config) ApplySiteConfig(sc SiteConfig, explicit map[string]bool) {
	if sc.Cookie != "" && !explicit["cookie"] {
		c.Cookie = sc.Cookie
	}
	if sc.UserAgent != "" && !explicit["user-agent"] {
		c.UserAgent = sc.UserAgent
	}
	for k, v := range sc.Headers {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[k] = v
	}
	if sc.Depth != 0 && !explicit["depth"] {
		c.MaxDepth = sc.Depth
	}
	if sc.Rate != 0 && !explicit["rate"] {
		c.RequestsPerSecond = sc.Rate
	}
	c.ExcludeURLs = append(c.ExcludeURLs, sc.Exclude...)
	c.IgnorePatterns = append(c.IgnorePatterns, sc.IgnorePatterns...)
}

// XDGDataDir returns the XDG data directory for sbdl.
// On Linux: ~/.local/share/sbdl
// On macOS: ~/Library/Application Support/sbdl
// On Windows: %LOCALAPPDATA%\sbdl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sbdl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for sbdl. The embedded Tor
// daemon keeps its state here.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors.
func (c *Config) Validate() error {
	if err := validateHTTPURL(c.BaseURL); err != nil {
		return ErrInvalidBaseURL
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}

	if c.RetryBackoff < 0 {
		return ErrInvalidRetryBackoff
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}

	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}

	return nil
}

// ValidateCrawl additionally checks the crawl root.
func (c *Config) ValidateCrawl() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := validateHTTPURL(c.RootURL); err != nil {
		return ErrInvalidRootURL
	}
	return nil
}

// ValidateScrape additionally checks the explicit soundboard targets.
func (c *Config) ValidateScrape() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, t := range c.Targets {
		if err := validateHTTPURL(t); err != nil {
			return ErrInvalidTarget
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	return nil
}
