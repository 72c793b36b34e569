package config

import "strings"

// SiteConfig holds configuration for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// UserAgent overrides the default User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the crawl depth limit for this site.
	// If zero, the command-line value is used.
	Depth int `yaml:"depth,omitempty"`

	// Rate overrides the requests-per-second limit for this site.
	Rate float64 `yaml:"rate,omitempty"`

	// Exclude lists exact URLs that are never followed.
	Exclude []string `yaml:"exclude,omitempty"`

	// IgnorePatterns are URL path patterns to skip during crawling,
	// matched using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`
}

// File represents the structure of the .sbdl configuration file.
type File struct {
	// Sites maps host names (e.g. "www.realmofdarkness.net") to their
	// configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden per site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host, merging the
// site-specific entry over the defaults. host is matched case-insensitively.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if cf.Defaults.Headers != nil {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.Rate != 0 {
		result.Rate = siteConfig.Rate
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.Exclude) > 0 {
		result.Exclude = siteConfig.Exclude
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}

	return result
}
