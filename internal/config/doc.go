// Package config provides configuration structures and utilities for sbdl.
// It defines the site, transport, crawl and download settings, the optional
// YAML config file with per-host overrides, and the XDG locations used for
// the history database and config lookup.
package config
