// Package fetch is the HTTP layer of sbdl.
//
// Client.Fetch reads pages and manifests into a model.Page, retrying
// transient failures (network errors, 408, 429, 5xx) with exponential
// backoff. Client.Download streams audio into any io.Writer with a single
// attempt, leaving retries to the caller that owns the output file.
//
// Every request carries the configured browser headers and cookie, and all
// requests share one x/time/rate limiter so a crawl never hammers the site.
// The transport is pluggable: the tor package supplies SOCKS5 transports
// for --proxy and --tor.
package fetch
