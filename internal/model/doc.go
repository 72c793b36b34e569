// Package model defines the data structures shared by the crawler, the
// downloader, the history database and the report writers.
//
// This package contains the following main types:
//   - Page: a fetched page or manifest
//   - PageClass: how a page title places it in the site hierarchy
//   - Soundboard and DownloadJob: a resolved soundboard and the work left on it
//   - ProgressEvent: per-item download progress
//   - RunSummary: the end-of-run report
//
// Keeping these types here lets crawler, download, database and report
// depend on one another only through plain data.
package model
