// Package report renders run summaries and download progress.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for sharing and archiving
//
// ProgressPrinter turns the downloader's progress events into the
// single-line bar drawn while a soundboard downloads.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
