package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sbdl/internal/model"
)

// SimpleWriter outputs human-readable text summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every soundboard, not just the failed ones.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every soundboard in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeTotals(&sb, summary)
	w.writeSoundboards(&sb, summary)
	w.writeCrawlFailures(&sb, summary)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                           SBDL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Run:       %s (%s)\n", summary.ID, summary.Command))
	sb.WriteString(fmt.Sprintf("Root:      %s\n", summary.Root))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", summary.Duration().Round(time.Second)))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", status(summary)))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, summary *model.RunSummary) {
	sectionHeader(sb, "TOTALS")

	if summary.Command == "crawl" {
		sb.WriteString(fmt.Sprintf("  Pages visited:          %d\n", summary.PagesVisited))
	}
	sb.WriteString(fmt.Sprintf("  Soundboards discovered: %d\n", summary.SoundboardsDiscovered))
	sb.WriteString(fmt.Sprintf("  Files downloaded:       %d (%s)\n", summary.FilesDownloaded, formatBytes(summary.BytesDownloaded)))
	sb.WriteString(fmt.Sprintf("  Files skipped:          %d\n", summary.FilesSkipped))
	sb.WriteString(fmt.Sprintf("  Files failed:           %d\n", summary.FilesFailed))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSoundboards(sb *strings.Builder, summary *model.RunSummary) {
	boards := summary.Soundboards
	if !w.verbose {
		boards = nil
		for _, r := range summary.Soundboards {
			if !r.OK() {
				boards = append(boards, r)
			}
		}
	}
	if len(boards) == 0 {
		return
	}

	if w.verbose {
		sectionHeader(sb, "SOUNDBOARDS")
	} else {
		sectionHeader(sb, "PROBLEMS")
	}

	for _, r := range boards {
		name := r.DisplayName
		if name == "" {
			name = r.URL
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", indicator(r), name))
		if r.Error != "" {
			sb.WriteString(fmt.Sprintf("    Error: %s\n", r.Error))
			continue
		}
		sb.WriteString(fmt.Sprintf("    %d downloaded, %d skipped, %d failed\n", r.Downloaded, r.Skipped, len(r.Failed)))
		if len(r.Failed) > 0 {
			sb.WriteString(fmt.Sprintf("    Failed: %s\n", strings.Join(r.Failed, ", ")))
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCrawlFailures(sb *strings.Builder, summary *model.RunSummary) {
	if len(summary.CrawlFailures) == 0 {
		return
	}

	sectionHeader(sb, "CRAWL FAILURES")
	for _, f := range summary.CrawlFailures {
		sb.WriteString(fmt.Sprintf("  * %s\n    %s\n", f.URL, f.Error))
	}
	sb.WriteString("\n")
}

func sectionHeader(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// indicator returns a short marker for a soundboard outcome.
func indicator(r model.SoundboardResult) string {
	switch {
	case r.Error != "":
		return "!!"
	case len(r.Failed) > 0:
		return "!"
	default:
		return "+"
	}
}
