package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sbdl/internal/model"
)

// MarkdownWriter outputs run summaries in Markdown format.
// This format is designed for documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeTotals(md, summary)
	w.writeSoundboards(md, summary)
	w.writeCrawlFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.RunSummary) {
	md.H1("sbdl Run Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + summary.ID + "`"},
			{"Command", summary.Command},
			{"Root", summary.Root},
			{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", summary.Duration().Round(time.Second).String()},
			{"Status", w.statusText(summary)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(summary *model.RunSummary) string {
	switch s := status(summary); s {
	case "Interrupted":
		return "⚠️ " + s
	case "Complete":
		return "✅ " + s
	default:
		return "❌ " + s
	}
}

func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Totals")
	md.PlainText("")

	rows := [][]string{
		{"Soundboards discovered", strconv.Itoa(summary.SoundboardsDiscovered)},
		{"Files downloaded", strconv.Itoa(summary.FilesDownloaded)},
		{"Files skipped", strconv.Itoa(summary.FilesSkipped)},
		{"Files failed", strconv.Itoa(summary.FilesFailed)},
		{"Bytes downloaded", formatBytes(summary.BytesDownloaded)},
	}
	if summary.Command == "crawl" {
		rows = append([][]string{{"Pages visited", strconv.Itoa(summary.PagesVisited)}}, rows...)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if summary.FilesDownloaded+summary.FilesSkipped+summary.FilesFailed > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of file outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("File Outcomes"),
		piechart.WithShowData(true),
	)

	if summary.FilesDownloaded > 0 {
		chart.LabelAndIntValue("Downloaded", uint64(summary.FilesDownloaded))
	}
	if summary.FilesSkipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(summary.FilesSkipped))
	}
	if summary.FilesFailed > 0 {
		chart.LabelAndIntValue("Failed", uint64(summary.FilesFailed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.RunSummary) {
	failed := len(summary.FailedSoundboards())
	switch {
	case summary.Interrupted:
		md.Warningf("The run was interrupted. Run the same command again to resume.")
	case failed > 0:
		md.Cautionf("%d soundboard(s) could not be resolved.", failed)
	case summary.FilesFailed > 0:
		md.Importantf("%d file(s) failed after retries. Run again to retry them.", summary.FilesFailed)
	case len(summary.CrawlFailures) > 0:
		md.Note(strconv.Itoa(len(summary.CrawlFailures)) + " page(s) could not be crawled.")
	default:
		md.Tip("Everything is up to date.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeSoundboards(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Soundboards")
	md.PlainText("")

	if len(summary.Soundboards) == 0 {
		md.PlainText("No soundboards were processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Soundboards))
	for i, r := range summary.Soundboards {
		name := r.DisplayName
		if name == "" {
			name = "-"
		}
		note := "-"
		switch {
		case r.Error != "":
			note = truncateString(r.Error, 60)
		case len(r.Failed) > 0:
			note = truncateString("failed: "+strings.Join(r.Failed, ", "), 60)
		}
		rows[i] = []string{
			name,
			strconv.Itoa(r.Downloaded),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(len(r.Failed)),
			note,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Soundboard", "Downloaded", "Skipped", "Failed", "Notes"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range summary.Soundboards {
		if len(r.Failed) > 0 {
			md.Details(r.DisplayName, strings.Join(r.Failed, "\n"))
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeCrawlFailures(md *markdown.Markdown, summary *model.RunSummary) {
	if len(summary.CrawlFailures) == 0 {
		return
	}

	md.H2("Crawl Failures")
	md.PlainText("")

	items := make([]string, len(summary.CrawlFailures))
	for i, f := range summary.CrawlFailures {
		items[i] = "`" + f.URL + "`: " + f.Error
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sbdl](https://github.com/nao1215/sbdl)*")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
