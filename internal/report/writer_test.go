package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/sbdl/internal/model"
)

// createTestSummary creates a finished crawl summary with one clean
// soundboard, one with failed files and one that could not be resolved.
func createTestSummary() *model.RunSummary {
	s := model.NewRunSummary("crawl", "https://www.realmofdarkness.net/sb/")
	s.SetCrawlStats(4, 3)
	s.AddSoundboard(model.SoundboardResult{
		URL:          "https://www.realmofdarkness.net/sb/koth-hank/",
		DisplayName:  "Hank Hill Soundboard",
		ManifestSize: 3,
		Downloaded:   2,
		Skipped:      1,
		Bytes:        2048,
	})
	s.AddSoundboard(model.SoundboardResult{
		URL:          "https://www.realmofdarkness.net/sb/simpsons-homer/",
		DisplayName:  "Homer Simpson Soundboard",
		ManifestSize: 2,
		Downloaded:   1,
		Failed:       []string{"doh"},
		Bytes:        1024,
	})
	s.AddSoundboard(model.SoundboardResult{
		URL:   "https://www.realmofdarkness.net/sb/broken/",
		Error: "no manifest script found",
	})
	s.AddCrawlFailure("https://www.realmofdarkness.net/sb/dead/", errors.New("HTTP 500"))
	s.Finish(false)
	return s
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and totals", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		s := createTestSummary()
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"SBDL SUMMARY",
			s.ID,
			"Pages visited:          4",
			"Files downloaded:       3 (3.0 KiB)",
			"Files skipped:          1",
			"Files failed:           1",
			"Completed with failures",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("lists only problems by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}

		output := buf.String()
		if !strings.Contains(output, "PROBLEMS") {
			t.Error("expected problems section")
		}
		if strings.Contains(output, "Hank Hill Soundboard") {
			t.Error("clean soundboard must be hidden without verbose")
		}
		if !strings.Contains(output, "Failed: doh") {
			t.Error("expected failed identifiers")
		}
		if !strings.Contains(output, "Error: no manifest script found") {
			t.Error("expected soundboard error")
		}
		if !strings.Contains(output, "CRAWL FAILURES") {
			t.Error("expected crawl failures section")
		}
	})

	t.Run("verbose lists every soundboard", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "[+] Hank Hill Soundboard") {
			t.Error("expected clean soundboard in verbose output")
		}
	})

	t.Run("clean scrape", func(t *testing.T) {
		t.Parallel()

		s := model.NewRunSummary("scrape", "https://example.com/sb/a/")
		s.AddSoundboard(model.SoundboardResult{URL: "https://example.com/sb/a/", DisplayName: "A", Skipped: 3})
		s.Finish(false)

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "Status:    Complete") {
			t.Error("expected complete status")
		}
		if strings.Contains(output, "Pages visited") {
			t.Error("scrape summary must not show crawl counters")
		}
		if strings.Contains(output, "PROBLEMS") {
			t.Error("clean run must not have a problems section")
		}
	})

	t.Run("interrupted", func(t *testing.T) {
		t.Parallel()

		s := model.NewRunSummary("crawl", "root")
		s.Finish(true)

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "Interrupted") {
			t.Error("expected interrupted status")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("outputs valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		s := createTestSummary()
		if _, err := NewJSONWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got model.RunSummary
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.ID != s.ID || got.FilesDownloaded != 3 || len(got.Soundboards) != 3 {
			t.Errorf("decoded id = %q, downloaded = %d, soundboards = %d",
				got.ID, got.FilesDownloaded, len(got.Soundboards))
		}
	})

	t.Run("compact output by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected single line of output")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "\n  \"id\"") {
			t.Error("expected indented output")
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "\n>\t\"id\"") {
			t.Errorf("expected prefix and tab indent, got %q", buf.String()[:40])
		}
	})

	t.Run("version wrapper", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithVersion("v1.2.3")).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}

		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Version != "v1.2.3" || got.Summary == nil || got.Summary.Command != "crawl" {
			t.Errorf("decoded = %+v", got)
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		s := createTestSummary()
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# sbdl Run Summary",
			"`" + s.ID + "`",
			"## Totals",
			"## Soundboards",
			"Hank Hill Soundboard",
			"failed: doh",
			"## Crawl Failures",
			"```mermaid",
			"[!CAUTION]",
			"https://github.com/nao1215/sbdl",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("up to date run", func(t *testing.T) {
		t.Parallel()

		s := model.NewRunSummary("scrape", "https://example.com/sb/a/")
		s.Finish(false)

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") {
			t.Error("expected tip alert")
		}
		if strings.Contains(output, "```mermaid") {
			t.Error("empty run must not draw a chart")
		}
		if !strings.Contains(output, "No soundboards were processed.") {
			t.Error("expected empty soundboard notice")
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

		n, err := mw.Write(createTestSummary())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected output in both writers")
		}
		if n != text.Len()+js.Len() {
			t.Errorf("n = %d, want %d", n, text.Len()+js.Len())
		}
	})

	t.Run("handles empty writers list", func(t *testing.T) {
		t.Parallel()

		n, err := NewMultiWriter().Write(createTestSummary())
		if err != nil || n != 0 {
			t.Errorf("got %d, %v", n, err)
		}
	})
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			if got := formatBytes(tt.in); got != tt.want {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"ééééé", 4, "é..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
