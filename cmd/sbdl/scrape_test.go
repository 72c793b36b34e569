package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/sbdl/internal/database"
	"github.com/nao1215/sbdl/internal/report"
)

func TestNewScrapeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScrapeCmd()

	flags := map[string]string{
		"batch":      "b",
		"output-dir": "o",
		"jobs":       "j",
		"timeout":    "t",
		"retries":    "r",
		"config":     "c",
	}
	for name, shorthand := range flags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			t.Errorf("expected %s flag", name)
			continue
		}
		if flag.Shorthand != shorthand {
			t.Errorf("flag %s: expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
		}
	}
	for _, name := range []string{"rate", "cookie", "user-agent", "proxy", "tor", "json", "markdown", "report", "no-history", "data-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// readJSONReport decodes a report written with --json.
func readJSONReport(t *testing.T, path string) report.JSONReport {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var rep report.JSONReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, data)
	}
	if rep.Summary == nil {
		t.Fatal("report has no summary")
	}
	return rep
}

func TestScrapeCommand(t *testing.T) {
	emptyConfig := writeConfigFile(t, "sites: {}\n")

	t.Run("downloads only missing sounds", func(t *testing.T) {
		site := newTestSite(t)
		out := t.TempDir()
		reportPath := filepath.Join(t.TempDir(), "reports", "scrape.json")

		dir := filepath.Join(out, "Hank Soundboard Test")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "b.mp3"), []byte("old"), 0o600); err != nil {
			t.Fatal(err)
		}

		_, err := executeRoot(t, "scrape", "-c", emptyConfig, "-o", out, "--rate", "0",
			"--no-history", "--json", "--report", reportPath, site.srv.URL+"/sb/hank/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, id := range []string{"a", "c"} {
			data, err := os.ReadFile(filepath.Join(dir, id+".mp3"))
			if err != nil || string(data) != "mp3:"+id {
				t.Errorf("%s.mp3 = %q, %v", id, data, err)
			}
		}
		if data, _ := os.ReadFile(filepath.Join(dir, "b.mp3")); string(data) != "old" {
			t.Error("existing file must not be touched")
		}
		if site.audioCalls.Load() != 2 {
			t.Errorf("audio requests = %d, want 2", site.audioCalls.Load())
		}

		rep := readJSONReport(t, reportPath)
		if rep.Version == "" {
			t.Error("report must carry the version")
		}
		s := rep.Summary
		if s.Command != "scrape" || s.FilesDownloaded != 2 || s.FilesSkipped != 1 || s.FilesFailed != 0 {
			t.Errorf("summary = %+v", s)
		}
	})

	t.Run("repeated target is scraped once", func(t *testing.T) {
		site := newTestSite(t)
		reportPath := filepath.Join(t.TempDir(), "scrape.json")
		target := site.srv.URL + "/sb/hank/"

		_, err := executeRoot(t, "scrape", "-c", emptyConfig, "-o", t.TempDir(), "--rate", "0",
			"-b", "2", "--no-history", "--json", "--report", reportPath, target, target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := site.audioCalls.Load(); got != 3 {
			t.Errorf("audio requests = %d, want 3", got)
		}
		s := readJSONReport(t, reportPath).Summary
		if len(s.Soundboards) != 1 || s.FilesDownloaded != 3 {
			t.Errorf("soundboards = %d, downloaded = %d", len(s.Soundboards), s.FilesDownloaded)
		}
	})

	t.Run("failed soundboard does not fail the run", func(t *testing.T) {
		site := newTestSite(t)
		reportPath := filepath.Join(t.TempDir(), "scrape.json")

		_, err := executeRoot(t, "scrape", "-c", emptyConfig, "-o", t.TempDir(), "--rate", "0",
			"-r", "0", "--no-history", "--json", "--report", reportPath,
			site.srv.URL+"/sb/broken/", site.srv.URL+"/sb/bobby/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s := readJSONReport(t, reportPath).Summary
		if len(s.Soundboards) != 2 {
			t.Fatalf("expected 2 soundboards, got %d", len(s.Soundboards))
		}
		if s.Soundboards[0].Error == "" {
			t.Error("broken soundboard must carry its error")
		}
		if s.FilesDownloaded != 3 {
			t.Errorf("FilesDownloaded = %d", s.FilesDownloaded)
		}
	})

	t.Run("log file keeps info records", func(t *testing.T) {
		site := newTestSite(t)
		logPath := filepath.Join(t.TempDir(), "logs", "sbdl.log")

		_, err := executeRoot(t, "scrape", "-c", emptyConfig, "-o", t.TempDir(), "--rate", "0",
			"--no-history", "--report", filepath.Join(t.TempDir(), "scrape.txt"),
			"--log-file", logPath, "--cookie", "PHPSESSID=abc123", site.srv.URL+"/sb/hank/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("log file missing: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"starting scrape"`) {
			t.Errorf("log file lacks the start record:\n%s", data)
		}
		if strings.Contains(string(data), "abc123") {
			t.Error("cookie must not reach the log file")
		}
	})

	t.Run("batch scrape records history", func(t *testing.T) {
		site := newTestSite(t)
		out := t.TempDir()
		dataDir := t.TempDir()
		reportPath := filepath.Join(t.TempDir(), "scrape.txt")

		_, err := executeRoot(t, "scrape", "-c", emptyConfig, "-o", out, "--rate", "0",
			"-b", "2", "--data-dir", dataDir, "--report", reportPath,
			site.srv.URL+"/sb/hank/", site.srv.URL+"/sb/bobby/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, name := range []string{"Hank Soundboard Test", "Bobby Soundboard Test"} {
			entries, err := os.ReadDir(filepath.Join(out, name))
			if err != nil || len(entries) != 3 {
				t.Errorf("%s: %d files, %v", name, len(entries), err)
			}
		}

		db, err := database.Open(dataDir, database.Options{})
		if err != nil {
			t.Fatalf("history database missing: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(t.Context(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].Downloaded != 6 || runs[0].Soundboards != 2 {
			t.Errorf("runs = %+v", runs)
		}

		artifacts, err := db.ListArtifacts(t.Context(), site.srv.URL+"/sb/hank/")
		if err != nil {
			t.Fatal(err)
		}
		if len(artifacts) != 3 {
			t.Errorf("expected 3 artifacts, got %d", len(artifacts))
		}

		if data, err := os.ReadFile(reportPath); err != nil || len(data) == 0 {
			t.Errorf("text report missing: %v", err)
		}
	})
}
