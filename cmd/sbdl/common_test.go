package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/sbdl/internal/config"
	"github.com/spf13/cobra"
)

// testSite serves a small soundboard site. "/sb/soundboards/" and
// "/sb/koth/" are categories; any other "/sb/<name>/" is a soundboard
// whose manifest is "a", "b", "c" and which links to the boards in links.
type testSite struct {
	srv        *httptest.Server
	audioCalls atomic.Int32
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	s := &testSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sb/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sb/"), "/")
		switch name {
		case "soundboards":
			fmt.Fprint(w, `<html><head><title>Soundboards - Realm of Darkness.net</title></head>
<body><a href="/sb/">Home</a><a href="/sb/koth/">King of the Hill</a></body></html>`)
		case "koth":
			fmt.Fprint(w, `<html><head><title>King of the Hill Soundboards - Realm of Darkness.net</title></head>
<body><a href="/sb/hank/">Hank</a><a href="/sb/bobby/">Bobby</a></body></html>`)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprintf(w, `<html><head><title>%s Soundboard: Test - Realm of Darkness.net</title>
<script src="/scripts/sb/%s/1/sounds.js"></script></head>
<body><a href="/sb/hank/">Hank</a><a href="/sb/bobby/">Bobby</a></body></html>`,
				strings.ToUpper(name[:1])+name[1:], name)
		}
	})
	mux.HandleFunc("/scripts/sb/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "var sounds = [\n\t// ids\n\t\"a\",\n\t\"b\",\n\t\"c\",\n];\n")
	})
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		s.audioCalls.Add(1)
		id := strings.TrimSuffix(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:], ".mp3")
		fmt.Fprintf(w, "mp3:%s", id)
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// writeConfigFile writes content as a config file in a temporary
// directory and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".sbdl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// executeRoot runs the root command with args and returns its stdout.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// parsedCmd returns cmd with args parsed, ready for buildConfig.
func parsedCmd(t *testing.T, cmd *cobra.Command, args ...string) (*cobra.Command, []string) {
	t.Helper()

	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd, cmd.Flags().Args()
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	emptyConfig := writeConfigFile(t, "sites: {}\n")

	t.Run("crawl defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(parsedCmd(t, NewCrawlCmd(), "-c", emptyConfig))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RootURL != config.DefaultBaseURL+config.DefaultRootPath {
			t.Errorf("RootURL = %q", cfg.RootURL)
		}
		if cfg.BaseURL != config.DefaultBaseURL {
			t.Errorf("BaseURL = %q", cfg.BaseURL)
		}
		if cfg.RequestsPerSecond != config.DefaultRequestsPerSecond {
			t.Errorf("RequestsPerSecond = %v", cfg.RequestsPerSecond)
		}
		if !cfg.SaveToDB {
			t.Error("history must be on by default")
		}
		if err := cfg.ValidateCrawl(); err != nil {
			t.Errorf("default crawl config must be valid: %v", err)
		}
	})

	t.Run("crawl root sets base URL", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(parsedCmd(t, NewCrawlCmd(),
			"-c", emptyConfig, "-d", "2", "--robots", "http://127.0.0.1:8080/sb/cartoons/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.RootURL != "http://127.0.0.1:8080/sb/cartoons/" {
			t.Errorf("RootURL = %q", cfg.RootURL)
		}
		if cfg.BaseURL != "http://127.0.0.1:8080" {
			t.Errorf("BaseURL = %q", cfg.BaseURL)
		}
		if cfg.LinkPrefix() != "http://127.0.0.1:8080/sb/" {
			t.Errorf("LinkPrefix = %q", cfg.LinkPrefix())
		}
		if cfg.MaxDepth != 2 || !cfg.RespectRobots {
			t.Errorf("depth = %d, robots = %v", cfg.MaxDepth, cfg.RespectRobots)
		}
	})

	t.Run("scrape targets", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(parsedCmd(t, NewScrapeCmd(),
			"-c", emptyConfig, "-b", "3", "--no-history",
			"http://localhost:9000/sb/hank/", "http://localhost:9000/sb/bobby/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Targets) != 2 || cfg.BatchSize != 3 {
			t.Errorf("targets = %v, batch = %d", cfg.Targets, cfg.BatchSize)
		}
		if cfg.BaseURL != "http://localhost:9000" {
			t.Errorf("BaseURL = %q", cfg.BaseURL)
		}
		if cfg.SaveToDB {
			t.Error("--no-history must disable the database")
		}
	})

	t.Run("repeated scrape targets are dropped", func(t *testing.T) {
		t.Parallel()

		cfg, err := buildConfig(parsedCmd(t, NewScrapeCmd(),
			"-c", emptyConfig, "-b", "2",
			"http://localhost:9000/sb/hank/", "http://localhost:9000/sb/bobby/", "http://localhost:9000/sb/hank/"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"http://localhost:9000/sb/hank/", "http://localhost:9000/sb/bobby/"}
		if !slices.Equal(cfg.Targets, want) {
			t.Errorf("Targets = %v, want %v", cfg.Targets, want)
		}
	})

	t.Run("config file applies to the site", func(t *testing.T) {
		t.Parallel()

		path := writeConfigFile(t, `defaults:
  rate: 5
sites:
  www.realmofdarkness.net:
    cookie: "session=abc"
    depth: 3
    exclude:
      - https://www.realmofdarkness.net/sb/memes/
`)
		cfg, err := buildConfig(parsedCmd(t, NewCrawlCmd(), "-c", path))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Cookie != "session=abc" || cfg.MaxDepth != 3 || cfg.RequestsPerSecond != 5 {
			t.Errorf("cookie = %q, depth = %d, rate = %v", cfg.Cookie, cfg.MaxDepth, cfg.RequestsPerSecond)
		}
		if len(cfg.ExcludeURLs) != 1 {
			t.Errorf("ExcludeURLs = %v", cfg.ExcludeURLs)
		}
	})

	t.Run("explicit flags win over config file", func(t *testing.T) {
		t.Parallel()

		path := writeConfigFile(t, `sites:
  www.realmofdarkness.net:
    cookie: "session=abc"
    rate: 5
    depth: 3
`)
		cfg, err := buildConfig(parsedCmd(t, NewCrawlCmd(),
			"-c", path, "--cookie", "session=flag", "--rate", "0", "-d", "1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Cookie != "session=flag" || cfg.RequestsPerSecond != 0 || cfg.MaxDepth != 1 {
			t.Errorf("cookie = %q, rate = %v, depth = %d", cfg.Cookie, cfg.RequestsPerSecond, cfg.MaxDepth)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		missing := filepath.Join(t.TempDir(), "nope.yaml")
		_, err := buildConfig(parsedCmd(t, NewScrapeCmd(), "-c", missing, "http://localhost/sb/hank/"))
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestCommandValidation(t *testing.T) {
	emptyConfig := writeConfigFile(t, "sites: {}\n")

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{
			name:    "scrape without targets",
			args:    []string{"scrape", "-c", emptyConfig, "--no-history"},
			wantErr: config.ErrNoTarget,
		},
		{
			name:    "scrape with invalid target",
			args:    []string{"scrape", "-c", emptyConfig, "--no-history", "example.com/sb/hank/"},
			wantErr: config.ErrInvalidTarget,
		},
		{
			name:    "crawl with conflicting report formats",
			args:    []string{"crawl", "-c", emptyConfig, "--json", "--markdown"},
			wantErr: config.ErrConflictingReportFormats,
		},
		{
			name:    "crawl with tor and proxy",
			args:    []string{"crawl", "-c", emptyConfig, "--tor", "--proxy", "127.0.0.1:9050"},
			wantErr: config.ErrConflictingTransports,
		},
		{
			name:    "crawl with zero jobs",
			args:    []string{"crawl", "-c", emptyConfig, "-j", "0"},
			wantErr: config.ErrInvalidConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeRoot(t, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOriginOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://www.realmofdarkness.net/sb/koth-hank/", "https://www.realmofdarkness.net"},
		{"http://127.0.0.1:8080/sb/", "http://127.0.0.1:8080"},
		{"/sb/koth-hank/", ""},
		{"not a url", ""},
	}

	for _, tt := range tests {
		if got := originOf(tt.in); got != tt.want {
			t.Errorf("originOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCrawlStatus(t *testing.T) {
	t.Parallel()

	status := newCrawlStatus(&bytes.Buffer{})
	status.Page("https://www.realmofdarkness.net/sb/koth/", 4)

	want := " scraping https://www.realmofdarkness.net/sb/koth/ | soundboards found: 4"
	if status.spinner.Suffix != want {
		t.Errorf("Suffix = %q, want %q", status.spinner.Suffix, want)
	}
}
