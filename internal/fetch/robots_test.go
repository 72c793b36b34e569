package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoadRobots(t *testing.T) {
	t.Parallel()

	t.Run("disallowed paths are rejected", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, "User-agent: *\nDisallow: /sb/private/\n")
		}))
		defer srv.Close()

		policy, err := New().LoadRobots(context.Background(), srv.URL+"/sb/soundboards/", "sbdl")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !policy.Allowed(srv.URL + "/sb/cartoons/") {
			t.Error("expected /sb/cartoons/ to be allowed")
		}
		if policy.Allowed(srv.URL + "/sb/private/board/") {
			t.Error("expected /sb/private/board/ to be disallowed")
		}
	})

	t.Run("missing robots.txt allows everything", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		policy, err := New().LoadRobots(context.Background(), srv.URL, "sbdl")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !policy.Allowed(srv.URL + "/anything") {
			t.Error("expected everything to be allowed")
		}
	})

	t.Run("nil policy allows everything", func(t *testing.T) {
		t.Parallel()

		var policy *RobotsPolicy
		if !policy.Allowed("https://www.realmofdarkness.net/sb/") {
			t.Error("nil policy must allow")
		}
	})
}
