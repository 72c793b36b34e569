package fetch

import (
	"context"
	"fmt"
	"net/url"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers whether a URL may be crawled according to the site's
// robots.txt. A nil policy allows everything.
type RobotsPolicy struct {
	group *robotstxt.Group
}

// LoadRobots fetches <scheme>://<host>/robots.txt for siteURL and selects
// the group for agent. Status handling follows robotstxt: 4xx allows all,
// 5xx disallows all.
func (c *Client) LoadRobots(ctx context.Context, siteURL, agent string) (*RobotsPolicy, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parse site URL: %w", err)
	}
	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()

	resp, err := c.Get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	c.logger.Debug("robots.txt loaded", "url", robotsURL, "status", resp.StatusCode)
	return &RobotsPolicy{group: data.FindGroup(agent)}, nil
}

// Allowed reports whether rawURL may be fetched.
func (p *RobotsPolicy) Allowed(rawURL string) bool {
	if p == nil || p.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return p.group.Test(path)
}
