package crawler

// Session holds the crawl state of one run: the category pages already
// visited and the soundboards already discovered. A URL is in at most one
// of the two sets. Both only grow.
//
// A Session is owned by the single goroutine running Spider.Crawl and is
// not safe for concurrent use.
type Session struct {
	visited         map[string]struct{}
	visitedOrder    []string
	discovered      map[string]struct{}
	discoveredOrder []string
}

// NewSession returns an empty Session.
func NewSession() *Session {
	return &Session{
		visited:    make(map[string]struct{}),
		discovered: make(map[string]struct{}),
	}
}

// Seen reports whether url was visited or discovered.
func (s *Session) Seen(url string) bool {
	_, v := s.visited[url]
	_, d := s.discovered[url]
	return v || d
}

// MarkVisited records url as a visited category page. It returns false,
// changing nothing, if url was already seen.
func (s *Session) MarkVisited(url string) bool {
	if s.Seen(url) {
		return false
	}
	s.visited[url] = struct{}{}
	s.visitedOrder = append(s.visitedOrder, url)
	return true
}

// AddDiscovered records url as a discovered soundboard. It returns false,
// changing nothing, if url was already seen.
func (s *Session) AddDiscovered(url string) bool {
	if s.Seen(url) {
		return false
	}
	s.discovered[url] = struct{}{}
	s.discoveredOrder = append(s.discoveredOrder, url)
	return true
}

// Visited returns the visited category URLs in visit order.
func (s *Session) Visited() []string {
	return append([]string(nil), s.visitedOrder...)
}

// Discovered returns the discovered soundboard URLs in discovery order.
func (s *Session) Discovered() []string {
	return append([]string(nil), s.discoveredOrder...)
}

// DiscoveredCount returns the number of discovered soundboards.
func (s *Session) DiscoveredCount() int {
	return len(s.discoveredOrder)
}
