package extract

import (
	"context"
	"sync"
)

// stubFetcher serves canned pages by URL; unknown URLs are absent.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages}
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	body, ok := s.pages[url]
	return body, ok
}
