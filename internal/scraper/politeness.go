package scraper

import (
	"context"
	"time"
)

// LinkSet is an ordered, duplicate-free list of URLs owned by a single run.
type LinkSet struct {
	seen  map[string]struct{}
	links []string
}

// NewLinkSet returns an empty LinkSet.
func NewLinkSet() *LinkSet {
	return &LinkSet{seen: make(map[string]struct{})}
}

// Add appends url if it has not been seen before and reports whether it did.
func (s *LinkSet) Add(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := s.seen[url]; ok {
		return false
	}
	s.seen[url] = struct{}{}
	s.links = append(s.links, url)
	return true
}

// Links returns a copy of the collected URLs in insertion order.
func (s *LinkSet) Links() []string {
	out := make([]string, len(s.links))
	copy(out, s.links)
	return out
}

// Len returns the number of collected URLs.
func (s *LinkSet) Len() int {
	return len(s.links)
}

// Pauser abstracts the polite delay between consecutive requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser sleeps for the requested delay or until ctx is done.
type TimerPauser struct{}

// Pause blocks for delay.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
