package scraper

import (
	"context"
	"time"
)

// Fetcher retrieves a page body. The bool is false when the page could not be
// fetched for any reason; callers never see the underlying error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// LinkExtractor returns up to limit absolute project URLs from a listing page.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, pageURL string, limit int) []string
}

// DetailExtractor builds a record from a project page. The bool is false only
// when the page could not be fetched.
type DetailExtractor interface {
	ExtractDetails(ctx context.Context, projectURL string) (ProjectRecord, bool)
}

// Sink persists the full record set of a run and returns the written path.
type Sink interface {
	WriteRecords(ctx context.Context, records []ProjectRecord, name string) (string, error)
}

// RecordStore receives a copy of the run's records keyed by link.
type RecordStore interface {
	SaveRecords(ctx context.Context, runID string, records []ProjectRecord) error
}

// ArtifactStore uploads the primary output file somewhere durable.
type ArtifactStore interface {
	PutFile(ctx context.Context, localPath string, objectPath string) (string, error)
}

// Publisher pushes run completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests of written artifacts.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Limiter gates outbound requests when details are fetched concurrently.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}
