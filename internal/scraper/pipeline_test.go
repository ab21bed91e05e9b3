package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/clock/system"
	"github.com/JakeFAU/mostaql-scraper/internal/publisher/memory"
)

type fakeLinks struct {
	mu    sync.Mutex
	pages map[string][]string
	calls []string
}

func (f *fakeLinks) ExtractLinks(_ context.Context, pageURL string, limit int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageURL)
	links := f.pages[pageURL]
	if len(links) > limit {
		links = links[:limit]
	}
	return links
}

type fakeDetails struct {
	mu     sync.Mutex
	failed map[string]bool
	delay  time.Duration
	calls  []string
}

func (f *fakeDetails) ExtractDetails(_ context.Context, projectURL string) (ProjectRecord, bool) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls = append(f.calls, projectURL)
	f.mu.Unlock()
	if f.failed[projectURL] {
		return ProjectRecord{}, false
	}
	return ProjectRecord{ProjectName: "name " + projectURL, Link: projectURL}, true
}

type fakeSink struct {
	mu      sync.Mutex
	dir     string
	calls   int
	records []ProjectRecord
	name    string
	err     error
}

func (f *fakeSink) WriteRecords(_ context.Context, records []ProjectRecord, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.records = records
	f.name = name
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, name)
	if f.dir != "" {
		if err := os.WriteFile(path, []byte(fmt.Sprintf("%d rows", len(records))), 0o600); err != nil {
			return "", err
		}
	}
	return path, nil
}

type recordingPauser struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (r *recordingPauser) Pause(_ context.Context, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses = append(r.pauses, d)
}

func (r *recordingPauser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pauses)
}

func projectLinks(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://mostaql.com/project/%s-%d", prefix, i)
	}
	return out
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://mostaql.com/projects", PageURL("https://mostaql.com/projects", 1))
	assert.Equal(t, "https://mostaql.com/projects?page=2", PageURL("https://mostaql.com/projects", 2))
	assert.Equal(t, "https://mostaql.com/projects?category=dev&page=3", PageURL("https://mostaql.com/projects?category=dev", 3))
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	valid := Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 25}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		params Params
	}{
		{name: "relative url", params: Params{ListURL: "/projects", Pages: 1, PerPageLimit: 1}},
		{name: "bad url", params: Params{ListURL: "://bad", Pages: 1, PerPageLimit: 1}},
		{name: "zero pages", params: Params{ListURL: DefaultListURL, Pages: 0, PerPageLimit: 1}},
		{name: "zero limit", params: Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.params.Validate(), ErrInvalidParams)
		})
	}
}

func TestRunStopsAtFirstEmptyPage(t *testing.T) {
	t.Parallel()

	links := &fakeLinks{pages: map[string][]string{
		DefaultListURL: projectLinks("p1", 25),
		// page 2 intentionally empty; page 3 would have links
		DefaultListURL + "?page=3": projectLinks("p3", 5),
	}}
	details := &fakeDetails{}
	sink := &fakeSink{}
	pauser := &recordingPauser{}
	p := NewPipeline(Config{Delay: time.Second}, links, details, sink, pauser, zap.NewNop())

	summary, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 3, PerPageLimit: 25})
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultListURL, DefaultListURL + "?page=2"}, links.calls)
	assert.Equal(t, 2, summary.PagesVisited)
	assert.Equal(t, 25, summary.LinksCollected)
	assert.Len(t, sink.records, 25)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, DefaultOutputName, sink.name)
	// one pause after page 1, one after each detail fetch
	assert.Equal(t, 26, pauser.count())
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	t.Parallel()

	shared := projectLinks("shared", 3)
	links := &fakeLinks{pages: map[string][]string{
		DefaultListURL:             append(projectLinks("a", 2), shared...),
		DefaultListURL + "?page=2": append(append([]string{}, shared...), projectLinks("b", 2)...),
	}}
	details := &fakeDetails{}
	sink := &fakeSink{}
	p := NewPipeline(Config{}, links, details, sink, &recordingPauser{}, zap.NewNop())

	summary, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 2, PerPageLimit: 25})
	require.NoError(t, err)
	assert.Equal(t, 7, summary.LinksCollected)

	seen := make(map[string]bool)
	for _, rec := range sink.records {
		assert.False(t, seen[rec.Link], "duplicate link %s", rec.Link)
		seen[rec.Link] = true
	}
	want := append(append(projectLinks("a", 2), shared...), projectLinks("b", 2)...)
	assert.Equal(t, want, details.calls)
}

func TestRunSkipsFailedDetails(t *testing.T) {
	t.Parallel()

	all := projectLinks("x", 4)
	links := &fakeLinks{pages: map[string][]string{DefaultListURL: all}}
	details := &fakeDetails{failed: map[string]bool{all[1]: true, all[3]: true}}
	sink := &fakeSink{}
	p := NewPipeline(Config{}, links, details, sink, &recordingPauser{}, zap.NewNop())

	before := testutil.ToFloat64(TotalSkipped)
	summary, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 25})
	require.NoError(t, err)

	assert.Equal(t, []string{all[1], all[3]}, summary.SkippedURLs)
	assert.Equal(t, 2, summary.RecordsWritten)
	assert.Equal(t, all[0], sink.records[0].Link)
	assert.Equal(t, all[2], sink.records[1].Link)
	assert.GreaterOrEqual(t, testutil.ToFloat64(TotalSkipped)-before, 2.0)
}

func TestRunTotalListingFailureStillPersists(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	details := &fakeDetails{}
	p := NewPipeline(Config{}, &fakeLinks{}, details, sink, &recordingPauser{}, zap.NewNop())

	summary, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 5, PerPageLimit: 25})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Empty(t, sink.records)
	assert.Empty(t, details.calls)
	assert.Equal(t, 1, summary.PagesVisited)
}

func TestRunInvalidParams(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	p := NewPipeline(Config{}, &fakeLinks{}, &fakeDetails{}, sink, &recordingPauser{}, zap.NewNop())
	_, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 0, PerPageLimit: 25})
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Zero(t, sink.calls)
}

func TestRunSinkError(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{err: errors.New("disk full")}
	p := NewPipeline(Config{}, &fakeLinks{}, &fakeDetails{}, sink, &recordingPauser{}, zap.NewNop())
	_, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 25})
	assert.ErrorContains(t, err, "disk full")
}

func TestRunConcurrentKeepsLinkOrder(t *testing.T) {
	t.Parallel()

	all := projectLinks("c", 12)
	links := &fakeLinks{pages: map[string][]string{DefaultListURL: all}}
	details := &fakeDetails{delay: 5 * time.Millisecond, failed: map[string]bool{all[4]: true}}
	sink := &fakeSink{}
	limiter := &countingLimiter{}
	p := NewPipeline(Config{Concurrency: 4}, links, details, sink, &recordingPauser{}, zap.NewNop(), WithLimiter(limiter))

	summary, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 25})
	require.NoError(t, err)

	require.Len(t, sink.records, 11)
	want := append(append([]string{}, all[:4]...), all[5:]...)
	for i, rec := range sink.records {
		assert.Equal(t, want[i], rec.Link)
	}
	assert.Equal(t, []string{all[4]}, summary.SkippedURLs)
	assert.Equal(t, 12, limiter.calls())
}

func TestRunSecondarySinks(t *testing.T) {
	t.Parallel()

	all := projectLinks("s", 2)
	links := &fakeLinks{pages: map[string][]string{DefaultListURL: all}}
	sink := &fakeSink{dir: t.TempDir()}
	store := &fakeStore{}
	failing := &fakeStore{err: errors.New("db down")}
	artifacts := &fakeArtifacts{}
	pub := memory.New()
	startedAt := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

	p := NewPipeline(
		Config{Topic: "runs", ArtifactPrefix: "exports"},
		links, &fakeDetails{}, sink, &recordingPauser{}, zap.NewNop(),
		WithRecordStores(failing, store, nil),
		WithArtifactStore(artifacts),
		WithPublisher(pub),
		WithHasher(lenHasher{}),
		WithClock(system.Fixed(startedAt)),
		WithIDGenerator(staticID("run-1")),
	)

	summary, err := p.Run(context.Background(), Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 25})
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "run-1", store.runID)
	assert.Len(t, store.records, 2)
	assert.Equal(t, "exports/2025-05-06/run-1/"+DefaultOutputName, artifacts.object)
	assert.Equal(t, "gs://bucket/"+artifacts.object, summary.ArtifactURI)
	assert.Equal(t, "len-6", summary.OutputChecksum)
	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "runs", msgs[0].Topic)
	var published RunSummary
	require.NoError(t, msgs[0].Decode(&published))
	assert.Equal(t, 2, published.RecordsWritten)
	assert.True(t, startedAt.Equal(published.StartedAt))
	assert.Equal(t, summary.ArtifactURI, published.ArtifactURI)
}

func TestRunCanceledContextPersistsPartialResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	all := projectLinks("k", 3)
	links := &fakeLinks{pages: map[string][]string{DefaultListURL: all}}
	details := &cancelingDetails{cancel: cancel, after: 1}
	sink := &fakeSink{}
	p := NewPipeline(Config{}, links, details, sink, &recordingPauser{}, zap.NewNop())

	summary, err := p.Run(ctx, Params{ListURL: DefaultListURL, Pages: 1, PerPageLimit: 25})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, sink.records, 1)
	assert.Equal(t, 1, summary.RecordsWritten)
}

func TestLinkSet(t *testing.T) {
	t.Parallel()

	s := NewLinkSet()
	assert.True(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("a"))
	assert.False(t, s.Add(""))
	assert.Equal(t, 2, s.Len())

	links := s.Links()
	links[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, s.Links())
}

func TestTimerPauserHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	TimerPauser{}.Pause(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	TimerPauser{}.Pause(context.Background(), 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRecordValuesRoundTrip(t *testing.T) {
	t.Parallel()

	rec := ProjectRecord{
		ProjectName: "n", ProjectDetails: "d", ProjectStatus: "s", PublishDate: "p",
		Budget: "b", Duration: "du", Skills: "sk", Link: "l",
	}
	assert.Len(t, rec.Values(), len(Columns))
	assert.Equal(t, rec, RecordFromValues(rec.Values()))
	assert.Equal(t, ProjectRecord{ProjectName: "only"}, RecordFromValues([]string{"only"}))
}

type countingLimiter struct {
	mu sync.Mutex
	n  int
}

func (c *countingLimiter) Wait(_ context.Context, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingLimiter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakeStore struct {
	runID   string
	records []ProjectRecord
	err     error
}

func (f *fakeStore) SaveRecords(_ context.Context, runID string, records []ProjectRecord) error {
	if f.err != nil {
		return f.err
	}
	f.runID = runID
	f.records = records
	return nil
}

type fakeArtifacts struct {
	local  string
	object string
}

func (f *fakeArtifacts) PutFile(_ context.Context, localPath, objectPath string) (string, error) {
	f.local = localPath
	f.object = objectPath
	return "gs://bucket/" + objectPath, nil
}

type lenHasher struct{}

func (lenHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("len-%d", len(data)), nil
}

type staticID string

func (s staticID) NewID() (string, error) { return string(s), nil }

type cancelingDetails struct {
	cancel context.CancelFunc
	after  int
	n      int
}

func (c *cancelingDetails) ExtractDetails(_ context.Context, projectURL string) (ProjectRecord, bool) {
	c.n++
	if c.n >= c.after {
		c.cancel()
	}
	return ProjectRecord{Link: projectURL}, true
}
