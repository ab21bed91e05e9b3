package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/mostaql-scraper/internal/logging"
)

// ErrInvalidParams is returned when a run cannot be started from its arguments.
var ErrInvalidParams = errors.New("invalid run parameters")

// Defaults matching the reference scraper.
const (
	DefaultListURL      = "https://mostaql.com/projects"
	DefaultPages        = 1
	DefaultPerPageLimit = 25
	DefaultDelay        = time.Second
	DefaultOutputName   = "mostaql_projects.csv"
)

// Config controls pipeline pacing and output naming.
type Config struct {
	// Delay is observed after every listing page that yielded links and
	// after every detail fetch.
	Delay time.Duration
	// Concurrency above 1 fetches details with a bounded worker pool paced
	// by a shared Limiter. Records keep link order either way.
	Concurrency int
	// OutputName is the file name handed to the Sink.
	OutputName string
	// Topic receives the run summary when a Publisher is configured.
	Topic string
	// ArtifactPrefix is prepended to the uploaded artifact object path.
	ArtifactPrefix string
}

// Option customises optional collaborators of a Pipeline.
type Option func(*Pipeline)

// WithRecordStores adds stores that receive a copy of every run's records.
func WithRecordStores(stores ...RecordStore) Option {
	return func(p *Pipeline) {
		for _, s := range stores {
			if s != nil {
				p.stores = append(p.stores, s)
			}
		}
	}
}

// WithArtifactStore uploads the sink's output file after every run.
func WithArtifactStore(store ArtifactStore) Option {
	return func(p *Pipeline) { p.artifacts = store }
}

// WithPublisher publishes the RunSummary to Config.Topic.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithLimiter paces the concurrent detail phase.
func WithLimiter(l Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithHasher computes a checksum of the written output.
func WithHasher(h Hasher) Option {
	return func(p *Pipeline) { p.hasher = h }
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithIDGenerator sets the run ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// Pipeline drives link collection, detail extraction, and persistence for a
// single run at a time. It is not safe for concurrent Run calls.
type Pipeline struct {
	cfg     Config
	links   LinkExtractor
	details DetailExtractor
	sink    Sink
	pauser  Pauser
	logger  *zap.Logger

	stores    []RecordStore
	artifacts ArtifactStore
	publisher Publisher
	limiter   Limiter
	hasher    Hasher
	clock     Clock
	ids       IDGenerator
}

// NewPipeline wires the collaborators of a run.
func NewPipeline(
	cfg Config,
	links LinkExtractor,
	details DetailExtractor,
	sink Sink,
	pauser Pauser,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	if cfg.OutputName == "" {
		cfg.OutputName = DefaultOutputName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:     cfg,
		links:   links,
		details: details,
		sink:    sink,
		pauser:  pauser,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks the invocation arguments of a run.
func (params Params) Validate() error {
	u, err := url.Parse(params.ListURL)
	if err != nil {
		return fmt.Errorf("%w: list url: %v", ErrInvalidParams, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: list url %q must be absolute", ErrInvalidParams, params.ListURL)
	}
	if params.Pages < 1 {
		return fmt.Errorf("%w: pages must be >= 1", ErrInvalidParams)
	}
	if params.PerPageLimit < 1 {
		return fmt.Errorf("%w: per page limit must be >= 1", ErrInvalidParams)
	}
	return nil
}

// PageURL returns the URL of listing page n. Pages after the first get a
// page query parameter appended to whatever query the list URL already has.
func PageURL(listURL string, n int) string {
	if n <= 1 {
		return listURL
	}
	sep := "?"
	if strings.Contains(listURL, "?") {
		sep = "&"
	}
	return listURL + sep + "page=" + strconv.Itoa(n)
}

// Run executes the three phases in order. Only invalid params or a primary
// sink failure produce an error; fetch failures shorten the output instead.
func (p *Pipeline) Run(ctx context.Context, params Params) (RunSummary, error) {
	if err := params.Validate(); err != nil {
		return RunSummary{}, err
	}
	summary := RunSummary{
		RunID:     p.newRunID(),
		ListURL:   params.ListURL,
		StartedAt: p.now(),
	}
	logger := logging.ForRun(p.logger, summary.RunID)

	set, pages := p.collectLinks(ctx, params, logger)
	summary.PagesVisited = pages
	summary.LinksCollected = set.Len()
	logger.Info("Link collection finished", zap.Int("links", set.Len()), zap.Int("pages", pages))

	records, skipped := p.collectDetails(ctx, set.Links(), logger)
	summary.SkippedURLs = skipped

	// Partial results from a canceled run are still written.
	persistCtx := context.WithoutCancel(ctx)
	outPath, err := p.sink.WriteRecords(persistCtx, records, p.cfg.OutputName)
	if err != nil {
		return summary, fmt.Errorf("write records: %w", err)
	}
	summary.OutputPath = outPath
	summary.RecordsWritten = len(records)
	logger.Info("Saved projects", zap.Int("records", len(records)), zap.String("path", outPath))

	p.persistSecondary(persistCtx, &summary, records, logger)
	summary.FinishedAt = p.now()
	p.publish(persistCtx, summary, logger)
	return summary, nil
}

func (p *Pipeline) collectLinks(ctx context.Context, params Params, logger *zap.Logger) (*LinkSet, int) {
	set := NewLinkSet()
	visited := 0
	for n := 1; n <= params.Pages; n++ {
		if ctx.Err() != nil {
			logger.Warn("Link collection interrupted", zap.Error(ctx.Err()))
			break
		}
		pageURL := PageURL(params.ListURL, n)
		logger.Info("Fetching links", zap.String("page_url", pageURL), zap.Int("page", n))
		links := p.links.ExtractLinks(ctx, pageURL, params.PerPageLimit)
		visited++
		if len(links) == 0 {
			logger.Info("No links found; stopping link collection", zap.Int("page", n))
			break
		}
		for _, link := range links {
			if set.Add(link) {
				TotalLinks.Inc()
			}
		}
		p.pauser.Pause(ctx, p.cfg.Delay)
	}
	return set, visited
}

type detailResult struct {
	record ProjectRecord
	ok     bool
}

func (p *Pipeline) collectDetails(ctx context.Context, links []string, logger *zap.Logger) ([]ProjectRecord, []string) {
	var results []detailResult
	if p.cfg.Concurrency > 1 && len(links) > 1 {
		results = p.fetchConcurrent(ctx, links, logger)
	} else {
		results = p.fetchSequential(ctx, links, logger)
	}

	records := make([]ProjectRecord, 0, len(links))
	var skipped []string
	for i, res := range results {
		if res.ok {
			records = append(records, res.record)
			TotalRecords.Inc()
			continue
		}
		logger.Warn("Failed to extract project; skipping", zap.String("url", links[i]))
		skipped = append(skipped, links[i])
		TotalSkipped.Inc()
	}
	return records, skipped
}

func (p *Pipeline) fetchSequential(ctx context.Context, links []string, logger *zap.Logger) []detailResult {
	results := make([]detailResult, 0, len(links))
	for i, link := range links {
		if ctx.Err() != nil {
			logger.Warn("Detail collection interrupted", zap.Error(ctx.Err()))
			break
		}
		logger.Info("Scraping project",
			zap.Int("index", i+1),
			zap.Int("total", len(links)),
			zap.String("url", link),
		)
		rec, ok := p.details.ExtractDetails(ctx, link)
		results = append(results, detailResult{record: rec, ok: ok})
		p.pauser.Pause(ctx, p.cfg.Delay)
	}
	return results
}

func (p *Pipeline) fetchConcurrent(ctx context.Context, links []string, logger *zap.Logger) []detailResult {
	results := make([]detailResult, len(links))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, link := range links {
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx, link); err != nil {
					logger.Warn("Rate limiter wait aborted", zap.String("url", link), zap.Error(err))
					return nil
				}
			}
			logger.Info("Scraping project",
				zap.Int("index", i+1),
				zap.Int("total", len(links)),
				zap.String("url", link),
			)
			rec, ok := p.details.ExtractDetails(ctx, link)
			results[i] = detailResult{record: rec, ok: ok}
			if p.limiter == nil {
				p.pauser.Pause(ctx, p.cfg.Delay)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors
	return results
}

func (p *Pipeline) persistSecondary(ctx context.Context, summary *RunSummary, records []ProjectRecord, logger *zap.Logger) {
	if p.hasher != nil {
		if sum, err := p.checksum(summary.OutputPath); err != nil {
			logger.Error("Failed to checksum output", zap.Error(err))
		} else {
			summary.OutputChecksum = sum
		}
	}
	for _, store := range p.stores {
		if err := store.SaveRecords(ctx, summary.RunID, records); err != nil {
			logger.Error("Failed to save records to store", zap.Error(err))
		}
	}
	if p.artifacts != nil {
		object := p.artifactPath(*summary)
		uri, err := p.artifacts.PutFile(ctx, summary.OutputPath, object)
		if err != nil {
			logger.Error("Failed to upload output artifact", zap.String("object", object), zap.Error(err))
		} else {
			summary.ArtifactURI = uri
			logger.Info("Uploaded output artifact", zap.String("uri", uri))
		}
	}
}

// fileHasher is implemented by hashers that can stream from disk.
type fileHasher interface {
	HashFile(path string) (string, error)
}

func (p *Pipeline) checksum(outPath string) (string, error) {
	if fh, ok := p.hasher.(fileHasher); ok {
		return fh.HashFile(outPath)
	}
	data, err := os.ReadFile(outPath) // #nosec G304 -- path returned by the sink.
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}
	return p.hasher.Hash(data)
}

func (p *Pipeline) publish(ctx context.Context, summary RunSummary, logger *zap.Logger) {
	if p.publisher == nil {
		return
	}
	id, err := p.publisher.Publish(ctx, p.cfg.Topic, summary)
	if err != nil {
		logger.Error("Failed to publish run summary", zap.Error(err))
		return
	}
	logger.Info("Published run summary", zap.String("message_id", id))
}

func (p *Pipeline) artifactPath(summary RunSummary) string {
	runDir := summary.RunID
	if runDir == "" {
		runDir = summary.StartedAt.Format("20060102T150405Z")
	}
	return path.Join(p.cfg.ArtifactPrefix, summary.StartedAt.Format("2006-01-02"), runDir, filepath.Base(summary.OutputPath))
}

func (p *Pipeline) newRunID() string {
	if p.ids == nil {
		return ""
	}
	id, err := p.ids.NewID()
	if err != nil {
		p.logger.Warn("Failed to generate run id", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}
