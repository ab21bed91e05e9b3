// Package collyfetcher implements scraper.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

// DefaultUserAgent identifies requests as a common desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultTimeout bounds a single fetch.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// Fetcher implements scraper.Fetcher using the Colly collector. Each call is
// a single attempt; failures of any kind are logged and reported as absence.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	body       []byte
	statusCode int
	err        error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.UserAgent = cfg.UserAgent
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		logger:        logger,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the body decoded as UTF-8.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, bool) {
	scraper.TotalRequests.Inc()
	start := time.Now()
	res := f.fetch(ctx, url)
	if res.err != nil {
		scraper.TotalRequestErrors.Inc()
		f.logger.Warn("Fetch failed",
			zap.String("url", url),
			zap.Int("status_code", res.statusCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(res.err),
		)
		return "", false
	}
	f.logger.Debug("Fetched page",
		zap.String("url", url),
		zap.Int("status_code", res.statusCode),
		zap.Int("bytes", len(res.body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return strings.ToValidUTF8(string(res.body), "�"), true
}

func (f *Fetcher) fetch(ctx context.Context, url string) fetchResult {
	var result fetchResult
	collector := f.buildCollector(ctx)
	f.configureCollectorHooks(collector, &result)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fetchResult{err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if result.err != nil {
			return result
		}
		if err != nil {
			result.err = fmt.Errorf("colly visit failed: %w", err)
			return result
		}
		if result.body == nil {
			result.err = fmt.Errorf("no response received")
		}
		return result
	}
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	colly.StdlibContext(ctx)(collector)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		// Source pages are UTF-8 even when the declared charset says otherwise.
		r.ResponseCharacterEncoding = "utf-8"
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.statusCode = r.StatusCode
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			result.err = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		result.body = append([]byte{}, r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.statusCode = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if f.cfg.Headers == nil || r.Headers == nil {
		return
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
