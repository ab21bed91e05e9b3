package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks the number of HTTP requests dispatched by the fetcher.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_requests_total",
		Help: "The total number of HTTP requests sent.",
	})
	// TotalRequestErrors tracks the number of requests that were mapped to absence.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_request_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// TotalLinks tracks unique project links collected from listing pages.
	TotalLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_links_collected_total",
		Help: "The total number of unique project links collected.",
	})
	// TotalRecords tracks project pages turned into records.
	TotalRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_records_total",
		Help: "The total number of project records extracted.",
	})
	// TotalSkipped tracks project pages that could not be fetched.
	TotalSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_skipped_total",
		Help: "The total number of project URLs skipped after a failed fetch.",
	})
)
