// Package scraper defines the project record model and the pipeline that
// collects listing links, extracts project details, and hands the records to
// the configured sinks.
package scraper

import "time"

// Column names in the fixed order used by every tabular sink.
const (
	ColumnProjectName    = "project_name"
	ColumnProjectDetails = "project_details"
	ColumnProjectStatus  = "project_status"
	ColumnPublishDate    = "publish_date"
	ColumnBudget         = "budget"
	ColumnDuration       = "duration"
	ColumnSkills         = "skills"
	ColumnLink           = "link"
)

// Columns is the header row of the persisted output.
var Columns = []string{
	ColumnProjectName,
	ColumnProjectDetails,
	ColumnProjectStatus,
	ColumnPublishDate,
	ColumnBudget,
	ColumnDuration,
	ColumnSkills,
	ColumnLink,
}

// ProjectRecord is one scraped project posting. Empty strings mean the field
// was not found on the page; Link is always set.
type ProjectRecord struct {
	ProjectName    string `json:"project_name" db:"project_name"`
	ProjectDetails string `json:"project_details" db:"project_details"`
	ProjectStatus  string `json:"project_status" db:"project_status"`
	PublishDate    string `json:"publish_date" db:"publish_date"`
	Budget         string `json:"budget" db:"budget"`
	Duration       string `json:"duration" db:"duration"`
	Skills         string `json:"skills" db:"skills"`
	Link           string `json:"link" db:"link"`
}

// Values returns the record fields in Columns order.
func (r ProjectRecord) Values() []string {
	return []string{
		r.ProjectName,
		r.ProjectDetails,
		r.ProjectStatus,
		r.PublishDate,
		r.Budget,
		r.Duration,
		r.Skills,
		r.Link,
	}
}

// RecordFromValues builds a record from a row in Columns order. Missing
// trailing values are left empty.
func RecordFromValues(values []string) ProjectRecord {
	get := func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
	return ProjectRecord{
		ProjectName:    get(0),
		ProjectDetails: get(1),
		ProjectStatus:  get(2),
		PublishDate:    get(3),
		Budget:         get(4),
		Duration:       get(5),
		Skills:         get(6),
		Link:           get(7),
	}
}

// Params are the per-run invocation arguments.
type Params struct {
	ListURL      string
	Pages        int
	PerPageLimit int
}

// RunSummary describes a finished pipeline run.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	ListURL        string    `json:"list_url"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	PagesVisited   int       `json:"pages_visited"`
	LinksCollected int       `json:"links_collected"`
	RecordsWritten int       `json:"records_written"`
	SkippedURLs    []string  `json:"skipped_urls,omitempty"`
	OutputPath     string    `json:"output_path"`
	OutputChecksum string    `json:"output_checksum,omitempty"`
	ArtifactURI    string    `json:"artifact_uri,omitempty"`
}
