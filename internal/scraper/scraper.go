package scraper

import (
	"context"
	"time"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

// Fetcher pulls job postings from one upstream source
type Fetcher interface {
	// Name returns the fetcher name
	Name() string

	// Source returns the job source
	Source() domain.JobSource

	// Fetch performs one fetch and maps every hit to a Job
	Fetch(ctx context.Context, q Query) (*Result, error)
}

// Query describes what a fetcher should look for
type Query struct {
	Text     string
	Location string
	Limit    int
	// TBS is a search-engine time filter such as "qdr:w"
	TBS string
	// Domains restricts search-backed fetchers to these hosts
	Domains []string
	// Params carries source-specific settings from JOB_SOURCES
	Params map[string]string
}

// Param returns q.Params[key] or def when unset
func (q Query) Param(key, def string) string {
	if v, ok := q.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// DefaultLimit is used when a query does not set one
const DefaultLimit = 25

// LimitOr returns q.Limit, or def when unset
func (q Query) LimitOr(def int) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return def
}

// Result contains fetch results
type Result struct {
	Jobs      []*domain.Job
	Total     int
	Fetched   int
	Errors    []error
	StartTime time.Time
	EndTime   time.Time
}

func newResult() *Result {
	return &Result{
		Jobs:      make([]*domain.Job, 0),
		StartTime: time.Now(),
	}
}

func (r *Result) add(job *domain.Job) {
	r.Jobs = append(r.Jobs, job)
	r.Fetched++
}

func (r *Result) finish() *Result {
	r.EndTime = time.Now()
	return r
}

// Duration returns the fetch duration
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Registry manages the configured fetchers
type Registry struct {
	fetchers map[domain.JobSource]Fetcher
	order    []domain.JobSource
}

// NewRegistry creates a new registry
func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[domain.JobSource]Fetcher),
	}
}

// Register adds a fetcher, replacing any earlier one for the same source
func (r *Registry) Register(f Fetcher) {
	if _, ok := r.fetchers[f.Source()]; !ok {
		r.order = append(r.order, f.Source())
	}
	r.fetchers[f.Source()] = f
}

// Get retrieves a fetcher by source
func (r *Registry) Get(source domain.JobSource) (Fetcher, bool) {
	f, ok := r.fetchers[source]
	return f, ok
}

// All returns all registered fetchers in registration order
func (r *Registry) All() []Fetcher {
	fetchers := make([]Fetcher, 0, len(r.order))
	for _, s := range r.order {
		fetchers = append(fetchers, r.fetchers[s])
	}
	return fetchers
}
