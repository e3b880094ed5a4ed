package domain

import (
	"encoding/json"
	"time"
)

// JobSource represents where the job was fetched from
type JobSource string

const (
	JobSourceFirecrawlSearch  JobSource = "firecrawl_search"
	JobSourceFirecrawlExtract JobSource = "firecrawl_extract"
	JobSourceDeepResearch     JobSource = "deep_research"
	JobSourceRemotive         JobSource = "remotive"
	JobSourceRemoteOK         JobSource = "remoteok"
	JobSourceArbeitnow        JobSource = "arbeitnow"
	JobSourceAdzuna           JobSource = "adzuna"
)

// ParseJobSource maps a configured source type onto a known JobSource.
func ParseJobSource(s string) (JobSource, bool) {
	switch src := JobSource(s); src {
	case JobSourceFirecrawlSearch, JobSourceFirecrawlExtract, JobSourceDeepResearch,
		JobSourceRemotive, JobSourceRemoteOK, JobSourceArbeitnow, JobSourceAdzuna:
		return src, true
	}
	return "", false
}

// SearchDerived reports whether jobs from this source come from a web search
// rather than a board's own API, so their URLs still need classification.
func (s JobSource) SearchDerived() bool {
	return s == JobSourceFirecrawlSearch || s == JobSourceDeepResearch
}

// Currency is an ISO code detected in salary text
type Currency string

const (
	CurrencyUnknown Currency = ""
	CurrencyUSD     Currency = "USD"
	CurrencyGBP     Currency = "GBP"
	CurrencyEUR     Currency = "EUR"
	CurrencyCAD     Currency = "CAD"
	CurrencyAUD     Currency = "AUD"
)

// SalaryPeriod is the pay interval a salary figure refers to
type SalaryPeriod string

const (
	SalaryPeriodUnknown SalaryPeriod = ""
	SalaryPeriodHour    SalaryPeriod = "hour"
	SalaryPeriodDay     SalaryPeriod = "day"
	SalaryPeriodWeek    SalaryPeriod = "week"
	SalaryPeriodMonth   SalaryPeriod = "month"
	SalaryPeriodYear    SalaryPeriod = "year"
)

// Job is a normalized posting in flight between a fetcher and storage.
//
// SourceID must be unique within (UserID, Source); the interactive and
// agentic paths use it as the conflict key together with UserID, the cron
// path keys on URL instead.
type Job struct {
	UserID          string          `json:"user_id,omitempty"`
	Source          JobSource       `json:"source"`
	SourceID        string          `json:"source_id"`
	URL             string          `json:"url"`
	Title           string          `json:"title"`
	Company         string          `json:"company"`
	Location        string          `json:"location"`
	Description     string          `json:"description"`
	EmploymentType  string          `json:"employment_type,omitempty"`
	ExperienceLevel string          `json:"experience_level,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	SalaryRaw       *string         `json:"salary_raw,omitempty"`
	SalaryMin       *int            `json:"salary_min,omitempty"`
	SalaryMax       *int            `json:"salary_max,omitempty"`
	SalaryCurrency  Currency        `json:"salary_currency,omitempty"`
	SalaryPeriod    SalaryPeriod    `json:"salary_period,omitempty"`
	PostedAt        time.Time       `json:"posted_at"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	IsJobPosting    bool            `json:"is_job_posting"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty"`
}

// MergeKey identifies a job across sources within a single cron run.
func (j *Job) MergeKey() string {
	return string(j.Source) + ":" + j.SourceID
}

// AddTag adds a tag once, keeping insertion order.
func (j *Job) AddTag(tag string) {
	if tag == "" {
		return
	}
	for _, t := range j.Tags {
		if t == tag {
			return
		}
	}
	j.Tags = append(j.Tags, tag)
}

// SourceSettings mirrors a job_source_settings row. Read-only here.
type SourceSettings struct {
	UserID                string   `json:"user_id"`
	EnabledDefaultSources []string `json:"enabled_default_sources"`
	AllowedDomains        []string `json:"allowed_domains"`
}

// ExtractionStatus is the lifecycle state of a provider-hosted extraction
type ExtractionStatus string

const (
	ExtractionQueued     ExtractionStatus = "queued"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// ExtractionJob is the polled handle of an asynchronous multi-URL extraction.
type ExtractionJob struct {
	ID        string           `json:"id"`
	Status    ExtractionStatus `json:"status"`
	Data      *ExtractionData  `json:"data,omitempty"`
	ExpiresAt string           `json:"expiresAt,omitempty"`
	Raw       json.RawMessage  `json:"-"`
}

// ExtractionData is the completed payload of an extraction job
type ExtractionData struct {
	Jobs []ExtractedJob `json:"jobs"`
}

// ExtractedJob is one posting as returned by the extraction schema
type ExtractedJob struct {
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Description     string   `json:"description"`
	URL             string   `json:"url"`
	ApplyURL        string   `json:"apply_url"`
	Salary          string   `json:"salary"`
	EmploymentType  string   `json:"employment_type"`
	ExperienceLevel string   `json:"experience_level"`
	PostedAt        string   `json:"posted_at"`
	Deadline        string   `json:"deadline"`
	Tags            []string `json:"tags"`
}
