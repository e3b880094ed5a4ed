package store

import (
	"encoding/json"
	"time"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
)

// JobRow is one row of the jobs table
type JobRow struct {
	UserID          string          `json:"user_id"`
	SourceType      string          `json:"source_type"`
	SourceID        string          `json:"source_id"`
	Title           string          `json:"title"`
	Company         string          `json:"company"`
	Description     string          `json:"description"`
	Location        string          `json:"location"`
	EmploymentType  *string         `json:"employment_type"`
	ExperienceLevel *string         `json:"experience_level"`
	SalaryMin       *int            `json:"salary_min"`
	SalaryMax       *int            `json:"salary_max"`
	SalaryCurrency  *string         `json:"salary_currency"`
	SalaryPeriod    *string         `json:"salary_period"`
	ApplyURL        string          `json:"apply_url"`
	PostedAt        time.Time       `json:"posted_at"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	Tags            []string        `json:"tags"`
	IsJobPosting    bool            `json:"is_job_posting"`
	RawData         json.RawMessage `json:"raw_data"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ListingRow is one row of the job_listings table
type ListingRow struct {
	SourceURL          string          `json:"source_url"`
	Source             string          `json:"source"`
	ExternalID         string          `json:"external_id"`
	Title              string          `json:"title"`
	Company            string          `json:"company"`
	Location           string          `json:"location"`
	FullJobDescription string          `json:"full_job_description"`
	EmploymentType     *string         `json:"employment_type"`
	SalaryMin          *int            `json:"salary_min"`
	SalaryMax          *int            `json:"salary_max"`
	SalaryCurrency     *string         `json:"salary_currency"`
	PostedAt           time.Time       `json:"posted_at"`
	ExpiresAt          *time.Time      `json:"expires_at"`
	Tags               []string        `json:"tags"`
	RawData            json.RawMessage `json:"raw_data"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ToJobRow maps a job to the jobs schema.
func ToJobRow(j *domain.Job, now time.Time) JobRow {
	return JobRow{
		UserID:          j.UserID,
		SourceType:      string(j.Source),
		SourceID:        j.SourceID,
		Title:           j.Title,
		Company:         j.Company,
		Description:     j.Description,
		Location:        j.Location,
		EmploymentType:  optional(j.EmploymentType),
		ExperienceLevel: optional(j.ExperienceLevel),
		SalaryMin:       j.SalaryMin,
		SalaryMax:       j.SalaryMax,
		SalaryCurrency:  optional(string(j.SalaryCurrency)),
		SalaryPeriod:    optional(string(j.SalaryPeriod)),
		ApplyURL:        j.URL,
		PostedAt:        postedAt(j, now),
		ExpiresAt:       j.ExpiresAt,
		Tags:            tags(j.Tags),
		IsJobPosting:    j.IsJobPosting,
		RawData:         rawData(j.RawPayload),
		UpdatedAt:       now,
	}
}

// ToListingRow maps a job to the job_listings schema. The description
// column is NOT NULL, so a missing description becomes "".
func ToListingRow(j *domain.Job, now time.Time) ListingRow {
	return ListingRow{
		SourceURL:          ListingURL(j),
		Source:             string(j.Source),
		ExternalID:         j.SourceID,
		Title:              j.Title,
		Company:            j.Company,
		Location:           j.Location,
		FullJobDescription: j.Description,
		EmploymentType:     optional(j.EmploymentType),
		SalaryMin:          j.SalaryMin,
		SalaryMax:          j.SalaryMax,
		SalaryCurrency:     optional(string(j.SalaryCurrency)),
		PostedAt:           postedAt(j, now),
		ExpiresAt:          j.ExpiresAt,
		Tags:               tags(j.Tags),
		RawData:            rawData(j.RawPayload),
		UpdatedAt:          now,
	}
}

// ListingURL is the job_listings key: the trimmed URL, or source:externalId
// when a source gave no URL.
func ListingURL(j *domain.Job) string {
	if u := normalize.TrimURL(j.URL); u != "" {
		return u
	}
	return string(j.Source) + ":" + j.SourceID
}

// dedupeJobRows keeps the last row per (user_id, source_id). A single
// upsert statement cannot touch the same row twice.
func dedupeJobRows(rows []JobRow) []JobRow {
	index := make(map[[2]string]int, len(rows))
	out := make([]JobRow, 0, len(rows))
	for _, r := range rows {
		k := [2]string{r.UserID, r.SourceID}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func dedupeListingRows(rows []ListingRow) []ListingRow {
	index := make(map[string]int, len(rows))
	out := make([]ListingRow, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.SourceURL]; ok {
			out[i] = r
			continue
		}
		index[r.SourceURL] = len(out)
		out = append(out, r)
	}
	return out
}

func jobRows(jobs []*domain.Job, now time.Time) []JobRow {
	rows := make([]JobRow, 0, len(jobs))
	for _, j := range jobs {
		if j != nil {
			rows = append(rows, ToJobRow(j, now))
		}
	}
	return dedupeJobRows(rows)
}

func listingRows(jobs []*domain.Job, now time.Time) []ListingRow {
	rows := make([]ListingRow, 0, len(jobs))
	for _, j := range jobs {
		if j != nil {
			rows = append(rows, ToListingRow(j, now))
		}
	}
	return dedupeListingRows(rows)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func postedAt(j *domain.Job, now time.Time) time.Time {
	if j.PostedAt.IsZero() {
		return now
	}
	return j.PostedAt
}

func tags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}

func rawData(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return raw
}
