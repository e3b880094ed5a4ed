package scraper

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/salary"
)

// JobSchema is the JSON schema sent with structured extraction requests.
// Its output decodes into domain.ExtractionData.
var JobSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"jobs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":            map[string]any{"type": "string"},
					"company":          map[string]any{"type": "string"},
					"location":         map[string]any{"type": "string"},
					"description":      map[string]any{"type": "string"},
					"url":              map[string]any{"type": "string"},
					"apply_url":        map[string]any{"type": "string"},
					"salary":           map[string]any{"type": "string"},
					"employment_type":  map[string]any{"type": "string"},
					"experience_level": map[string]any{"type": "string"},
					"posted_at":        map[string]any{"type": "string"},
					"deadline":         map[string]any{"type": "string"},
					"tags":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"title"},
			},
		},
	},
	"required": []string{"jobs"},
}

// PostingSchema is JobSchema's item schema, used when one page is one posting.
var PostingSchema = JobSchema["properties"].(map[string]any)["jobs"].(map[string]any)["items"].(map[string]any)

// DefaultExtractPrompt is used when the caller supplies none
const DefaultExtractPrompt = "Extract every individual job posting on these pages. " +
	"For each posting return the title, company, location, full description, the posting URL, " +
	"an apply URL if different, the salary exactly as written, employment type, experience level, " +
	"the posting date and the application deadline if stated, and a few short skill tags. " +
	"Skip navigation, search result lists and salary guides."

// JobFromExtracted maps one structured extraction item to a Job. Items
// without any URL get a stable synthetic source id.
func JobFromExtracted(e domain.ExtractedJob, source domain.JobSource) *domain.Job {
	link := normalize.TrimURL(e.URL)
	if link == "" {
		link = normalize.TrimURL(e.ApplyURL)
	}

	job := &domain.Job{
		Source:          source,
		URL:             link,
		SourceID:        link,
		Title:           strings.TrimSpace(e.Title),
		Company:         strings.TrimSpace(e.Company),
		Location:        strings.TrimSpace(e.Location),
		Description:     strings.TrimSpace(e.Description),
		EmploymentType:  strings.TrimSpace(e.EmploymentType),
		ExperienceLevel: strings.TrimSpace(e.ExperienceLevel),
		PostedAt:        time.Now().UTC(),
		ExpiresAt:       normalize.ParseDeadline(e.Deadline),
	}
	if job.SourceID == "" {
		job.SourceID = normalize.SyntheticID(job.Company, job.Title, job.Location)
	}
	if posted := normalize.ParseDeadline(e.PostedAt); posted != nil {
		job.PostedAt = *posted
	}
	for _, tag := range e.Tags {
		job.AddTag(strings.TrimSpace(tag))
	}
	if s := strings.TrimSpace(e.Salary); s != "" {
		job.SalaryRaw = &s
		salary.Apply(job)
	}
	if raw, err := json.Marshal(e); err == nil {
		job.RawPayload = raw
	}
	return job
}
