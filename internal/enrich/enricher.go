// Package enrich cleans up scraped postings with an LLM, falling back to
// plain text extraction when the model is unavailable or answers badly.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/salary"
)

const (
	defaultMaxInput       = 20000
	fallbackDescriptionLn = 4000
)

const extractionPrompt = `You are a job data extraction agent. Analyze the raw page content of a job posting below.

Ignore navigation menus, footers, "similar jobs" lists and advertisements.
Return valid JSON only, without markdown code fences, using exactly this shape:
{
  "title": "job title",
  "company": "hiring company",
  "location": "job location or 'Remote'",
  "description": "clean summary of responsibilities and requirements, no HTML",
  "employmentType": "full-time, part-time, contract, internship or empty",
  "experienceLevel": "entry, mid, senior, lead or empty",
  "salary": "salary exactly as written, or empty",
  "deadline": "application deadline as written, or empty",
  "tags": ["short", "skill", "tags"]
}
If a field is not stated, leave it empty. Do not guess.

Page URL: %s
Known title: %s

RAW CONTENT:
%s`

var errEmptyAnswer = errors.New("no JSON object in model answer")

// Fields is the JSON object the model is asked to return
type Fields struct {
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Description     string   `json:"description"`
	EmploymentType  string   `json:"employmentType"`
	ExperienceLevel string   `json:"experienceLevel"`
	Salary          string   `json:"salary"`
	Deadline        string   `json:"deadline"`
	Tags            []string `json:"tags"`
}

// Enricher fills job fields from an LLM
type Enricher struct {
	completer Completer
	maxInput  int
	logger    *zap.Logger
}

// NewEnricher creates a new enricher. A nil completer makes every call use
// the fallback.
func NewEnricher(completer Completer, logger *zap.Logger) *Enricher {
	return &Enricher{
		completer: completer,
		maxInput:  defaultMaxInput,
		logger:    logger,
	}
}

// Enrich updates job in place. It reports whether the model answer was used;
// on any failure the job gets the deterministic fallback instead and the
// error is only logged.
func (e *Enricher) Enrich(ctx context.Context, job *domain.Job) bool {
	if e.completer == nil {
		Fallback(job)
		return false
	}

	fields, err := e.ask(ctx, job)
	if err != nil {
		e.logger.Warn("Enrichment failed, using fallback",
			zap.String("url", job.URL),
			zap.Error(err),
		)
		Fallback(job)
		return false
	}

	apply(job, fields)
	return true
}

func (e *Enricher) ask(ctx context.Context, job *domain.Job) (*Fields, error) {
	content := job.Description
	if len(content) > e.maxInput {
		content = cutBytes(content, e.maxInput)
	}

	answer, err := e.completer.Complete(ctx, fmt.Sprintf(extractionPrompt, job.URL, job.Title, content))
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	return ParseAnswer(answer)
}

// ParseAnswer extracts the JSON object from a model answer, tolerating code
// fences and surrounding prose.
func ParseAnswer(answer string) (*Fields, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return nil, errEmptyAnswer
	}

	var f Fields
	if err := json.Unmarshal([]byte(answer[start:end+1]), &f); err != nil {
		return nil, fmt.Errorf("decode model answer: %w", err)
	}
	return &f, nil
}

// apply merges non-empty model fields into job. Fields the fetcher already
// knows are only replaced by a non-empty answer.
func apply(job *domain.Job, f *Fields) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&job.Title, f.Title)
	set(&job.Company, f.Company)
	set(&job.Location, f.Location)
	set(&job.EmploymentType, f.EmploymentType)
	set(&job.ExperienceLevel, f.ExperienceLevel)

	if d := strings.TrimSpace(f.Description); d != "" {
		job.Description = d
	} else {
		job.Description = plainText(job.Description)
	}
	if s := strings.TrimSpace(f.Salary); s != "" && job.SalaryRaw == nil {
		job.SalaryRaw = &s
		salary.Apply(job)
	}
	if job.ExpiresAt == nil {
		job.ExpiresAt = normalize.ParseDeadline(f.Deadline)
	}
	for _, t := range f.Tags {
		job.AddTag(strings.ToLower(strings.TrimSpace(t)))
	}
}

// Fallback replaces markup in the description with truncated plain text and
// fills an empty title from its first line.
func Fallback(job *domain.Job) {
	text := normalize.Truncate(plainText(job.Description), fallbackDescriptionLn)
	job.Description = text
	if strings.TrimSpace(job.Title) == "" {
		first, _, _ := strings.Cut(text, "\n")
		job.Title = normalize.Truncate(strings.TrimSpace(first), 120)
	}
}

func plainText(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<") {
		return normalize.HTMLToText(trimmed)
	}
	return normalize.MarkdownToText(trimmed)
}

// cutBytes trims s to at most n bytes without splitting a rune.
func cutBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
