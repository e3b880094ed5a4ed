package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/classify"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/firecrawl"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
)

// Searcher is the part of the Firecrawl client the search-backed fetchers use
type Searcher interface {
	Search(ctx context.Context, req firecrawl.SearchRequest) ([]firecrawl.SearchResult, error)
}

// SearchFormats are the scrape formats requested for every search hit
var SearchFormats = []string{"markdown", "html", "screenshot", "json"}

var (
	jobPathHints   = []string{"job", "jobs", "careers", "viewjob", "posting"}
	exclusionTerms = []string{"-inurl:search", "-salary", "-salaries", `-"how much"`}
	titleHints     = []string{"hiring", "job", "career"}
)

const searchJSONPrompt = "If this page is a single job posting, extract its title, company, location, " +
	"salary as written, employment type, experience level, posting date and application deadline. " +
	"Leave fields empty when the page does not state them."

// BuildSearchQuery composes the boosted search string: the raw query, the
// quoted location, a site: clause over domains, job-page URL hints,
// exclusion terms and title hints.
func BuildSearchQuery(query, location string, domains []string) string {
	parts := []string{strings.TrimSpace(query)}

	if loc := strings.TrimSpace(location); loc != "" {
		parts = append(parts, fmt.Sprintf("%q", loc))
	}
	if len(domains) > 0 {
		sites := make([]string, 0, len(domains))
		for _, d := range domains {
			sites = append(sites, "site:"+d)
		}
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}

	hints := make([]string, 0, len(jobPathHints))
	for _, h := range jobPathHints {
		hints = append(hints, "inurl:"+h)
	}
	parts = append(parts, "("+strings.Join(hints, " OR ")+")")
	parts = append(parts, exclusionTerms...)

	titles := make([]string, 0, len(titleHints))
	for _, h := range titleHints {
		titles = append(titles, "intitle:"+h)
	}
	parts = append(parts, "("+strings.Join(titles, " OR ")+")")

	return strings.Join(parts, " ")
}

// SearchFetcher finds postings through a web search scoped to the allowed
// domains and scrapes each hit.
type SearchFetcher struct {
	client     Searcher
	classifier classify.Classifier
	logger     *zap.Logger
}

// NewSearchFetcher creates a new search-backed fetcher
func NewSearchFetcher(client Searcher, classifier classify.Classifier, logger *zap.Logger) *SearchFetcher {
	return &SearchFetcher{
		client:     client,
		classifier: classifier,
		logger:     logger,
	}
}

// Name returns the fetcher name
func (f *SearchFetcher) Name() string {
	return "Firecrawl Search"
}

// Source returns the job source
func (f *SearchFetcher) Source() domain.JobSource {
	return domain.JobSourceFirecrawlSearch
}

// Fetch runs the boosted search and maps each hit to a Job. Classification
// only sets IsJobPosting here; nothing is dropped.
func (f *SearchFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	result := newResult()

	query := BuildSearchQuery(q.Text, q.Location, q.Domains)
	f.logger.Info("Starting search fetch",
		zap.String("query", query),
		zap.Int("limit", q.LimitOr(DefaultLimit)),
	)

	hits, err := f.client.Search(ctx, firecrawl.SearchRequest{
		Query:    query,
		Limit:    q.LimitOr(DefaultLimit),
		TBS:      q.TBS,
		Location: q.Location,
		ScrapeOptions: &firecrawl.ScrapeOptions{
			Formats:         SearchFormats,
			OnlyMainContent: true,
			JSONOptions: &firecrawl.JSONOptions{
				Prompt: searchJSONPrompt,
				Schema: PostingSchema,
			},
		},
	})
	if err != nil {
		result.Errors = append(result.Errors, err)
		result.finish()
		return result, fmt.Errorf("search: %w", err)
	}

	result.Total = len(hits)
	for _, hit := range hits {
		job := jobFromHit(hit, domain.JobSourceFirecrawlSearch, f.classifier)
		if job == nil {
			continue
		}
		result.add(job)
	}

	result.finish()
	f.logger.Info("Search fetch completed",
		zap.Int("total", result.Total),
		zap.Int("fetched", result.Fetched),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

// jobFromHit maps a scraped search hit to a Job. Hits without a URL are skipped.
func jobFromHit(hit firecrawl.SearchResult, source domain.JobSource, classifier classify.Classifier) *domain.Job {
	link := normalize.TrimURL(hit.URL)
	if link == "" {
		return nil
	}

	var ext domain.ExtractedJob
	if len(hit.JSON) > 0 {
		_ = json.Unmarshal(hit.JSON, &ext)
	}
	ext.URL = link
	if ext.Title == "" {
		ext.Title = hit.Title
	}

	job := JobFromExtracted(ext, source)
	job.Description = normalize.LongestDescription(hit.Markdown, ext.Description, hit.Description)
	job.IsJobPosting = classifier.IsJobPosting(link)
	if len(hit.Raw) > 0 {
		job.RawPayload = hit.Raw
	}
	return job
}
