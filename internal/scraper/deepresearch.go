package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/classify"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/firecrawl"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
)

// ResearchWindow is how far back deep research accepts postings
const ResearchWindow = 90 * 24 * time.Hour

const strictRulesPrompt = "You are collecting individual job postings. Rules: " +
	"only postings published in the last 90 days; " +
	"never LinkedIn pages; " +
	"never salary guides, salary comparisons or \"how much does X make\" articles; " +
	"never search result or category listing pages. " +
	"If the page breaks a rule, return empty fields. Otherwise extract title, company, location, " +
	"salary as written, employment type, posting date and deadline."

var researchExclusions = []string{"-site:linkedin.com", "-salary", "-salaries", `-"how much"`, "-inurl:search"}

var (
	atCompanyRe   = regexp.MustCompile(`\bat\s+([A-Z][\w&.'\- ]{1,60}?)(?:\s+[-|–(,]|\s+in\s|$)`)
	hiringRe      = regexp.MustCompile(`^([A-Z][\w&.'\- ]{1,60}?)\s+(?:is\s+)?hiring\b`)
	titleSepRe    = regexp.MustCompile(`\s+[-|–]\s+`)
	locationRe    = regexp.MustCompile(`(?i)\b(?:location|based in|located in)\s*[:\-]?\s*([A-Z][\w .,'-]{1,60}?)(?:\s*[.;|\n]|$)`)
	remoteRe      = regexp.MustCompile(`(?i)\b(fully remote|remote)\b`)
	salarySnipRe  = regexp.MustCompile(`[$£€]\s?\d[\d,.]*\s?[kK]?(?:\s?(?:-|–|to)\s?[$£€]?\s?\d[\d,.]*\s?[kK]?)?(?:\s?(?:per|/|a|an)\s?(?:year|yr|hour|hr|month|annum|day))?`)
	boardSuffixes = []string{"indeed", "glassdoor", "remotive", "remoteok", "wellfound", "dice", "jobicy", "we work remotely", "careers", "jobs"}
)

// Renderer loads a page in a real browser and returns its HTML
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// DeepResearchFetcher runs several search hops under strict rules, keeps
// only URLs the bulk classifier accepts and fills missing fields from the
// result snippets.
type DeepResearchFetcher struct {
	client   Searcher
	bulk     *classify.Bulk
	renderer Renderer
	hops     int
	logger   *zap.Logger
	now      func() time.Time
}

// NewDeepResearchFetcher creates a new deep research fetcher. renderer may be
// nil, in which case empty snippets stay empty.
func NewDeepResearchFetcher(client Searcher, bulk *classify.Bulk, renderer Renderer, hops int, logger *zap.Logger) *DeepResearchFetcher {
	if hops <= 0 {
		hops = 3
	}
	return &DeepResearchFetcher{
		client:   client,
		bulk:     bulk,
		renderer: renderer,
		hops:     hops,
		logger:   logger,
		now:      time.Now,
	}
}

// Name returns the fetcher name
func (f *DeepResearchFetcher) Name() string {
	return "Deep Research"
}

// Source returns the job source
func (f *DeepResearchFetcher) Source() domain.JobSource {
	return domain.JobSourceDeepResearch
}

// ResearchQueries returns the search string for each hop
func ResearchQueries(q Query, hops int) []string {
	text := strings.TrimSpace(q.Text)
	loc := strings.TrimSpace(q.Location)

	bases := []string{
		strings.TrimSpace(text + " jobs " + loc),
		strings.TrimSpace(text + " hiring now apply " + loc),
		strings.TrimSpace(fmt.Sprintf("%q careers %s", text, loc)),
		strings.TrimSpace(text + " open position " + loc),
	}
	if hops > len(bases) {
		hops = len(bases)
	}

	var site string
	if len(q.Domains) > 0 {
		sites := make([]string, 0, len(q.Domains))
		for _, d := range q.Domains {
			sites = append(sites, "site:"+d)
		}
		site = " (" + strings.Join(sites, " OR ") + ")"
	}

	out := make([]string, 0, hops)
	for _, b := range bases[:hops] {
		out = append(out, b+site+" "+strings.Join(researchExclusions, " "))
	}
	return out
}

// Fetch runs the hops sequentially. A failed hop is logged and skipped; the
// fetch fails only when every hop fails.
func (f *DeepResearchFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	result := newResult()
	now := f.now().UTC()
	cutoff := now.Add(-ResearchWindow)
	tbs := fmt.Sprintf("cdr:1,cd_min:%s,cd_max:%s", cutoff.Format("1/2/2006"), now.Format("1/2/2006"))
	limit := q.LimitOr(DefaultLimit)

	seen := make(map[string]bool)
	var dropped, failed int
	queries := ResearchQueries(q, f.hops)

	for hop, query := range queries {
		if result.Fetched >= limit {
			break
		}

		hits, err := f.client.Search(ctx, firecrawl.SearchRequest{
			Query: query,
			Limit: limit,
			TBS:   tbs,
			ScrapeOptions: &firecrawl.ScrapeOptions{
				Formats:         []string{"markdown", "json"},
				OnlyMainContent: true,
				JSONOptions:     &firecrawl.JSONOptions{Prompt: strictRulesPrompt, Schema: PostingSchema},
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return result.finish(), ctx.Err()
			}
			failed++
			result.Errors = append(result.Errors, err)
			f.logger.Warn("Research hop failed", zap.Int("hop", hop+1), zap.Error(err))
			continue
		}
		result.Total += len(hits)

		for _, hit := range hits {
			if result.Fetched >= limit {
				break
			}
			key := normalize.URLKey(hit.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true

			if !f.bulk.IsJobPosting(hit.URL) {
				dropped++
				continue
			}

			job := jobFromHit(hit, domain.JobSourceDeepResearch, f.bulk)
			if job.PostedAt.Before(cutoff) {
				dropped++
				continue
			}
			f.fillFromSnippet(job, hit)
			f.renderIfEmpty(ctx, job)
			result.add(job)
		}
	}

	result.finish()
	if failed == len(queries) && len(queries) > 0 {
		return result, fmt.Errorf("deep research: all %d hops failed: %w", failed, errors.Join(result.Errors...))
	}

	f.logger.Info("Deep research completed",
		zap.Int("hops", len(queries)),
		zap.Int("total", result.Total),
		zap.Int("fetched", result.Fetched),
		zap.Int("dropped", dropped),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (f *DeepResearchFetcher) fillFromSnippet(job *domain.Job, hit firecrawl.SearchResult) {
	snippet := hit.Description
	if md := hit.Markdown; md != "" {
		snippet += "\n" + normalize.Truncate(md, 2000)
	}

	if job.Company == "" {
		job.Company = CompanyFromText(hit.Title, snippet)
	}
	if job.Location == "" {
		job.Location = LocationFromText(snippet)
	}
	if job.SalaryRaw == nil {
		if s := SalaryFromText(snippet); s != "" {
			setSalary(job, s)
		}
	}
}

func (f *DeepResearchFetcher) renderIfEmpty(ctx context.Context, job *domain.Job) {
	if f.renderer == nil || strings.TrimSpace(job.Description) != "" {
		return
	}
	html, err := f.renderer.Render(ctx, job.URL)
	if err != nil {
		f.logger.Debug("Render failed", zap.String("url", job.URL), zap.Error(err))
		return
	}
	job.Description = normalize.HTMLToText(html)
}

// CompanyFromText guesses the hiring company from a page title and snippet.
func CompanyFromText(title, snippet string) string {
	if m := atCompanyRe.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := hiringRe.FindStringSubmatch(strings.TrimSpace(snippet)); m != nil {
		return strings.TrimSpace(m[1])
	}
	if parts := titleSepRe.Split(title, -1); len(parts) > 1 {
		for i := len(parts) - 1; i > 0; i-- {
			p := strings.TrimSpace(parts[i])
			if p != "" && !isBoardName(p) {
				return p
			}
		}
	}
	if m := atCompanyRe.FindStringSubmatch(snippet); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// LocationFromText finds an explicit location statement, or "Remote".
func LocationFromText(snippet string) string {
	if m := locationRe.FindStringSubmatch(snippet); m != nil {
		return strings.TrimSpace(strings.TrimRight(m[1], ", "))
	}
	if remoteRe.MatchString(snippet) {
		return "Remote"
	}
	return ""
}

// SalaryFromText returns the first currency amount or range in snippet.
func SalaryFromText(snippet string) string {
	return strings.TrimSpace(salarySnipRe.FindString(snippet))
}

func isBoardName(s string) bool {
	s = strings.ToLower(s)
	for _, b := range boardSuffixes {
		if strings.Contains(s, b) {
			return true
		}
	}
	return false
}
