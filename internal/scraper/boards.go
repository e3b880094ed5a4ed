package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/salary"
)

const (
	remotiveBaseURL  = "https://remotive.com/api/remote-jobs"
	remoteOKBaseURL  = "https://remoteok.com/api"
	arbeitnowBaseURL = "https://www.arbeitnow.com/api/job-board-api"
)

// RemotiveFetcher reads the Remotive public API
type RemotiveFetcher struct {
	BaseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemotiveFetcher creates a new Remotive fetcher
func NewRemotiveFetcher(logger *zap.Logger) *RemotiveFetcher {
	return &RemotiveFetcher{BaseURL: remotiveBaseURL, client: newHTTPClient(), logger: logger}
}

func (f *RemotiveFetcher) Name() string             { return "Remotive" }
func (f *RemotiveFetcher) Source() domain.JobSource { return domain.JobSourceRemotive }

type remotiveResponse struct {
	Jobs []struct {
		ID                        int      `json:"id"`
		URL                       string   `json:"url"`
		Title                     string   `json:"title"`
		CompanyName               string   `json:"company_name"`
		Category                  string   `json:"category"`
		Tags                      []string `json:"tags"`
		JobType                   string   `json:"job_type"`
		PublicationDate           string   `json:"publication_date"`
		CandidateRequiredLocation string   `json:"candidate_required_location"`
		Salary                    string   `json:"salary"`
		Description               string   `json:"description"`
	} `json:"jobs"`
}

// Fetch performs one API call. Query params: "category".
func (f *RemotiveFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	result := newResult()

	params := url.Values{}
	if q.Text != "" {
		params.Set("search", q.Text)
	}
	if c := q.Param("category", ""); c != "" {
		params.Set("category", c)
	}
	params.Set("limit", strconv.Itoa(q.LimitOr(DefaultLimit)))

	var resp remotiveResponse
	if _, err := getJSON(ctx, f.client, "remotive", f.BaseURL+"?"+params.Encode(), &resp); err != nil {
		result.Errors = append(result.Errors, err)
		result.finish()
		return result, err
	}

	result.Total = len(resp.Jobs)
	for _, r := range resp.Jobs {
		job := &domain.Job{
			Source:         domain.JobSourceRemotive,
			SourceID:       strconv.Itoa(r.ID),
			URL:            normalize.TrimURL(r.URL),
			Title:          r.Title,
			Company:        r.CompanyName,
			Location:       r.CandidateRequiredLocation,
			Description:    r.Description,
			EmploymentType: r.JobType,
			PostedAt:       parseBoardTime(r.PublicationDate),
			IsJobPosting:   true,
		}
		job.AddTag(r.Category)
		for _, t := range r.Tags {
			job.AddTag(t)
		}
		setSalary(job, r.Salary)
		job.RawPayload, _ = json.Marshal(r)
		result.add(job)
	}

	f.logger.Info("Remotive fetch completed", zap.Int("fetched", result.Fetched))
	return result.finish(), nil
}

// RemoteOKFetcher reads the RemoteOK public API
type RemoteOKFetcher struct {
	BaseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteOKFetcher creates a new RemoteOK fetcher
func NewRemoteOKFetcher(logger *zap.Logger) *RemoteOKFetcher {
	return &RemoteOKFetcher{BaseURL: remoteOKBaseURL, client: newHTTPClient(), logger: logger}
}

func (f *RemoteOKFetcher) Name() string             { return "RemoteOK" }
func (f *RemoteOKFetcher) Source() domain.JobSource { return domain.JobSourceRemoteOK }

// flexID accepts an id sent either as a JSON string or a number
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	*id = flexID(strings.Trim(string(b), `"`))
	if *id == "null" {
		*id = ""
	}
	return nil
}

type remoteOKItem struct {
	ID          flexID      `json:"id"`
	Slug        string      `json:"slug"`
	Epoch       int64       `json:"epoch"`
	Date        string      `json:"date"`
	Company     string      `json:"company"`
	Position    string      `json:"position"`
	Tags        []string    `json:"tags"`
	Description string      `json:"description"`
	Location    string      `json:"location"`
	SalaryMin   int         `json:"salary_min"`
	SalaryMax   int         `json:"salary_max"`
	ApplyURL    string      `json:"apply_url"`
	URL         string      `json:"url"`
	Legal       string      `json:"legal"`
}

// Fetch reads the feed, optionally narrowed by the "tag" param, and keeps
// items matching every word of the query text.
func (f *RemoteOKFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	result := newResult()

	reqURL := f.BaseURL
	if tag := q.Param("tag", ""); tag != "" {
		reqURL += "?tag=" + url.QueryEscape(tag)
	}

	var items []remoteOKItem
	if _, err := getJSON(ctx, f.client, "remoteok", reqURL, &items); err != nil {
		result.Errors = append(result.Errors, err)
		result.finish()
		return result, err
	}

	limit := q.LimitOr(DefaultLimit)
	for _, r := range items {
		// the first element is a legal notice
		if r.Legal != "" || r.ID == "" {
			continue
		}
		result.Total++
		if result.Fetched >= limit || !matchesQuery(q.Text, r.Position, r.Company, strings.Join(r.Tags, " ")) {
			continue
		}

		job := &domain.Job{
			Source:       domain.JobSourceRemoteOK,
			SourceID:     string(r.ID),
			URL:          normalize.TrimURL(firstNonEmpty(r.URL, r.ApplyURL)),
			Title:        r.Position,
			Company:      r.Company,
			Location:     r.Location,
			Description:  r.Description,
			PostedAt:     parseBoardTime(r.Date),
			IsJobPosting: true,
		}
		if r.Epoch > 0 {
			job.PostedAt = time.Unix(r.Epoch, 0).UTC()
		}
		for _, t := range r.Tags {
			job.AddTag(t)
		}
		if r.SalaryMin > 0 {
			lo, hi := r.SalaryMin, r.SalaryMax
			job.SalaryMin = &lo
			if hi > 0 {
				job.SalaryMax = &hi
			}
			job.SalaryCurrency = domain.CurrencyUSD
			job.SalaryPeriod = domain.SalaryPeriodYear
		}
		job.RawPayload, _ = json.Marshal(r)
		result.add(job)
	}

	f.logger.Info("RemoteOK fetch completed", zap.Int("total", result.Total), zap.Int("fetched", result.Fetched))
	return result.finish(), nil
}

// ArbeitnowFetcher reads the Arbeitnow job board API
type ArbeitnowFetcher struct {
	BaseURL  string
	MaxPages int
	client   *http.Client
	logger   *zap.Logger
}

// NewArbeitnowFetcher creates a new Arbeitnow fetcher
func NewArbeitnowFetcher(logger *zap.Logger) *ArbeitnowFetcher {
	return &ArbeitnowFetcher{BaseURL: arbeitnowBaseURL, MaxPages: 3, client: newHTTPClient(), logger: logger}
}

func (f *ArbeitnowFetcher) Name() string             { return "Arbeitnow" }
func (f *ArbeitnowFetcher) Source() domain.JobSource { return domain.JobSourceArbeitnow }

type arbeitnowResponse struct {
	Data []struct {
		Slug        string   `json:"slug"`
		CompanyName string   `json:"company_name"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Remote      bool     `json:"remote"`
		URL         string   `json:"url"`
		Tags        []string `json:"tags"`
		JobTypes    []string `json:"job_types"`
		Location    string   `json:"location"`
		CreatedAt   int64    `json:"created_at"`
	} `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Fetch walks pages until the limit or MaxPages is reached, keeping items
// that match the query text and, when set, the location.
func (f *ArbeitnowFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	result := newResult()
	limit := q.LimitOr(DefaultLimit)

	for page := 1; page <= f.MaxPages && result.Fetched < limit; page++ {
		var resp arbeitnowResponse
		if _, err := getJSON(ctx, f.client, "arbeitnow", fmt.Sprintf("%s?page=%d", f.BaseURL, page), &resp); err != nil {
			result.Errors = append(result.Errors, err)
			if page == 1 {
				result.finish()
				return result, err
			}
			f.logger.Warn("Arbeitnow page failed", zap.Int("page", page), zap.Error(err))
			break
		}

		for _, r := range resp.Data {
			result.Total++
			if result.Fetched >= limit {
				break
			}
			if !matchesQuery(q.Text, r.Title, r.CompanyName, strings.Join(r.Tags, " ")) {
				continue
			}
			if q.Location != "" && !r.Remote && !strings.Contains(strings.ToLower(r.Location), strings.ToLower(q.Location)) {
				continue
			}

			job := &domain.Job{
				Source:       domain.JobSourceArbeitnow,
				SourceID:     r.Slug,
				URL:          normalize.TrimURL(r.URL),
				Title:        r.Title,
				Company:      r.CompanyName,
				Location:     r.Location,
				Description:  r.Description,
				IsJobPosting: true,
				PostedAt:     time.Now().UTC(),
			}
			if r.CreatedAt > 0 {
				job.PostedAt = time.Unix(r.CreatedAt, 0).UTC()
			}
			if len(r.JobTypes) > 0 {
				job.EmploymentType = r.JobTypes[0]
			}
			if r.Remote {
				job.AddTag("remote")
			}
			for _, t := range r.Tags {
				job.AddTag(t)
			}
			job.RawPayload, _ = json.Marshal(r)
			result.add(job)
		}

		if resp.Links.Next == "" || len(resp.Data) == 0 {
			break
		}
	}

	f.logger.Info("Arbeitnow fetch completed", zap.Int("total", result.Total), zap.Int("fetched", result.Fetched))
	return result.finish(), nil
}

// matchesQuery reports whether every word of query occurs in one of fields.
// An empty query matches everything.
func matchesQuery(query string, fields ...string) bool {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return true
	}
	hay := strings.ToLower(strings.Join(fields, " "))
	for _, w := range words {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}

func setSalary(job *domain.Job, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	job.SalaryRaw = &raw
	salary.Apply(job)
}

func parseBoardTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
