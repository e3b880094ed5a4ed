package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3
)

// AdzunaFetcher fetches job offers from the Adzuna API. Without AppID or
// AppKey it returns an empty result so the cron run simply skips it.
type AdzunaFetcher struct {
	BaseURL string
	AppID   string
	AppKey  string
	Country string // "gb", "us", "de", …
	client  *http.Client
	logger  *zap.Logger
}

// NewAdzunaFetcher creates a new Adzuna fetcher
func NewAdzunaFetcher(appID, appKey, country string, logger *zap.Logger) *AdzunaFetcher {
	if country == "" {
		country = "gb"
	}
	return &AdzunaFetcher{
		BaseURL: adzunaBaseURL,
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		client:  newHTTPClient(),
		logger:  logger,
	}
}

func (f *AdzunaFetcher) Name() string             { return "Adzuna" }
func (f *AdzunaFetcher) Source() domain.JobSource { return domain.JobSourceAdzuna }

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
	Category     struct {
		Label string `json:"label"`
	} `json:"category"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Fetch iterates pages until no more results, the limit or adzunaMaxPages.
// Query params: "country" overrides the configured country.
func (f *AdzunaFetcher) Fetch(ctx context.Context, q Query) (*Result, error) {
	result := newResult()
	if f.AppID == "" || f.AppKey == "" {
		f.logger.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping Adzuna")
		return result.finish(), nil
	}

	country := strings.ToLower(q.Param("country", f.Country))
	limit := q.LimitOr(DefaultLimit)

	for page := 1; page <= adzunaMaxPages && result.Fetched < limit; page++ {
		batch, total, err := f.fetchPage(ctx, country, q, page)
		if err != nil {
			result.Errors = append(result.Errors, err)
			result.finish()
			return result, fmt.Errorf("page %d: %w", page, err)
		}
		result.Total = total
		for _, job := range batch {
			if result.Fetched >= limit {
				break
			}
			result.add(job)
		}
		if len(batch) < adzunaPageSize {
			break
		}
	}

	f.logger.Info("Adzuna fetch completed", zap.Int("total", result.Total), zap.Int("fetched", result.Fetched))
	return result.finish(), nil
}

func (f *AdzunaFetcher) fetchPage(ctx context.Context, country string, q Query, page int) ([]*domain.Job, int, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", f.BaseURL, country, page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.Text)
	if q.Location != "" {
		params.Set("where", q.Location)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	var resp adzunaResponse
	if _, err := getJSON(ctx, f.client, "adzuna", endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, 0, err
	}

	currency := adzunaCurrency(country)
	jobs := make([]*domain.Job, 0, len(resp.Results))
	for _, r := range resp.Results {
		job := &domain.Job{
			Source:         domain.JobSourceAdzuna,
			SourceID:       r.ID,
			URL:            normalize.TrimURL(r.RedirectURL),
			Title:          r.Title,
			Company:        r.Company.DisplayName,
			Location:       r.Location.DisplayName,
			Description:    r.Description,
			EmploymentType: strings.TrimSpace(strings.ReplaceAll(r.ContractTime+" "+r.ContractType, "_", "-")),
			PostedAt:       parseBoardTime(r.Created),
			IsJobPosting:   true,
		}
		job.AddTag(r.Category.Label)
		if r.SalaryMin > 0 {
			lo := int(math.Round(r.SalaryMin))
			job.SalaryMin = &lo
			if r.SalaryMax > 0 {
				hi := int(math.Round(r.SalaryMax))
				job.SalaryMax = &hi
			}
			job.SalaryCurrency = currency
			job.SalaryPeriod = domain.SalaryPeriodYear
		}
		job.RawPayload, _ = json.Marshal(r)
		jobs = append(jobs, job)
	}
	return jobs, resp.Count, nil
}

func adzunaCurrency(country string) domain.Currency {
	switch country {
	case "gb":
		return domain.CurrencyGBP
	case "us":
		return domain.CurrencyUSD
	case "ca":
		return domain.CurrencyCAD
	case "au":
		return domain.CurrencyAUD
	case "de", "fr", "nl", "it", "es", "at", "be":
		return domain.CurrencyEUR
	}
	return domain.CurrencyUnknown
}
