// Package firecrawl is a small client for the Firecrawl search and extract
// endpoints. Every failure comes back as a *domain.UpstreamError.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

const (
	// Provider is the name used in upstream errors and logs
	Provider = "firecrawl"

	defaultBaseURL = "https://api.firecrawl.dev"
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 2048
)

var retryAfterBodyRe = regexp.MustCompile(`(?i)retry after (\d+)s`)

// Config configures the client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the Firecrawl v1 API with a bearer key
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a new Firecrawl client
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// SearchRequest is the body of POST /v1/search
type SearchRequest struct {
	Query         string         `json:"query"`
	Limit         int            `json:"limit,omitempty"`
	TBS           string         `json:"tbs,omitempty"`
	Location      string         `json:"location,omitempty"`
	ScrapeOptions *ScrapeOptions `json:"scrapeOptions,omitempty"`
}

// ScrapeOptions asks Firecrawl to scrape each search hit
type ScrapeOptions struct {
	Formats         []string     `json:"formats"`
	OnlyMainContent bool         `json:"onlyMainContent"`
	JSONOptions     *JSONOptions `json:"jsonOptions,omitempty"`
}

// JSONOptions drives the structured "json" format
type JSONOptions struct {
	Prompt string         `json:"prompt,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

// Metadata is the page metadata Firecrawl attaches to a scrape
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"sourceURL"`
	StatusCode  int    `json:"statusCode"`
}

// SearchResult is one hit, with whatever formats were requested
type SearchResult struct {
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Markdown    string          `json:"markdown"`
	HTML        string          `json:"html"`
	Screenshot  string          `json:"screenshot"`
	JSON        json.RawMessage `json:"json"`
	Metadata    Metadata        `json:"metadata"`

	// Raw is the unmodified hit
	Raw json.RawMessage `json:"-"`
}

type searchResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Data    []json.RawMessage `json:"data"`
}

// Search runs a web search and scrapes the hits.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success && resp.Error != "" {
		return nil, domain.HTTPError(Provider, http.StatusBadGateway, resp.Error)
	}

	results := make([]SearchResult, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var r SearchResult
		if err := json.Unmarshal(raw, &r); err != nil {
			c.logger.Debug("Skipping undecodable search hit", zap.Error(err))
			continue
		}
		if r.URL == "" {
			r.URL = r.Metadata.SourceURL
		}
		if r.Title == "" {
			r.Title = r.Metadata.Title
		}
		if r.Description == "" {
			r.Description = r.Metadata.Description
		}
		r.Raw = raw
		results = append(results, r)
	}
	return results, nil
}

// ExtractRequest is the body of POST /v1/extract
type ExtractRequest struct {
	URLs   []string       `json:"urls"`
	Prompt string         `json:"prompt,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

type extractSubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// SubmitExtract starts an asynchronous extraction and returns its id.
func (c *Client) SubmitExtract(ctx context.Context, req ExtractRequest) (string, error) {
	var resp extractSubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/extract", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		msg := resp.Error
		if msg == "" {
			msg = "extract accepted without an id"
		}
		return "", domain.HTTPError(Provider, http.StatusBadGateway, msg)
	}
	return resp.ID, nil
}

// ExtractStatus fetches the current state of an extraction job.
func (c *Client) ExtractStatus(ctx context.Context, id string) (*domain.ExtractionJob, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v1/extract/"+id, nil, &raw); err != nil {
		return nil, err
	}

	var job domain.ExtractionJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, domain.HTTPError(Provider, http.StatusBadGateway, fmt.Sprintf("decode extract status: %v", err))
	}
	if job.ID == "" {
		job.ID = id
	}
	job.Raw = raw
	return &job, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.NetworkError(Provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NetworkError(Provider, fmt.Errorf("read body: %w", err))
	}

	c.logger.Debug("Firecrawl call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.RateLimited(Provider, retryAfterSeconds(resp.Header.Get("Retry-After"), data))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.HTTPError(Provider, resp.StatusCode, clip(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.HTTPError(Provider, http.StatusBadGateway, fmt.Sprintf("decode %s: %v", path, err))
	}
	return nil
}

// retryAfterSeconds reads a delay from the Retry-After header, either seconds
// or an HTTP date, then falls back to a "retry after Ns" message in the body.
func retryAfterSeconds(header string, body []byte) int {
	header = strings.TrimSpace(header)
	if header != "" {
		if n, err := strconv.Atoi(header); err == nil && n >= 0 {
			return n
		}
		if t, err := http.ParseTime(header); err == nil {
			if d := time.Until(t); d > 0 {
				return int(d.Round(time.Second) / time.Second)
			}
		}
	}
	if m := retryAfterBodyRe.FindSubmatch(body); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			return n
		}
	}
	return 0
}

func clip(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
