// Package pipeline holds the three ingestion flows: interactive search,
// extraction polling and the scheduled multi-source run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/enrich"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/filter"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/queue"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/retry"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/salary"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/scraper"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/store"
)

const (
	FetchAttempts = 2
	FetchBackoff  = 600 * time.Millisecond

	StatusCompleted = "completed"
	StatusQueued    = "queued"
)

// SearchRequest is an interactive search
type SearchRequest struct {
	UserID      string `json:"userId" validate:"required"`
	SearchQuery string `json:"searchQuery" validate:"required"`
	Location    string `json:"location"`
	Limit       int    `json:"limit" validate:"omitempty,min=1,max=100"`
	TBS         string `json:"tbs"`
	Async       bool   `json:"async"`
}

// SearchResponse is returned for completed and queued searches
type SearchResponse struct {
	Success      bool   `json:"success"`
	JobsInserted int    `json:"jobsInserted"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// Enricher enriches a batch in place
type Enricher interface {
	Run(ctx context.Context, jobs []*domain.Job) []bool
}

// Enqueuer hands a search to the background consumer
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.SearchMessage) (string, error)
}

// Search runs interactive searches for one user at a time.
type Search struct {
	fetcher  scraper.Fetcher
	settings store.SettingsReader
	upserter store.Upserter
	policy   domain.DomainPolicy
	enricher Enricher
	queue    Enqueuer
	logger   *zap.Logger

	attempts int
	backoff  time.Duration
}

// NewSearch creates the interactive search flow. enricher and enqueuer may be
// nil; without an enricher descriptions get the plain-text fallback.
func NewSearch(
	fetcher scraper.Fetcher,
	settings store.SettingsReader,
	upserter store.Upserter,
	policy domain.DomainPolicy,
	enricher Enricher,
	enqueuer Enqueuer,
	logger *zap.Logger,
) *Search {
	return &Search{
		fetcher:  fetcher,
		settings: settings,
		upserter: upserter,
		policy:   policy,
		enricher: enricher,
		queue:    enqueuer,
		logger:   logger,
		attempts: FetchAttempts,
		backoff:  FetchBackoff,
	}
}

// Submit runs the search, or queues it when the request asks for async
// handling and a queue is configured.
func (s *Search) Submit(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if !req.Async || s.queue == nil {
		return s.Run(ctx, req)
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	id, err := s.queue.Enqueue(ctx, queue.SearchMessage{
		UserID:   req.UserID,
		Query:    req.SearchQuery,
		Location: req.Location,
		Limit:    req.Limit,
		TBS:      req.TBS,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Search queued", zap.String("user_id", req.UserID), zap.String("message_id", id))
	return &SearchResponse{
		Success: true,
		Status:  StatusQueued,
		Message: "Search queued for background processing",
	}, nil
}

// HandleQueued runs a search taken off the queue.
func (s *Search) HandleQueued(ctx context.Context, msg queue.SearchMessage) error {
	_, err := s.Run(ctx, SearchRequest{
		UserID:      msg.UserID,
		SearchQuery: msg.Query,
		Location:    msg.Location,
		Limit:       msg.Limit,
		TBS:         msg.TBS,
	})
	return err
}

// Run executes one search: load settings, fetch with retry, filter and
// sort, enrich, parse salaries, upsert. Failures up to and including the
// fetch and the upsert are returned; enrichment failures only degrade the
// affected jobs.
func (s *Search) Run(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("user_id", req.UserID), zap.String("query", req.SearchQuery))

	settings, err := s.settings.SourceSettings(ctx, req.UserID)
	if err != nil {
		log.Warn("Loading source settings failed, using defaults", zap.Error(err))
		settings = nil
	}
	allow := s.policy.Effective(settings)
	limit := req.Limit
	if limit <= 0 {
		limit = scraper.DefaultLimit
	}

	q := scraper.Query{
		Text:     req.SearchQuery,
		Location: req.Location,
		Limit:    limit,
		TBS:      req.TBS,
		Domains:  allow,
	}
	res, err := retry.Do(ctx, s.attempts, s.backoff, func(ctx context.Context) (*scraper.Result, error) {
		res, err := s.fetcher.Fetch(ctx, q)
		return res, retry.Classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	filtered := filter.Apply(res.Jobs, filter.Options{
		Allow: allow,
		Block: s.policy.Blocklist(),
		Limit: limit,
	})
	jobs := filtered.Jobs
	SortPostingsFirst(jobs)

	if s.enricher != nil && len(jobs) > 0 {
		s.enricher.Run(ctx, jobs)
	} else {
		for _, job := range jobs {
			enrich.Fallback(job)
		}
	}

	for _, job := range jobs {
		salary.Apply(job)
		job.UserID = req.UserID
		job.SourceID = normalize.TrimURL(job.URL)
	}

	inserted, err := s.upserter.UpsertJobs(ctx, jobs)
	if err != nil {
		return nil, err
	}

	log.Info("Search completed",
		zap.Int("fetched", res.Fetched),
		zap.Int("kept", len(jobs)),
		zap.Any("dropped", filtered.Dropped),
		zap.Int("inserted", inserted),
	)
	return &SearchResponse{
		Success:      true,
		JobsInserted: inserted,
		Status:       StatusCompleted,
		Message:      fmt.Sprintf("Found %d jobs, saved %d", len(jobs), inserted),
	}, nil
}

// SortPostingsFirst moves individual postings ahead of everything else and
// otherwise keeps the input order.
func SortPostingsFirst(jobs []*domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].IsJobPosting && !jobs[j].IsJobPosting
	})
}

func validate(req SearchRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.SearchQuery) == "" {
		return fmt.Errorf("%w: searchQuery is required", domain.ErrValidation)
	}
	return nil
}
