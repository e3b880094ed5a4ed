package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/classify"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/filter"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/mirror"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/retry"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/scraper"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/store"
)

// CronSource is one configured fetch of a scheduled run
type CronSource struct {
	Source domain.JobSource
	Query  scraper.Query
}

// CronResult reports a scheduled run
type CronResult struct {
	OK       bool     `json:"ok"`
	Fetched  int      `json:"fetched"`
	Rejected int      `json:"rejected"`
	Unique   int      `json:"unique"`
	Upserted int      `json:"upserted"`
	Pushed   int      `json:"pushed"`
	MS       int64    `json:"ms"`
	Skipped  bool     `json:"skipped,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Locker serializes scheduled runs across processes
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Cron fetches every configured source, merges the results and stores them
// as listings, then mirrors them.
type Cron struct {
	registry *scraper.Registry
	sources  []CronSource
	bulk     classify.Classifier
	policy   domain.DomainPolicy
	upserter store.Upserter
	mirror   mirror.Mirror
	lock     Locker
	logger   *zap.Logger
	now      func() time.Time

	attempts int
	backoff  time.Duration
}

// NewCron creates the scheduled flow. mirror and lock may be nil.
func NewCron(
	registry *scraper.Registry,
	sources []CronSource,
	bulk classify.Classifier,
	policy domain.DomainPolicy,
	upserter store.Upserter,
	m mirror.Mirror,
	lock Locker,
	logger *zap.Logger,
) *Cron {
	return &Cron{
		registry: registry,
		sources:  sources,
		bulk:     bulk,
		policy:   policy,
		upserter: upserter,
		mirror:   m,
		lock:     lock,
		logger:   logger,
		now:      time.Now,
		attempts: FetchAttempts,
		backoff:  FetchBackoff,
	}
}

// Run performs one scheduled run. A failing source is logged and skipped.
// Only a storage failure fails the run; mirror failures are reported in the
// result.
func (c *Cron) Run(ctx context.Context) (*CronResult, error) {
	start := c.now()
	result := &CronResult{}

	if c.lock != nil {
		unlock, ok, err := c.lock.TryLock(ctx)
		switch {
		case err != nil:
			c.logger.Warn("Cron lock unavailable, running unlocked", zap.Error(err))
		case !ok:
			c.logger.Info("Cron run already in progress, skipping")
			result.OK = true
			result.Skipped = true
			return result, nil
		default:
			defer unlock()
		}
	}

	batches := make([][]*domain.Job, 0, len(c.sources))
	for _, src := range c.sources {
		jobs, err := c.fetch(ctx, src)
		if err != nil {
			c.logger.Error("Source failed", zap.String("source", string(src.Source)), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", src.Source, err))
			continue
		}
		result.Fetched += len(jobs)

		if src.Source.SearchDerived() {
			kept := jobs[:0]
			for _, job := range jobs {
				if c.bulk.IsJobPosting(job.URL) {
					kept = append(kept, job)
				}
			}
			result.Rejected += len(jobs) - len(kept)
			jobs = kept
		}
		batches = append(batches, jobs)
	}

	merged, _ := filter.Merge(batches...)
	result.Unique = len(merged)

	upserted, err := c.upserter.UpsertListings(ctx, merged)
	if err != nil {
		result.MS = c.now().Sub(start).Milliseconds()
		return result, err
	}
	result.Upserted = upserted

	if c.mirror != nil && len(merged) > 0 {
		pushed, err := c.mirror.Push(ctx, merged)
		if err != nil {
			c.logger.Warn("Mirror failed", zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("mirror: %v", err))
		}
		result.Pushed = pushed
	}

	result.OK = true
	result.MS = c.now().Sub(start).Milliseconds()
	c.logger.Info("Cron run completed",
		zap.Int("fetched", result.Fetched),
		zap.Int("rejected", result.Rejected),
		zap.Int("unique", result.Unique),
		zap.Int("upserted", result.Upserted),
		zap.Int("pushed", result.Pushed),
		zap.Int64("ms", result.MS),
	)
	return result, nil
}

func (c *Cron) fetch(ctx context.Context, src CronSource) ([]*domain.Job, error) {
	f, ok := c.registry.Get(src.Source)
	if !ok {
		return nil, fmt.Errorf("no fetcher registered")
	}

	q := src.Query
	if src.Source.SearchDerived() && len(q.Domains) == 0 {
		q.Domains = c.policy.Defaults()
	}

	res, err := retry.Do(ctx, c.attempts, c.backoff, func(ctx context.Context) (*scraper.Result, error) {
		res, err := f.Fetch(ctx, q)
		return res, retry.Classify(err)
	})
	if err != nil {
		return nil, err
	}
	for _, e := range res.Errors {
		c.logger.Debug("Partial source error", zap.String("source", string(src.Source)), zap.Error(e))
	}
	return res.Jobs, nil
}
