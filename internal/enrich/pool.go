package enrich

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

// Pool enriches a batch with at most Limit model calls in flight.
type Pool struct {
	enricher *Enricher
	limit    int
	logger   *zap.Logger
}

// NewPool creates a new enrichment pool
func NewPool(enricher *Enricher, limit int, logger *zap.Logger) *Pool {
	if limit <= 0 {
		limit = 4
	}
	return &Pool{enricher: enricher, limit: limit, logger: logger}
}

// Run enriches every job in place and returns, by index, whether the model
// answer was used. Completion order does not matter; jobs keep their slots.
func (p *Pool) Run(ctx context.Context, jobs []*domain.Job) []bool {
	enriched := make([]bool, len(jobs))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if ctx.Err() != nil {
				Fallback(job)
				return nil
			}
			enriched[i] = p.enricher.Enrich(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range enriched {
		if ok {
			n++
		}
	}
	p.logger.Debug("Enrichment batch done", zap.Int("jobs", len(jobs)), zap.Int("enriched", n))
	return enriched
}
