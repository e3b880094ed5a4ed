package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/scraper"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/store"
)

// PollRequest asks for the state of an extraction
type PollRequest struct {
	JobID          string `json:"jobId" validate:"required"`
	SearchQuery    string `json:"searchQuery"`
	SearchLocation string `json:"searchLocation"`
}

// PollResult is the provider's view of the extraction plus what was stored
type PollResult struct {
	Extraction   *domain.ExtractionJob
	JobsInserted int
}

// StatusReader reads extraction state from the provider
type StatusReader interface {
	ExtractStatus(ctx context.Context, id string) (*domain.ExtractionJob, error)
}

// Poller checks an extraction once per call and stores its jobs when it has
// completed. Calling it again for a completed extraction writes the same
// rows again under the same keys.
type Poller struct {
	client   StatusReader
	upserter store.Upserter
	logger   *zap.Logger
}

// NewPoller creates a new extraction poller
func NewPoller(client StatusReader, upserter store.Upserter, logger *zap.Logger) *Poller {
	return &Poller{client: client, upserter: upserter, logger: logger}
}

// Poll fetches the extraction status. Provider errors are returned as is so
// callers can pass the provider's status code through.
func (p *Poller) Poll(ctx context.Context, userID string, req PollRequest) (*PollResult, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrValidation)
	}

	ext, err := p.client.ExtractStatus(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	result := &PollResult{Extraction: ext}
	if ext.Status != domain.ExtractionCompleted || ext.Data == nil {
		return result, nil
	}

	jobs := JobsFromExtraction(ext, userID, req.SearchLocation)
	inserted, err := p.upserter.UpsertJobs(ctx, jobs)
	if err != nil {
		return nil, err
	}
	result.JobsInserted = inserted

	p.logger.Info("Extraction stored",
		zap.String("jobId", req.JobID),
		zap.String("user_id", userID),
		zap.String("query", req.SearchQuery),
		zap.Int("extracted", len(ext.Data.Jobs)),
		zap.Int("inserted", inserted),
	)
	return result, nil
}

// JobsFromExtraction maps a completed extraction to jobs owned by userID.
// searchLocation fills in postings that state no location.
func JobsFromExtraction(ext *domain.ExtractionJob, userID, searchLocation string) []*domain.Job {
	if ext == nil || ext.Data == nil {
		return nil
	}
	jobs := make([]*domain.Job, 0, len(ext.Data.Jobs))
	for _, e := range ext.Data.Jobs {
		job := scraper.JobFromExtracted(e, domain.JobSourceFirecrawlExtract)
		if job.Title == "" && job.URL == "" {
			continue
		}
		job.UserID = userID
		job.IsJobPosting = true
		if job.Location == "" {
			job.Location = strings.TrimSpace(searchLocation)
		}
		jobs = append(jobs, job)
	}
	return jobs
}
