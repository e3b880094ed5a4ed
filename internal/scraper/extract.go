package scraper

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/firecrawl"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
)

// MaxExtractURLs caps one extraction batch
const MaxExtractURLs = 50

// Extractor is the part of the Firecrawl client the extraction path uses
type Extractor interface {
	SubmitExtract(ctx context.Context, req firecrawl.ExtractRequest) (string, error)
	ExtractStatus(ctx context.Context, id string) (*domain.ExtractionJob, error)
}

// ExtractSubmitter starts asynchronous multi-URL extractions. Completion is
// observed separately by polling the returned id.
type ExtractSubmitter struct {
	client Extractor
	logger *zap.Logger
}

// NewExtractSubmitter creates a new extraction submitter
func NewExtractSubmitter(client Extractor, logger *zap.Logger) *ExtractSubmitter {
	return &ExtractSubmitter{client: client, logger: logger}
}

// Submit validates and de-duplicates urls, then submits them with prompt and
// the job schema. It returns the provider's job id.
func (s *ExtractSubmitter) Submit(ctx context.Context, urls []string, prompt string) (string, error) {
	clean := make([]string, 0, len(urls))
	seen := make(map[string]bool)
	for _, u := range urls {
		u = normalize.TrimURL(u)
		if u == "" || !(strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")) {
			continue
		}
		key := normalize.URLKey(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		clean = append(clean, u)
	}
	if len(clean) == 0 {
		return "", fmt.Errorf("%w: at least one http(s) url is required", domain.ErrValidation)
	}
	if len(clean) > MaxExtractURLs {
		return "", fmt.Errorf("%w: at most %d urls per extraction", domain.ErrValidation, MaxExtractURLs)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultExtractPrompt
	}

	id, err := s.client.SubmitExtract(ctx, firecrawl.ExtractRequest{
		URLs:   clean,
		Prompt: prompt,
		Schema: JobSchema,
	})
	if err != nil {
		return "", fmt.Errorf("submit extract: %w", err)
	}

	s.logger.Info("Extraction submitted", zap.String("jobId", id), zap.Int("urls", len(clean)))
	return id, nil
}
