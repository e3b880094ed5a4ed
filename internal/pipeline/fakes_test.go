package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/firecrawl"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/queue"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/scraper"
)

// memStore applies upserts to maps keyed like the real conflict targets
type memStore struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	listings    map[string]*domain.Job
	jobCalls    int
	err         error
	settings    *domain.SourceSettings
	settingsErr error
	lastBatch   []*domain.Job
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     make(map[string]*domain.Job),
		listings: make(map[string]*domain.Job),
	}
}

func (m *memStore) UpsertJobs(_ context.Context, jobs []*domain.Job) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCalls++
	if m.err != nil {
		return 0, m.err
	}
	m.lastBatch = jobs
	keys := make(map[string]struct{})
	for _, j := range jobs {
		k := j.UserID + "|" + j.SourceID
		keys[k] = struct{}{}
		copied := *j
		m.jobs[k] = &copied
	}
	return len(keys), nil
}

func (m *memStore) UpsertListings(_ context.Context, jobs []*domain.Job) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	keys := make(map[string]struct{})
	for _, j := range jobs {
		k := j.URL
		if k == "" {
			k = j.MergeKey()
		}
		keys[k] = struct{}{}
		m.listings[k] = j
	}
	return len(keys), nil
}

func (m *memStore) SourceSettings(context.Context, string) (*domain.SourceSettings, error) {
	return m.settings, m.settingsErr
}

// fakeSearcher answers firecrawl searches with canned hits
type fakeSearcher struct {
	mu       sync.Mutex
	hits     []firecrawl.SearchResult
	errs     []error
	requests []firecrawl.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req firecrawl.SearchRequest) ([]firecrawl.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.hits, nil
}

// fakeFetcher returns jobs by query text
type fakeFetcher struct {
	source  domain.JobSource
	byQuery map[string][]*domain.Job
	err     error
	errs    []error
	queries []scraper.Query
}

func (f *fakeFetcher) Name() string             { return string(f.source) }
func (f *fakeFetcher) Source() domain.JobSource { return f.source }

func (f *fakeFetcher) Fetch(_ context.Context, q scraper.Query) (*scraper.Result, error) {
	f.queries = append(f.queries, q)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	jobs := f.byQuery[q.Text]
	return &scraper.Result{Jobs: jobs, Total: len(jobs), Fetched: len(jobs)}, nil
}

type fakeMirror struct {
	err  error
	seen int
}

func (f *fakeMirror) Push(_ context.Context, jobs []*domain.Job) (int, error) {
	f.seen += len(jobs)
	if f.err != nil {
		return 0, f.err
	}
	return len(jobs), nil
}

type fakeLocker struct {
	ok       bool
	err      error
	released bool
}

func (f *fakeLocker) TryLock(context.Context) (func(), bool, error) {
	if f.err != nil || !f.ok {
		return nil, false, f.err
	}
	return func() { f.released = true }, true, nil
}

type fakeEnqueuer struct {
	msgs []queue.SearchMessage
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msg queue.SearchMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, msg)
	return fmt.Sprintf("%d-0", len(f.msgs)), nil
}

type fakeStatus struct {
	ext   *domain.ExtractionJob
	err   error
	calls int
}

func (f *fakeStatus) ExtractStatus(context.Context, string) (*domain.ExtractionJob, error) {
	f.calls++
	return f.ext, f.err
}
