package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/option"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

type commitRecorder struct {
	mu      sync.Mutex
	commits []map[string]any
	failOn  int
}

func (c *commitRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.HasSuffix(r.URL.Path, "/documents:commit") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	c.commits = append(c.commits, body)

	w.Header().Set("Content-Type", "application/json")
	if len(c.commits) == c.failOn {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"unavailable"}}`))
		return
	}
	_, _ = w.Write([]byte(`{"commitTime":"2025-05-01T12:00:00Z"}`))
}

func newTestMirror(t *testing.T, rec *commitRecorder, batch int) *FirestoreMirror {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	svc, err := firestore.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	m := newFirestore(svc, Config{ProjectID: "demo", BatchSize: batch}, zap.NewNop())
	m.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func testJobs(n int) []*domain.Job {
	jobs := make([]*domain.Job, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, &domain.Job{
			Source:   domain.JobSourceRemotive,
			SourceID: string(rune('a' + i)),
			URL:      "https://remotive.com/remote-jobs/dev/job-" + string(rune('a'+i)),
			Title:    "Engineer",
		})
	}
	return jobs
}

func TestPush_BatchesWrites(t *testing.T) {
	rec := &commitRecorder{}
	m := newTestMirror(t, rec, 2)

	n, err := m.Push(context.Background(), testJobs(5))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, rec.commits, 3)
	assert.Len(t, rec.commits[0]["writes"], 2)
	assert.Len(t, rec.commits[2]["writes"], 1)

	write := rec.commits[0]["writes"].([]any)[0].(map[string]any)
	doc := write["update"].(map[string]any)
	assert.True(t, strings.HasPrefix(doc["name"].(string), "projects/demo/databases/(default)/documents/job_listings/"))
}

func TestPush_FailedBatchIsCountedNotFatal(t *testing.T) {
	rec := &commitRecorder{failOn: 1}
	m := newTestMirror(t, rec, 2)

	n, err := m.Push(context.Background(), testJobs(3))

	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, rec.commits, 2)
}

func TestPush_Empty(t *testing.T) {
	rec := &commitRecorder{}
	m := newTestMirror(t, rec, 10)

	n, err := m.Push(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.commits)
}

func TestDocumentID_StableAcrossTrailingSlash(t *testing.T) {
	a := &domain.Job{URL: "https://acme.com/jobs/1"}
	b := &domain.Job{URL: "https://acme.com/jobs/1/"}

	assert.Equal(t, DocumentID(a), DocumentID(b))
	assert.NotContains(t, DocumentID(a), "/")
}

func TestFields(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	zero := 0
	high := 90000
	exp := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	f := Fields(&domain.Job{
		Source:         domain.JobSourceAdzuna,
		SourceID:       "42",
		Title:          "Go Developer",
		SalaryMin:      &zero,
		SalaryMax:      &high,
		SalaryCurrency: domain.CurrencyGBP,
		Tags:           []string{"go", "remote"},
		ExpiresAt:      &exp,
	}, now)

	assert.Equal(t, "adzuna:42", f["source_url"].StringValue)
	assert.Contains(t, f["source_url"].ForceSendFields, "StringValue")
	assert.Equal(t, int64(0), f["salary_min"].IntegerValue)
	assert.Contains(t, f["salary_min"].ForceSendFields, "IntegerValue")
	assert.Equal(t, int64(90000), f["salary_max"].IntegerValue)
	assert.Equal(t, "NULL_VALUE", f["employment_type"].NullValue)
	assert.Equal(t, "NULL_VALUE", f["salary_period"].NullValue)
	assert.Equal(t, "2025-05-01T12:00:00Z", f["posted_at"].TimestampValue)
	assert.Equal(t, "2025-06-30T00:00:00Z", f["expires_at"].TimestampValue)
	require.NotNil(t, f["tags"].ArrayValue)
	assert.Len(t, f["tags"].ArrayValue.Values, 2)
}
