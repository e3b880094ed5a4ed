package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

type fakeCompleter struct {
	answer string
	err    error
	// failOn makes prompts containing this substring fail
	failOn string

	mu       sync.Mutex
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	f.mu.Lock()
	if n > f.maxSeen {
		f.maxSeen = n
	}
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return "", errors.New("model unavailable")
	}
	return f.answer, f.err
}

func TestEnrich_AppliesModelAnswer(t *testing.T) {
	c := &fakeCompleter{answer: "```json\n" + `{"title":"Senior Backend Engineer","company":"Acme","location":"Berlin",
		"description":"Build APIs.","employmentType":"full-time","salary":"€70k-90k","deadline":"2025-09-30","tags":["Go","Postgres"]}` + "\n```"}
	e := NewEnricher(c, zap.NewNop())
	job := &domain.Job{URL: "https://acme.com/jobs/1", Title: "Backend", Description: "<div>raw</div>"}

	ok := e.Enrich(context.Background(), job)

	require.True(t, ok)
	assert.Equal(t, "Senior Backend Engineer", job.Title)
	assert.Equal(t, "Acme", job.Company)
	assert.Equal(t, "Build APIs.", job.Description)
	assert.Equal(t, "full-time", job.EmploymentType)
	assert.Equal(t, []string{"go", "postgres"}, job.Tags)
	require.NotNil(t, job.SalaryMin)
	assert.Equal(t, 70000, *job.SalaryMin)
	require.NotNil(t, job.ExpiresAt)
	assert.Equal(t, 2025, job.ExpiresAt.Year())
}

func TestEnrich_KeepsExistingSalary(t *testing.T) {
	raw := "$100k"
	c := &fakeCompleter{answer: `{"salary":"$1"}`}
	job := &domain.Job{SalaryRaw: &raw, Description: "text"}

	NewEnricher(c, zap.NewNop()).Enrich(context.Background(), job)

	assert.Equal(t, "$100k", *job.SalaryRaw)
}

func TestEnrich_FallbackOnModelError(t *testing.T) {
	c := &fakeCompleter{err: errors.New("timeout")}
	e := NewEnricher(c, zap.NewNop())
	job := &domain.Job{Description: "<html><body><h1>Go Engineer</h1><p>Join us.</p></body></html>"}

	ok := e.Enrich(context.Background(), job)

	assert.False(t, ok)
	assert.Equal(t, "Go Engineer\nJoin us.", job.Description)
	assert.Equal(t, "Go Engineer", job.Title)
}

func TestEnrich_FallbackOnBadJSON(t *testing.T) {
	c := &fakeCompleter{answer: "Sorry, I cannot help with that."}
	job := &domain.Job{Title: "SRE", Description: "# SRE\n\n**On-call** rotation"}

	ok := NewEnricher(c, zap.NewNop()).Enrich(context.Background(), job)

	assert.False(t, ok)
	assert.Equal(t, "SRE", job.Title)
	assert.Equal(t, "SRE\n\nOn-call rotation", job.Description)
}

func TestEnrich_NilCompleterUsesFallback(t *testing.T) {
	job := &domain.Job{Description: strings.Repeat("a", 5000)}

	ok := NewEnricher(nil, zap.NewNop()).Enrich(context.Background(), job)

	assert.False(t, ok)
	assert.Equal(t, fallbackDescriptionLn+len("…"), len(job.Description))
}

func TestParseAnswer(t *testing.T) {
	f, err := ParseAnswer("Here you go: {\"title\":\"Dev\"} thanks")
	require.NoError(t, err)
	assert.Equal(t, "Dev", f.Title)

	_, err = ParseAnswer("no json")
	assert.ErrorIs(t, err, errEmptyAnswer)

	_, err = ParseAnswer("{not json}")
	assert.Error(t, err)
}

func TestPool_PartialFailureKeepsOrderAndBounds(t *testing.T) {
	c := &fakeCompleter{
		answer: `{"company":"Acme"}`,
		failOn: "https://acme.com/jobs/2",
		delay:  10 * time.Millisecond,
	}
	p := NewPool(NewEnricher(c, zap.NewNop()), 2, zap.NewNop())

	jobs := make([]*domain.Job, 6)
	for i := range jobs {
		jobs[i] = &domain.Job{URL: fmt.Sprintf("https://acme.com/jobs/%d", i), Title: fmt.Sprintf("t%d", i), Description: "desc"}
	}

	got := p.Run(context.Background(), jobs)

	assert.Equal(t, []bool{true, true, false, true, true, true}, got)
	for i, j := range jobs {
		assert.Equal(t, fmt.Sprintf("https://acme.com/jobs/%d", i), j.URL)
	}
	assert.Equal(t, "Acme", jobs[0].Company)
	assert.Empty(t, jobs[2].Company)
	assert.LessOrEqual(t, c.maxSeen, int32(2))
}

type promptRecorder struct {
	prompt string
}

func (p *promptRecorder) Complete(_ context.Context, prompt string) (string, error) {
	p.prompt = prompt
	return "", errors.New("not answering")
}

func TestEnrich_InputCutKeepsRunes(t *testing.T) {
	rec := &promptRecorder{}
	e := NewEnricher(rec, zap.NewNop())
	e.maxInput = 5

	e.Enrich(context.Background(), &domain.Job{URL: "https://acme.io/jobs/1", Description: "Zürich ünd Genf"})

	require.NotEmpty(t, rec.prompt)
	assert.True(t, utf8.ValidString(rec.prompt))
	assert.NotContains(t, rec.prompt, "Genf")
}

func TestCutBytes(t *testing.T) {
	assert.Equal(t, "Z", cutBytes("Zürich", 2))
	assert.Equal(t, "Zü", cutBytes("Zürich", 3))
	assert.Equal(t, "short", cutBytes("short", 10))
	assert.Equal(t, "", cutBytes("ü", 1))
}
