package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/classify"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/firecrawl"
)

type fakeSearcher struct {
	calls   []firecrawl.SearchRequest
	results [][]firecrawl.SearchResult
	errs    []error
}

func (f *fakeSearcher) Search(_ context.Context, req firecrawl.SearchRequest) ([]firecrawl.SearchResult, error) {
	i := len(f.calls)
	f.calls = append(f.calls, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

type fakeRenderer struct {
	html  string
	calls int
}

func (r *fakeRenderer) Render(context.Context, string) (string, error) {
	r.calls++
	return r.html, nil
}

func TestBuildSearchQuery(t *testing.T) {
	q := BuildSearchQuery("backend engineer", "Berlin", []string{"indeed.com", "remotive.com"})

	assert.True(t, strings.HasPrefix(q, `backend engineer "Berlin" (site:indeed.com OR site:remotive.com)`))
	assert.Contains(t, q, "(inurl:job OR inurl:jobs OR inurl:careers OR inurl:viewjob OR inurl:posting)")
	assert.Contains(t, q, "-inurl:search")
	assert.Contains(t, q, `-"how much"`)
	assert.True(t, strings.HasSuffix(q, "(intitle:hiring OR intitle:job OR intitle:career)"))
}

func TestBuildSearchQuery_NoLocationNoDomains(t *testing.T) {
	q := BuildSearchQuery("go developer", "", nil)

	assert.True(t, strings.HasPrefix(q, "go developer (inurl:job"))
	assert.NotContains(t, q, "site:")
}

func TestSearchFetcher_MapsHitsAndClassifies(t *testing.T) {
	s := &fakeSearcher{results: [][]firecrawl.SearchResult{{
		{
			URL:      "https://www.indeed.com/viewjob?jk=1/",
			Title:    "Backend Engineer - Acme",
			Markdown: "# Backend Engineer\nA long markdown description of the role.",
			JSON:     []byte(`{"title":"Backend Engineer","company":"Acme","location":"Berlin","salary":"€60k-80k"}`),
			Raw:      []byte(`{"url":"https://www.indeed.com/viewjob?jk=1/"}`),
		},
		{URL: "https://www.indeed.com/q-backend-jobs.html", Title: "Backend jobs", Description: "list"},
		{URL: ""},
	}}}
	f := NewSearchFetcher(s, classify.NewInteractive(), zap.NewNop())

	res, err := f.Fetch(context.Background(), Query{Text: "backend engineer", Location: "Berlin", Limit: 10, TBS: "qdr:w"})

	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, 3, res.Total)

	req := s.calls[0]
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, "qdr:w", req.TBS)
	assert.Equal(t, SearchFormats, req.ScrapeOptions.Formats)

	j := res.Jobs[0]
	assert.Equal(t, domain.JobSourceFirecrawlSearch, j.Source)
	assert.Equal(t, "https://www.indeed.com/viewjob?jk=1", j.URL)
	assert.Equal(t, j.URL, j.SourceID)
	assert.Equal(t, "Acme", j.Company)
	assert.Equal(t, "Berlin", j.Location)
	assert.True(t, j.IsJobPosting)
	assert.Contains(t, j.Description, "long markdown description")
	require.NotNil(t, j.SalaryMin)
	assert.Equal(t, 60000, *j.SalaryMin)
	assert.Equal(t, domain.CurrencyEUR, j.SalaryCurrency)
	assert.JSONEq(t, `{"url":"https://www.indeed.com/viewjob?jk=1/"}`, string(j.RawPayload))

	assert.False(t, res.Jobs[1].IsJobPosting)
}

func TestSearchFetcher_PropagatesRateLimit(t *testing.T) {
	s := &fakeSearcher{errs: []error{domain.RateLimited(firecrawl.Provider, 30)}}
	f := NewSearchFetcher(s, classify.NewInteractive(), zap.NewNop())

	_, err := f.Fetch(context.Background(), Query{Text: "go"})

	assert.True(t, domain.IsRateLimited(err))
}

func TestJobFromExtracted(t *testing.T) {
	j := JobFromExtracted(domain.ExtractedJob{
		Title:    " Platform Engineer ",
		Company:  "Acme",
		Location: "Remote",
		ApplyURL: "https://acme.com/apply/42/",
		Salary:   "$120k - $140k a year",
		Deadline: "not sure",
		PostedAt: "2025-02-01",
		Tags:     []string{"go", "go", "k8s"},
	}, domain.JobSourceFirecrawlExtract)

	assert.Equal(t, "Platform Engineer", j.Title)
	assert.Equal(t, "https://acme.com/apply/42", j.URL)
	assert.Equal(t, j.URL, j.SourceID)
	assert.Nil(t, j.ExpiresAt)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), j.PostedAt)
	assert.Equal(t, []string{"go", "k8s"}, j.Tags)
	require.NotNil(t, j.SalaryMax)
	assert.Equal(t, 140000, *j.SalaryMax)
	assert.Equal(t, domain.SalaryPeriodYear, j.SalaryPeriod)
}

func TestJobFromExtracted_SyntheticID(t *testing.T) {
	a := JobFromExtracted(domain.ExtractedJob{Title: "SRE", Company: "Acme", Location: "Berlin"}, domain.JobSourceFirecrawlExtract)
	b := JobFromExtracted(domain.ExtractedJob{Title: "SRE", Company: "Acme", Location: "Berlin"}, domain.JobSourceFirecrawlExtract)

	assert.Empty(t, a.URL)
	assert.NotEmpty(t, a.SourceID)
	assert.Equal(t, a.SourceID, b.SourceID)
}

func TestRemotiveFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("search"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"jobs":[{"id":101,"url":"https://remotive.com/remote-jobs/software-dev/go-dev-101",
			"title":"Go Developer","company_name":"Acme","category":"Software Development","tags":["go"],
			"job_type":"full_time","publication_date":"2025-03-01T10:00:00","candidate_required_location":"Europe",
			"salary":"€50k - €70k","description":"<p>Go</p>"}]}`))
	}))
	defer srv.Close()

	f := NewRemotiveFetcher(zap.NewNop())
	f.BaseURL = srv.URL

	res, err := f.Fetch(context.Background(), Query{Text: "golang", Limit: 5})

	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	j := res.Jobs[0]
	assert.Equal(t, "101", j.SourceID)
	assert.Equal(t, domain.JobSourceRemotive, j.Source)
	assert.Equal(t, []string{"Software Development", "go"}, j.Tags)
	assert.Equal(t, domain.CurrencyEUR, j.SalaryCurrency)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), j.PostedAt)
}

func TestRemoteOKFetcher_SkipsLegalAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"legal":"API terms"},
			{"id":"1","epoch":1735689600,"company":"Acme","position":"Senior Go Engineer","tags":["golang"],"url":"https://remoteok.com/remote-jobs/1","salary_min":100000,"salary_max":150000},
			{"id":"2","company":"Other","position":"Designer","tags":["figma"],"url":"https://remoteok.com/remote-jobs/2"}
		]`))
	}))
	defer srv.Close()

	f := NewRemoteOKFetcher(zap.NewNop())
	f.BaseURL = srv.URL

	res, err := f.Fetch(context.Background(), Query{Text: "go engineer"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Jobs, 1)
	j := res.Jobs[0]
	assert.Equal(t, "1", j.SourceID)
	assert.Equal(t, 100000, *j.SalaryMin)
	assert.Equal(t, 150000, *j.SalaryMax)
	assert.Equal(t, domain.CurrencyUSD, j.SalaryCurrency)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), j.PostedAt)
}

func TestArbeitnowFetcher_LocationAndPaging(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`{"data":[
				{"slug":"go-berlin","company_name":"Acme","title":"Go Engineer","location":"Berlin","url":"https://www.arbeitnow.com/jobs/go-berlin","created_at":1735689600,"job_types":["full time"]},
				{"slug":"go-munich","company_name":"Beta","title":"Go Engineer","location":"Munich","url":"https://www.arbeitnow.com/jobs/go-munich"},
				{"slug":"go-remote","company_name":"Gamma","title":"Go Engineer","location":"Hamburg","remote":true,"url":"https://www.arbeitnow.com/jobs/go-remote"}
			],"links":{"next":"?page=2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[],"links":{"next":""}}`))
	}))
	defer srv.Close()

	f := NewArbeitnowFetcher(zap.NewNop())
	f.BaseURL = srv.URL

	res, err := f.Fetch(context.Background(), Query{Text: "go", Location: "berlin"})

	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, "go-berlin", res.Jobs[0].SourceID)
	assert.Equal(t, "full time", res.Jobs[0].EmploymentType)
	assert.Equal(t, "go-remote", res.Jobs[1].SourceID)
	assert.Contains(t, res.Jobs[1].Tags, "remote")
	assert.Equal(t, 2, pages)
}

func TestBoardFetcher_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewRemotiveFetcher(zap.NewNop())
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), Query{})

	ue, ok := domain.AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
	assert.Equal(t, "remotive", ue.Provider)
}

func TestAdzunaFetcher_SkipsWithoutCredentials(t *testing.T) {
	f := NewAdzunaFetcher("", "", "gb", zap.NewNop())

	res, err := f.Fetch(context.Background(), Query{Text: "go"})

	require.NoError(t, err)
	assert.Empty(t, res.Jobs)
}

func TestAdzunaFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/de/search/1", r.URL.Path)
		assert.Equal(t, "id", r.URL.Query().Get("app_id"))
		_, _ = w.Write([]byte(`{"count":1,"results":[{"id":"555","title":"Go Dev","company":{"display_name":"Acme"},
			"location":{"display_name":"Berlin"},"salary_min":60000.4,"salary_max":75000,"redirect_url":"https://adzuna.de/land/ad/555",
			"created":"2025-03-01T00:00:00Z","contract_time":"full_time","category":{"label":"IT Jobs"}}]}`))
	}))
	defer srv.Close()

	f := NewAdzunaFetcher("id", "key", "gb", zap.NewNop())
	f.BaseURL = srv.URL

	res, err := f.Fetch(context.Background(), Query{Text: "go", Params: map[string]string{"country": "DE"}})

	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	j := res.Jobs[0]
	assert.Equal(t, "555", j.SourceID)
	assert.Equal(t, 60000, *j.SalaryMin)
	assert.Equal(t, domain.CurrencyEUR, j.SalaryCurrency)
	assert.Equal(t, "full-time", j.EmploymentType)
	assert.Equal(t, []string{"IT Jobs"}, j.Tags)
}

func TestDeepResearch_StrictClassificationAndHeuristics(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := &fakeSearcher{
		results: [][]firecrawl.SearchResult{
			{
				{URL: "https://www.linkedin.com/jobs/view/12345", Title: "Go Engineer at Acme"},
				{URL: "https://www.glassdoor.com/Salaries/go-engineer-salary-SRCH_KO0,11.htm", Title: "Go Engineer Salaries"},
				{
					URL:         "https://boards.greenhouse.io/acme/jobs/4567890",
					Title:       "Senior Go Engineer at Acme GmbH - Greenhouse",
					Description: "Location: Berlin, Germany. Salary €70,000 - €90,000 per year.",
				},
				{
					URL:   "https://acme.com/careers/old-role",
					Title: "Old role",
					JSON:  []byte(`{"posted_at":"2024-01-01"}`),
				},
			},
		},
		errs: []error{nil, errors.New("hop down")},
	}
	r := &fakeRenderer{html: "<p>Rendered description</p>"}
	f := NewDeepResearchFetcher(s, classify.NewBulk(), r, 2, zap.NewNop())
	f.now = func() time.Time { return now }

	res, err := f.Fetch(context.Background(), Query{Text: "go engineer", Location: "Berlin"})

	require.NoError(t, err)
	require.Len(t, s.calls, 2)
	assert.Equal(t, "cdr:1,cd_min:3/3/2025,cd_max:6/1/2025", s.calls[0].TBS)
	assert.Contains(t, s.calls[0].Query, "-site:linkedin.com")
	assert.Len(t, res.Errors, 1)

	require.Len(t, res.Jobs, 1)
	j := res.Jobs[0]
	assert.Equal(t, domain.JobSourceDeepResearch, j.Source)
	assert.Equal(t, "Acme GmbH", j.Company)
	assert.Equal(t, "Berlin, Germany", j.Location)
	require.NotNil(t, j.SalaryMin)
	assert.Equal(t, 70000, *j.SalaryMin)
	assert.Equal(t, 90000, *j.SalaryMax)
	assert.Equal(t, domain.SalaryPeriodYear, j.SalaryPeriod)
	assert.True(t, j.IsJobPosting)
	assert.Contains(t, j.Description, "Location: Berlin")
	assert.Equal(t, 0, r.calls)
}

func TestDeepResearch_RendersEmptyDescription(t *testing.T) {
	s := &fakeSearcher{results: [][]firecrawl.SearchResult{{
		{URL: "https://jobs.lever.co/acme/0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0", Title: "SRE - Acme"},
	}}}
	r := &fakeRenderer{html: "<html><body><p>Rendered description</p></body></html>"}
	f := NewDeepResearchFetcher(s, classify.NewBulk(), r, 1, zap.NewNop())

	res, err := f.Fetch(context.Background(), Query{Text: "sre"})

	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "Rendered description", res.Jobs[0].Description)
	assert.Equal(t, "Acme", res.Jobs[0].Company)
	assert.Equal(t, 1, r.calls)
}

func TestDeepResearch_AllHopsFail(t *testing.T) {
	s := &fakeSearcher{errs: []error{errors.New("a"), errors.New("b")}}
	f := NewDeepResearchFetcher(s, classify.NewBulk(), nil, 2, zap.NewNop())

	_, err := f.Fetch(context.Background(), Query{Text: "go"})

	assert.ErrorContains(t, err, "all 2 hops failed")
}

func TestCompanyFromText(t *testing.T) {
	assert.Equal(t, "Acme", CompanyFromText("Backend Engineer at Acme", ""))
	assert.Equal(t, "Acme", CompanyFromText("Backend Engineer - Acme | Indeed", ""))
	assert.Equal(t, "Globex", CompanyFromText("Backend Engineer", "Globex is hiring a backend engineer"))
	assert.Equal(t, "", CompanyFromText("Backend Engineer", "great role"))
}

func TestLocationAndSalaryFromText(t *testing.T) {
	assert.Equal(t, "Remote", LocationFromText("This is a fully remote role"))
	assert.Equal(t, "London", LocationFromText("Based in London; hybrid"))
	assert.Equal(t, "£45k - £55k", SalaryFromText("Pay: £45k - £55k plus bonus"))
	assert.Equal(t, "", SalaryFromText("competitive pay"))
}

func TestRegistry_KeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(NewRemoteOKFetcher(zap.NewNop()))
	r.Register(NewRemotiveFetcher(zap.NewNop()))
	r.Register(NewRemoteOKFetcher(zap.NewNop()))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, domain.JobSourceRemoteOK, all[0].Source())
	assert.Equal(t, domain.JobSourceRemotive, all[1].Source())

	_, ok := r.Get(domain.JobSourceAdzuna)
	assert.False(t, ok)
}

type fakeExtractor struct {
	req firecrawl.ExtractRequest
	id  string
	err error
}

func (f *fakeExtractor) SubmitExtract(_ context.Context, req firecrawl.ExtractRequest) (string, error) {
	f.req = req
	return f.id, f.err
}

func (f *fakeExtractor) ExtractStatus(context.Context, string) (*domain.ExtractionJob, error) {
	return nil, errors.New("not used")
}

func TestExtractSubmitter_CleansURLs(t *testing.T) {
	fx := &fakeExtractor{id: "ext-9"}
	s := NewExtractSubmitter(fx, zap.NewNop())

	id, err := s.Submit(context.Background(), []string{
		"https://boards.greenhouse.io/acme/jobs/1/",
		"https://boards.greenhouse.io/acme/jobs/1",
		"ftp://example.com/file",
		"  ",
		"https://jobs.lever.co/acme/abc",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "ext-9", id)
	assert.Equal(t, []string{"https://boards.greenhouse.io/acme/jobs/1", "https://jobs.lever.co/acme/abc"}, fx.req.URLs)
	assert.Equal(t, DefaultExtractPrompt, fx.req.Prompt)
	assert.NotEmpty(t, fx.req.Schema)
}

func TestExtractSubmitter_Rejects(t *testing.T) {
	fx := &fakeExtractor{}
	s := NewExtractSubmitter(fx, zap.NewNop())

	_, err := s.Submit(context.Background(), []string{"not a url"}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	fx.err = domain.RateLimited(firecrawl.Provider, 7)
	_, err = s.Submit(context.Background(), []string{"https://acme.io/jobs/1"}, "custom prompt")
	assert.True(t, domain.IsRateLimited(err))
	assert.Equal(t, "custom prompt", fx.req.Prompt)
}
