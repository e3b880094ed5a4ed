// Package classify decides whether a URL points at an individual job posting.
//
// Two policies live here and are kept apart on purpose. Interactive only
// affects result ordering; Bulk gates what the scheduled pipeline ingests.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

// Classifier reports whether a URL is an individual job posting
type Classifier interface {
	IsJobPosting(rawURL string) bool
}

// rule is a per-domain positive check: the host must match one of hosts and
// the path+query must match one of patterns.
type rule struct {
	name     string
	hosts    []string
	patterns []*regexp.Regexp
}

func (r rule) match(u parsedURL) bool {
	hostOK := false
	for _, h := range r.hosts {
		if domain.HostMatches(u.host, h) {
			hostOK = true
			break
		}
	}
	if !hostOK {
		return false
	}
	for _, p := range r.patterns {
		if p.MatchString(u.rest) {
			return true
		}
	}
	return false
}

func re(s string) *regexp.Regexp { return regexp.MustCompile(`(?i)` + s) }

var (
	indeedRule = rule{"indeed", []string{"indeed.com", "indeed.co.uk", "indeed.de", "indeed.ca"},
		[]*regexp.Regexp{re(`/viewjob`), re(`/rc/clk`)}}
	linkedinRule = rule{"linkedin", []string{"linkedin.com"},
		[]*regexp.Regexp{re(`/jobs/view/`)}}
	weWorkRemotelyRule = rule{"weworkremotely", []string{"weworkremotely.com"},
		[]*regexp.Regexp{re(`/remote-jobs/[^/?#]+`), re(`/listings/[^/?#]+`)}}
	remoteCoRule = rule{"remote.co", []string{"remote.co"},
		[]*regexp.Regexp{re(`/job/[^/?#]+`)}}
	remotiveRule = rule{"remotive", []string{"remotive.com", "remotive.io"},
		[]*regexp.Regexp{re(`/remote-jobs/[^/?#]+/[^/?#]+`), re(`/remote/jobs/[^/?#]+/[^/?#]+`)}}
	remoteOKRule = rule{"remoteok", []string{"remoteok.com", "remoteok.io"},
		[]*regexp.Regexp{re(`/remote-jobs/[^/?#]*\d+`), re(`/l/\d+`)}}
	jobicyRule = rule{"jobicy", []string{"jobicy.com"},
		[]*regexp.Regexp{re(`/jobs/\d+`), re(`/jobs/[^/?#]+-[^/?#]+`)}}
	levelsRule = rule{"levels.fyi", []string{"levels.fyi"},
		[]*regexp.Regexp{re(`/jobs[/?].*jobid=\d+`), re(`/job/[^/?#]+`)}}
	glassdoorRule = rule{"glassdoor", []string{"glassdoor.com", "glassdoor.co.uk", "glassdoor.ca"},
		[]*regexp.Regexp{re(`/job-listing/`), re(`/partner/joblisting\.htm`), re(`jobListingId=\d+`)}}
	wellfoundRule = rule{"wellfound", []string{"wellfound.com", "angel.co"},
		[]*regexp.Regexp{re(`/jobs/\d+`), re(`/company/[^/?#]+/jobs/[^/?#]+`), re(`/l/[^/?#]+`)}}
	flexJobsRule = rule{"flexjobs", []string{"flexjobs.com"},
		[]*regexp.Regexp{re(`/publicjobs/`), re(`/hostedjob`), re(`/remote-jobs/[^/?#]+-\d+`)}}
	upworkRule = rule{"upwork", []string{"upwork.com"},
		[]*regexp.Regexp{re(`/jobs/~`), re(`/freelance-jobs/apply/`)}}
	freelancerRule = rule{"freelancer", []string{"freelancer.com"},
		[]*regexp.Regexp{re(`/projects/[^/?#]+/[^/?#]+`)}}
	diceRule = rule{"dice", []string{"dice.com"},
		[]*regexp.Regexp{re(`/job-detail/`), re(`/jobs/detail/`)}}
	jobbermanRule = rule{"jobberman", []string{"jobberman.com", "jobberman.com.gh"},
		[]*regexp.Regexp{re(`/listings/[^/?#]+`)}}

	// applicant tracking systems only host individual postings
	atsRule = rule{"ats", []string{"greenhouse.io", "lever.co", "ashbyhq.com", "workable.com", "smartrecruiters.com", "recruitee.com", "bamboohr.com"},
		[]*regexp.Regexp{re(`/jobs/\d+`), re(`/[^/?#]+/[0-9a-f]{8}-[0-9a-f-]{27}`), re(`/j/[0-9a-z]+`), re(`/o/[^/?#]+`), re(`/careers/\d+`)}}

	genericJobPathRe = re(`/(job|posting|opening|career|apply|position)s?/[^/?#]+/?$`)
	listingPathRe    = re(`/(search|browse|all)/?$`)
)

// genericMatch is the fallback for hosts without a domain rule.
func genericMatch(path string) bool {
	return genericJobPathRe.MatchString(path) && !listingPathRe.MatchString(path)
}

var sharedRules = []rule{
	indeedRule,
	weWorkRemotelyRule,
	remoteCoRule,
	remotiveRule,
	remoteOKRule,
	jobicyRule,
	levelsRule,
	glassdoorRule,
	wellfoundRule,
	flexJobsRule,
	upworkRule,
	freelancerRule,
	diceRule,
	jobbermanRule,
}

// Interactive is the loose policy used by interactive search. A negative
// answer only moves a result down the list.
type Interactive struct {
	rules []rule
}

// NewInteractive builds the interactive policy.
func NewInteractive() *Interactive {
	rules := make([]rule, 0, len(sharedRules)+1)
	rules = append(rules, indeedRule, linkedinRule)
	rules = append(rules, sharedRules[1:]...)
	return &Interactive{rules: rules}
}

// IsJobPosting applies the domain rules in order, then the generic path check.
func (c *Interactive) IsJobPosting(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok {
		return false
	}
	for _, r := range c.rules {
		if r.match(u) {
			return true
		}
	}
	return genericMatch(u.path)
}

// Bulk is the strict policy used by the scheduled and deep-research paths.
// A negative answer drops the URL from ingestion.
type Bulk struct {
	rules      []rule
	exclusions []*regexp.Regexp
	excluded   []string
}

// NewBulk builds the bulk policy.
func NewBulk() *Bulk {
	rules := append([]rule(nil), sharedRules...)
	rules = append(rules, atsRule)
	return &Bulk{
		rules: rules,
		exclusions: []*regexp.Regexp{
			// salary aggregators and advice pages
			re(`/salar(y|ies)([/?#_-]|$)`),
			re(`/career/[^/?#]+/salaries`),
			re(`/comp(ensation)?/`),
			re(`how-much-does`),
			re(`salary-guide`),
			// generic search and listing pages
			re(`/search([/?#]|$)`),
			re(`/q-[^/?#]+`),
			re(`jobs\.html$`),
			re(`[?&](q|query|keywords|search_term)=`),
			re(`/browse([/?#]|$)`),
			re(`/jobs/?$`),
			re(`/remote-jobs/?$`),
		},
		excluded: []string{
			"linkedin.com",
			"salary.com",
			"payscale.com",
			"comparably.com",
			"salaryexpert.com",
			"talent.com",
		},
	}
}

// IsJobPosting returns false for anything on the exclusion list, then
// applies the same style of positive checks as Interactive.
func (c *Bulk) IsJobPosting(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok {
		return false
	}
	if c.Excluded(rawURL) {
		return false
	}
	for _, r := range c.rules {
		if r.match(u) {
			return true
		}
	}
	return genericMatch(u.path)
}

// Excluded reports whether the URL is on the exclusion list.
func (c *Bulk) Excluded(rawURL string) bool {
	u, ok := parse(rawURL)
	if !ok {
		return true
	}
	for _, h := range c.excluded {
		if domain.HostMatches(u.host, h) {
			return true
		}
	}
	for _, p := range c.exclusions {
		if p.MatchString(u.rest) {
			return true
		}
	}
	return false
}

type parsedURL struct {
	host string
	path string
	rest string // path plus "?" query
}

func parse(rawURL string) (parsedURL, bool) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return parsedURL{}, false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return parsedURL{}, false
	}
	p := parsedURL{
		host: domain.NormalizeHost(u.Hostname()),
		path: strings.ToLower(u.EscapedPath()),
	}
	p.rest = p.path
	if u.RawQuery != "" {
		p.rest += "?" + strings.ToLower(u.RawQuery)
	}
	return p, true
}
