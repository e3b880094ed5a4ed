// Package filter applies the per-request domain policy to fetched jobs and
// removes duplicates, within a batch and across sources.
package filter

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/normalize"
)

// non-posting URL shapes, matched against the lower-cased URL
var listingShapeRe = regexp.MustCompile(`/search|/q-|jobs\.html$`)

// Reason says why Apply dropped a job
type Reason string

const (
	ReasonBadURL    Reason = "bad_url"
	ReasonBlocked   Reason = "blocked"
	ReasonNotListed Reason = "not_allowed"
	ReasonListing   Reason = "listing_page"
	ReasonDuplicate Reason = "duplicate"
	ReasonLimit     Reason = "limit"
)

// Options controls Apply. A nil Allow means no allow-list restriction; an
// empty non-nil Allow rejects everything.
type Options struct {
	Allow []string
	Block []string
	// Limit caps the number of accepted jobs. Zero means no cap.
	Limit int
	// Seen holds URL keys already accepted by an earlier batch.
	Seen map[string]struct{}
}

// Result is the outcome of Apply
type Result struct {
	Jobs    []*domain.Job
	Dropped map[Reason]int
}

// Apply runs, in order: blocklist, allow-list, listing-page shapes, same-batch
// duplicates and the limit. Input order is preserved and the first
// occurrence of a URL wins.
func Apply(jobs []*domain.Job, opts Options) Result {
	res := Result{Dropped: make(map[Reason]int)}

	seen := make(map[string]struct{}, len(jobs)+len(opts.Seen))
	for k := range opts.Seen {
		seen[k] = struct{}{}
	}

	for i, job := range jobs {
		if opts.Limit > 0 && len(res.Jobs) >= opts.Limit {
			res.Dropped[ReasonLimit] += len(jobs) - i
			break
		}

		key := normalize.URLKey(job.URL)
		host, ok := hostOf(key)
		if !ok {
			res.Dropped[ReasonBadURL]++
			continue
		}
		if matchesAny(host, opts.Block) {
			res.Dropped[ReasonBlocked]++
			continue
		}
		if opts.Allow != nil && !matchesAny(host, opts.Allow) {
			res.Dropped[ReasonNotListed]++
			continue
		}
		if listingShapeRe.MatchString(key) {
			res.Dropped[ReasonListing]++
			continue
		}
		if _, dup := seen[key]; dup {
			res.Dropped[ReasonDuplicate]++
			continue
		}

		seen[key] = struct{}{}
		res.Jobs = append(res.Jobs, job)
	}
	return res
}

// Merge folds several source batches into one list keyed by
// (source, externalId). The first position of a key is kept and a later
// duplicate replaces its value. It returns the merged jobs and the number of
// jobs fetched before merging.
func Merge(batches ...[]*domain.Job) ([]*domain.Job, int) {
	fetched := 0
	index := make(map[string]int)
	var out []*domain.Job

	for _, batch := range batches {
		fetched += len(batch)
		for _, job := range batch {
			if job == nil {
				continue
			}
			key := job.MergeKey()
			if i, ok := index[key]; ok {
				out[i] = job
				continue
			}
			index[key] = len(out)
			out = append(out, job)
		}
	}
	return out, fetched
}

func hostOf(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return domain.NormalizeHost(u.Hostname()), true
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if domain.HostMatches(host, d) {
			return true
		}
	}
	return false
}
