package domain

import "strings"

// DomainPolicy is the immutable default allow-list and blocklist, built once
// from configuration and handed to each orchestrator.
type DomainPolicy struct {
	defaults  []string
	blocklist []string
}

// NewDomainPolicy normalizes and copies the given host lists.
func NewDomainPolicy(defaults, blocklist []string) DomainPolicy {
	return DomainPolicy{
		defaults:  normalizeHosts(defaults),
		blocklist: normalizeHosts(blocklist),
	}
}

// Defaults returns a copy of the default allow-list.
func (p DomainPolicy) Defaults() []string {
	return append([]string(nil), p.defaults...)
}

// Blocklist returns a copy of the blocklist.
func (p DomainPolicy) Blocklist() []string {
	return append([]string(nil), p.blocklist...)
}

// Effective computes the allow-list for one user. Enabled default sources
// replace the defaults when set; allowed domains are always added on top.
func (p DomainPolicy) Effective(settings *SourceSettings) []string {
	if settings == nil {
		return p.Defaults()
	}

	base := p.defaults
	if enabled := normalizeHosts(settings.EnabledDefaultSources); len(enabled) > 0 {
		base = enabled
	}

	out := make([]string, 0, len(base)+len(settings.AllowedDomains))
	seen := make(map[string]bool)
	for _, h := range append(append([]string(nil), base...), normalizeHosts(settings.AllowedDomains)...) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

// NormalizeHost lower-cases a host and strips a leading "www.".
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host, domain = NormalizeHost(host), NormalizeHost(domain)
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = NormalizeHost(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
