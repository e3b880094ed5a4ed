// Package normalize holds the small field-level clean-ups shared by every
// fetcher: URL canonicalization, description selection, deadline parsing and
// markup stripping.
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

var (
	spaceRe       = regexp.MustCompile(`[ \t]+`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdHeadingRe   = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	mdEmphasisRe  = regexp.MustCompile(`(\*\*|__|\*|_|~~|` + "`" + `)`)
	mdListRe      = regexp.MustCompile(`(?m)^[ \t]*([-*+]|\d+\.)[ \t]+`)
	mdRuleRe      = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	ordinalSufRe  = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)\b`)
	idNamespace   = uuid.MustParse("6f1d2a9c-3b57-4c1e-9a0d-52e7b8c4f310")
	deadlineForms = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"January 2, 2006",
		"January 2 2006",
		"Jan 2, 2006",
		"Jan 2 2006",
		"2 January 2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"Mon, 02 Jan 2006 15:04:05 MST",
	}
)

// TrimURL removes surrounding space and a single trailing slash, keeping case.
func TrimURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}

// URLKey is the comparison form of a URL: trimmed and lower-cased.
func URLKey(raw string) string {
	return strings.ToLower(TrimURL(raw))
}

// LongestDescription returns the longest non-blank candidate.
func LongestDescription(candidates ...string) string {
	best := ""
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

// ParseDeadline parses a free-text deadline. Anything unparseable yields nil.
func ParseDeadline(text string) *time.Time {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	s = ordinalSufRe.ReplaceAllString(s, "$1")
	for _, layout := range deadlineForms {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// HTMLToText strips tags, scripts and styles and collapses whitespace.
func HTMLToText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapse(html)
	}
	doc.Find("script, style, noscript, nav, footer, header").Remove()
	doc.Find("br, p, li, h1, h2, h3, h4, h5, h6, div, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return collapse(doc.Text())
}

// MarkdownToText drops markdown syntax, keeping link text.
func MarkdownToText(md string) string {
	s := mdImageRe.ReplaceAllString(md, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = mdRuleRe.ReplaceAllString(s, "")
	s = mdHeadingRe.ReplaceAllString(s, "")
	s = mdListRe.ReplaceAllString(s, "")
	s = mdEmphasisRe.ReplaceAllString(s, "")
	return collapse(s)
}

// Truncate cuts s to at most n runes, appending an ellipsis when it cuts.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

// SyntheticID derives a stable id from parts for postings without a URL.
func SyntheticID(parts ...string) string {
	key := strings.ToLower(strings.Join(parts, "\x1f"))
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

func collapse(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(l, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
