// Package salary turns free-text salary strings into structured ranges.
package salary

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

// Result is the structured form of a salary string. Nil bounds mean unknown.
type Result struct {
	Min      *int
	Max      *int
	Currency domain.Currency
	Period   domain.SalaryPeriod
}

var (
	thousandsRe  = regexp.MustCompile(`(?i)(\d+)k\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	rangeRe      = regexp.MustCompile(`([$£€])?\s*(\d{2,7})(?:\s*[-–to]+\s*([$£€])?\s*(\d{2,7}))?`)
)

// codeRe matches symbol, or code not embedded in a longer word. Digits may
// touch the code, as in "GBP45,000" or "120000CAD".
func codeRe(symbol, code string) *regexp.Regexp {
	pattern := `(^|[^a-z])` + code + `([^a-z]|$)`
	if symbol != "" {
		pattern = symbol + `|` + pattern
	}
	return regexp.MustCompile(`(?i)` + pattern)
}

// currencyRules are checked in order; the first hit wins. GBP and EUR come
// before the dollar currencies, and CAD/AUD before USD, so "$120k CAD" is CAD.
var currencyRules = []struct {
	currency domain.Currency
	re       *regexp.Regexp
}{
	{domain.CurrencyGBP, codeRe(`£`, "gbp")},
	{domain.CurrencyEUR, codeRe(`€`, "eur")},
	{domain.CurrencyCAD, codeRe(``, "cad")},
	{domain.CurrencyAUD, codeRe(``, "aud")},
	{domain.CurrencyUSD, codeRe(`\$`, "usd")},
}

var periodRules = []struct {
	period domain.SalaryPeriod
	re     *regexp.Regexp
}{
	{domain.SalaryPeriodHour, regexp.MustCompile(`(?i)(\b(per|an|a)\s+|/\s*)(hour|hr)\b|\bhourly\b`)},
	{domain.SalaryPeriodDay, regexp.MustCompile(`(?i)(\b(per|a)\s+|/\s*)day\b|\bdaily\b`)},
	{domain.SalaryPeriodWeek, regexp.MustCompile(`(?i)(\b(per|a)\s+|/\s*)(week|wk)\b|\bweekly\b`)},
	{domain.SalaryPeriodMonth, regexp.MustCompile(`(?i)(\b(per|a)\s+|/\s*)(month|mo)\b|\bmonthly\b`)},
	{domain.SalaryPeriodYear, regexp.MustCompile(`(?i)(\b(per|an|a)\s+|/\s*)(year|yr|annum)\b|\bannual(ly)?\b|\bp\.?a\b`)},
}

// Parse extracts a salary range from text. A single figure fills only Min.
// Currency is detected on the original text even when no number matches.
func Parse(text string) Result {
	var res Result
	if strings.TrimSpace(text) == "" {
		return res
	}

	res.Currency = DetectCurrency(text)
	res.Period = DetectPeriod(text)

	m := rangeRe.FindStringSubmatch(clean(text))
	if m == nil {
		return res
	}
	if v, err := strconv.Atoi(m[2]); err == nil {
		res.Min = &v
	}
	if m[4] != "" {
		if v, err := strconv.Atoi(m[4]); err == nil {
			res.Max = &v
		}
	}
	return res
}

// ParsePtr is Parse for optional input; nil yields an all-null Result.
func ParsePtr(text *string) Result {
	if text == nil {
		return Result{}
	}
	return Parse(*text)
}

// DetectCurrency returns the first currency found by priority, or unknown.
func DetectCurrency(text string) domain.Currency {
	for _, rule := range currencyRules {
		if rule.re.MatchString(text) {
			return rule.currency
		}
	}
	return domain.CurrencyUnknown
}

// DetectPeriod returns the pay interval mentioned in text, or unknown.
func DetectPeriod(text string) domain.SalaryPeriod {
	for _, rule := range periodRules {
		if rule.re.MatchString(text) {
			return rule.period
		}
	}
	return domain.SalaryPeriodUnknown
}

// Apply parses job.SalaryRaw into the job's salary fields. Fields the parser
// cannot determine are left untouched.
func Apply(job *domain.Job) {
	res := ParsePtr(job.SalaryRaw)
	if res.Min != nil {
		job.SalaryMin = res.Min
		job.SalaryMax = res.Max
	}
	if res.Currency != domain.CurrencyUnknown {
		job.SalaryCurrency = res.Currency
	}
	if res.Period != domain.SalaryPeriodUnknown {
		job.SalaryPeriod = res.Period
	}
}

func clean(text string) string {
	s := strings.ReplaceAll(text, ",", "")
	s = thousandsRe.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.Atoi(m[:len(m)-1])
		if err != nil {
			return m
		}
		return strconv.Itoa(n * 1000)
	})
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
