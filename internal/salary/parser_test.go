package salary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestParse_Ranges(t *testing.T) {
	cases := []struct {
		in       string
		min, max *int
		currency domain.Currency
	}{
		{"$100k-150k", intPtr(100000), intPtr(150000), domain.CurrencyUSD},
		{"£40k–55k", intPtr(40000), intPtr(55000), domain.CurrencyGBP},
		{"€60K - €80K", intPtr(60000), intPtr(80000), domain.CurrencyEUR},
		{"$90,000 to $110,000 a year", intPtr(90000), intPtr(110000), domain.CurrencyUSD},
		{"$120k-140k CAD", intPtr(120000), intPtr(140000), domain.CurrencyCAD},
		{"AUD 95000 - 105000", intPtr(95000), intPtr(105000), domain.CurrencyAUD},
		{"GBP 50,000", intPtr(50000), nil, domain.CurrencyGBP},
		{"GBP45,000", intPtr(45000), nil, domain.CurrencyGBP},
		{"USD120k-150k", intPtr(120000), intPtr(150000), domain.CurrencyUSD},
		{"EUR60000", intPtr(60000), nil, domain.CurrencyEUR},
		{"120000CAD", intPtr(120000), nil, domain.CurrencyCAD},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got := Parse(c.in)
			assert.Equal(t, c.min, got.Min)
			assert.Equal(t, c.max, got.Max)
			assert.Equal(t, c.currency, got.Currency)
		})
	}
}

func TestParse_SingleValueLeavesMaxNil(t *testing.T) {
	got := Parse("£45000")

	require.NotNil(t, got.Min)
	assert.Equal(t, 45000, *got.Min)
	assert.Nil(t, got.Max)
	assert.Equal(t, domain.CurrencyGBP, got.Currency)
}

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "   "} {
		got := Parse(in)
		assert.Nil(t, got.Min)
		assert.Nil(t, got.Max)
		assert.Equal(t, domain.CurrencyUnknown, got.Currency)
	}

	got := ParsePtr(nil)
	assert.Nil(t, got.Min)
	assert.Nil(t, got.Max)
	assert.Equal(t, domain.CurrencyUnknown, got.Currency)
}

func TestParse_NoNumberStillDetectsCurrency(t *testing.T) {
	got := Parse("Competitive, paid in EUR")

	assert.Nil(t, got.Min)
	assert.Nil(t, got.Max)
	assert.Equal(t, domain.CurrencyEUR, got.Currency)
}

func TestDetectCurrency_Priority(t *testing.T) {
	assert.Equal(t, domain.CurrencyCAD, DetectCurrency("$120k CAD"))
	assert.Equal(t, domain.CurrencyAUD, DetectCurrency("$150k AUD"))
	assert.Equal(t, domain.CurrencyGBP, DetectCurrency("£50k or $65k"))
	assert.Equal(t, domain.CurrencyEUR, DetectCurrency("€70k ($75k)"))
	assert.Equal(t, domain.CurrencyUSD, DetectCurrency("usd 100000"))
	assert.Equal(t, domain.CurrencyUnknown, DetectCurrency("Remote across Europe"))
	assert.Equal(t, domain.CurrencyUnknown, DetectCurrency("Arcade game studio, 60000"))
	assert.Equal(t, domain.CurrencyGBP, DetectCurrency("GBP45,000"))
	assert.Equal(t, domain.CurrencyCAD, DetectCurrency("120000CAD"))
}

func TestDetectPeriod(t *testing.T) {
	cases := map[string]domain.SalaryPeriod{
		"$25 - $30 an hour":      domain.SalaryPeriodHour,
		"$40/hr":                 domain.SalaryPeriodHour,
		"£350 per day":           domain.SalaryPeriodDay,
		"$2,000 weekly":          domain.SalaryPeriodWeek,
		"€4k per month":          domain.SalaryPeriodMonth,
		"$120k a year":           domain.SalaryPeriodYear,
		"£60,000 per annum":      domain.SalaryPeriodYear,
		"$100k-150k":             domain.SalaryPeriodUnknown,
		"Monday to Friday, $90k": domain.SalaryPeriodUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, DetectPeriod(in), in)
	}
}

func TestApply(t *testing.T) {
	raw := "$100k-150k per year"
	job := &domain.Job{SalaryRaw: &raw}

	Apply(job)

	require.NotNil(t, job.SalaryMin)
	require.NotNil(t, job.SalaryMax)
	assert.Equal(t, 100000, *job.SalaryMin)
	assert.Equal(t, 150000, *job.SalaryMax)
	assert.Equal(t, domain.CurrencyUSD, job.SalaryCurrency)
	assert.Equal(t, domain.SalaryPeriodYear, job.SalaryPeriod)
}

func TestApply_KeepsExistingWhenUnparseable(t *testing.T) {
	raw := "Competitive"
	existing := 80000
	job := &domain.Job{SalaryRaw: &raw, SalaryMin: &existing, SalaryCurrency: domain.CurrencyGBP}

	Apply(job)

	require.NotNil(t, job.SalaryMin)
	assert.Equal(t, 80000, *job.SalaryMin)
	assert.Equal(t, domain.CurrencyGBP, job.SalaryCurrency)
}
