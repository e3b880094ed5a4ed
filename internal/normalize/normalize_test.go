package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLKey(t *testing.T) {
	assert.Equal(t, "https://acme.com/jobs/1", URLKey(" https://Acme.com/Jobs/1/ "))
	assert.Equal(t, "https://Acme.com/Jobs/1", TrimURL("https://Acme.com/Jobs/1/"))
	// only one slash is removed
	assert.Equal(t, "https://acme.com/jobs/", URLKey("https://acme.com/jobs//"))
}

func TestLongestDescription(t *testing.T) {
	assert.Equal(t, "a longer one", LongestDescription("short", "", "a longer one", "   "))
	assert.Equal(t, "", LongestDescription("", "  "))
}

func TestParseDeadline(t *testing.T) {
	cases := map[string]time.Time{
		"2025-03-31":           time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		"March 31, 2025":       time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		"31st March 2025":      time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		"2025-03-31T12:00:00Z": time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got := ParseDeadline(in)
		require.NotNil(t, got, in)
		assert.True(t, want.Equal(*got), in)
	}

	for _, in := range []string{"", "ASAP", "rolling basis", "2025-13-45"} {
		assert.Nil(t, ParseDeadline(in), in)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>p{}</style><script>var x=1</script></head>
<body><h1>Backend Engineer</h1><p>Build   <b>APIs</b> in Go.</p><ul><li>Postgres</li><li>Redis</li></ul></body></html>`

	got := HTMLToText(html)

	assert.Contains(t, got, "Backend Engineer")
	assert.Contains(t, got, "Build APIs in Go.")
	assert.Contains(t, got, "Postgres")
	assert.NotContains(t, got, "var x")
	assert.NotContains(t, got, "<")
}

func TestMarkdownToText(t *testing.T) {
	md := "# Senior Engineer\n\n![logo](x.png)\n**Acme** is hiring. [Apply here](https://acme.com/apply)\n\n- Go\n- Kubernetes"

	got := MarkdownToText(md)

	assert.Equal(t, "Senior Engineer\n\nAcme is hiring. Apply here\n\nGo\nKubernetes", got)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc…", Truncate("abcdef", 3))
	assert.Equal(t, "über…", Truncate("überlang", 4))
}

func TestSyntheticID_Stable(t *testing.T) {
	a := SyntheticID("Acme", "Backend Engineer", "Berlin")
	b := SyntheticID("acme", "backend engineer", "berlin")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SyntheticID("Acme", "Frontend Engineer", "Berlin"))
	assert.Len(t, a, 36)
}
