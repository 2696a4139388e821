package trigger

import (
	"regexp"
	"strings"
)

type markerScanner struct {
	token string
	re    *regexp.Regexp
}

func newMarkerScanner(token string) *markerScanner {
	return &markerScanner{
		token: token,
		re:    regexp.MustCompile(`(?i)\s*` + regexp.QuoteMeta(token) + `\s*`),
	}
}

// Strip removes every occurrence of the marker together with the whitespace
// around it. Text on both sides is re-joined with a newline when the removed
// run contained one, otherwise with a single space.
func (m *markerScanner) Strip(text string) (string, bool) {
	if !m.re.MatchString(text) {
		return text, false
	}
	out := m.re.ReplaceAllStringFunc(text, func(run string) string {
		if strings.Contains(run, "\n") {
			return "\n"
		}
		return " "
	})
	return strings.TrimSpace(out), true
}
