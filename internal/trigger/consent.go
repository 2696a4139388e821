package trigger

import (
	"strings"

	"github.com/elliotchance/pie/v2"
)

// Consent is the classification of a user reply to a pending offer.
type Consent int

const (
	ConsentAmbiguous Consent = iota
	ConsentAffirmative
	ConsentNegative
)

func (c Consent) String() string {
	switch c {
	case ConsentAffirmative:
		return "affirmative"
	case ConsentNegative:
		return "negative"
	default:
		return "ambiguous"
	}
}

var (
	affirmativePhrases = []string{
		"yes", "yeah", "sure", "ok", "okay", "please", "show me",
		"i would like", "that would be great", "sounds good",
	}
	negativePhrases = []string{
		"no", "nah", "not now", "maybe later", "not interested",
	}
)

// Classify matches text against the affirmative phrases first, then the
// negative ones. Matching is a case-insensitive substring test.
func Classify(text string) Consent {
	c, _ := classify(text)
	return c
}

func classify(text string) (Consent, string) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return ConsentAmbiguous, ""
	}
	contains := func(phrase string) bool { return strings.Contains(normalized, phrase) }

	if i := pie.FindFirstUsing(affirmativePhrases, contains); i >= 0 {
		return ConsentAffirmative, affirmativePhrases[i]
	}
	if i := pie.FindFirstUsing(negativePhrases, contains); i >= 0 {
		return ConsentNegative, negativePhrases[i]
	}
	return ConsentAmbiguous, ""
}
