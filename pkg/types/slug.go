package types

import (
	"regexp"
	"time"
)

// Sports market slugs embed a trailing game date, e.g.
// "nba-dal-mil-2026-01-25". The date is used as a guardrail against
// trading markets whose game has already happened.
var slugDateRe = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})$`)

// ParseSlugDate extracts a trailing YYYY-MM-DD date from a market slug.
// Returns ok=false when the slug does not end with a parseable date.
func ParseSlugDate(slug string) (time.Time, bool) {
	m := slugDateRe.FindStringSubmatch(slug)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsTradeableSlug decides if a market should be tradeable based on its
// slug date, evaluated against the UTC calendar day of now.
//
// Rules:
//   - no parseable date: allow (unknown or non-sports slug format)
//   - date before today: block
//   - date is today: allow only when in-game trading is enabled
//   - date after today: allow
func IsTradeableSlug(slug string, now time.Time, allowInGame bool) bool {
	slugDate, ok := ParseSlugDate(slug)
	if !ok {
		return true
	}

	today := now.UTC().Truncate(24 * time.Hour)
	switch {
	case slugDate.Before(today):
		return false
	case slugDate.Equal(today):
		return allowInGame
	default:
		return true
	}
}
