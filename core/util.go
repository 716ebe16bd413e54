package core

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the layout of date-only values sent and received by the API.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StripAccents removes diacritics: "Établissement" -> "Etablissement".
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FoldText lower-cases `s` and strips its accents.
func FoldText(s string) string {
	return strings.ToLower(StripAccents(s))
}

// NormalizeText folds `s` for loose comparisons: accents stripped, lower-cased,
// punctuation turned into spaces and whitespace collapsed.
func NormalizeText(s string) string {
	s = strings.ToLower(StripAccents(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// ParseDate parses `s` with the accepted date layouts; dates are returned in UTC.
func ParseDate(s string) (time.Time, error) {
	s = CleanString(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q", s)
}

// TruncateDay drops the time of day of `t` (UTC).
func TruncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Round2 rounds `f` to 2 decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
