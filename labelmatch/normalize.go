package labelmatch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeMode selects how aggressively label text is canonicalized.
type NormalizeMode int

const (
	// ModeCatalog is used for labels authored in the catalog.
	ModeCatalog NormalizeMode = iota
	// ModeDiscovered additionally strips parentheticals and stop words from labels found on a page.
	ModeDiscovered
)

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)

	stopWords = map[string]struct{}{
		"please": {},
		"enter":  {},
		"your":   {},
		"the":    {},
		"a":      {},
		"an":     {},
		"of":     {},
		"to":     {},
		"for":    {},
	}

	blacklist = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^i agree`),
		regexp.MustCompile(`(?i)^terms`),
		regexp.MustCompile(`(?i)^privacy`),
		regexp.MustCompile(`(?i)^captcha`),
		regexp.MustCompile(`(?i)^submit`),
		regexp.MustCompile(`(?i)^search`),
		regexp.MustCompile(`(?i)^filter`),
	}
)

// Normalize turns raw label text into the comparison key used by generation,
// calibration and matching.
func Normalize(raw string, mode NormalizeMode) string {
	text := norm.NFKC.String(raw)
	text = strings.Map(func(r rune) rune {
		switch r {
		case '*', ':', '?':
			return -1
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	// Casers are not safe for concurrent use.
	text = cases.Lower(language.Und).String(text)
	if mode == ModeDiscovered {
		text = parentheticalRe.ReplaceAllString(text, "")
	}
	fields := strings.Fields(text)
	if mode != ModeDiscovered {
		return strings.Join(fields, " ")
	}
	kept := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// IsStopWord reports whether token is dropped by discovered-mode normalization.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// IsBlacklisted reports whether a normalized label names a control that is never matched,
// such as consent checkboxes or search boxes.
func IsBlacklisted(normalized string) bool {
	for _, re := range blacklist {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// WordCount is the whitespace token count of text, never less than one.
func WordCount(text string) int {
	n := len(strings.Fields(text))
	if n < 1 {
		return 1
	}
	return n
}
