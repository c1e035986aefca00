// Package safety screens free text for prompt-injection patterns and
// sanitizes it before it is sent to a generation provider.
package safety

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSanitizedRunes bounds the length of sanitized text.
const MaxSanitizedRunes = 4000

// Rule is one named adversarial pattern.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// Rules is the ordered rule list used by Screen. Compiled once at package init.
var Rules = []Rule{
	{"ignore_previous_instructions", regexp.MustCompile(`(?i)\bignore\s+(all\s+)?(of\s+)?(the\s+|your\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|prompts?|rules|directions|context)`)},
	{"disregard_instructions", regexp.MustCompile(`(?i)\b(disregard|forget|override)\s+(all\s+)?(of\s+)?(the\s+|your\s+)?((previous|prior|above|earlier|system)\s+)?(instructions?|rules|guidelines|prompts?)`)},
	{"reveal_system_prompt", regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output|leak)\s+(me\s+)?(your|the)\s+(system\s+|hidden\s+|initial\s+)?(prompt|instructions)`)},
	{"role_override", regexp.MustCompile(`(?i)\byou\s+are\s+(now|no\s+longer)\b`)},
	{"jailbreak_mode", regexp.MustCompile(`(?i)\b(jailbreak|jailbroken|developer\s+mode|do\s+anything\s+now|unfiltered\s+mode)\b`)},
	{"chat_markup", regexp.MustCompile(`(?im)(<\|im_start\|>|<\|im_end\|>|<\|system\|>|\[/?INST\]|<</?SYS>>|^\s*(system|assistant)\s*:)`)},
}

// Screening is the outcome of Screen.
type Screening struct {
	Flagged bool
	// Matches holds the ids of the matched rules in rule order.
	Matches []string
}

// Screen tests text against every rule and reports the ones that match.
func Screen(text string) Screening {
	var s Screening
	for _, r := range Rules {
		if r.Pattern.MatchString(text) {
			s.Matches = append(s.Matches, r.ID)
		}
	}
	s.Flagged = len(s.Matches) > 0
	return s
}

// ScreenAll screens several fields and merges the matches, keeping rule order
// and dropping duplicates. Each field is screened as given and as Sanitize
// would send it, since stripping zero-width or bracket characters can join a
// split phrase back together.
func ScreenAll(texts ...string) Screening {
	matched := make(map[string]bool)
	for _, text := range texts {
		for _, form := range []string{text, Sanitize(text)} {
			for _, id := range Screen(form).Matches {
				matched[id] = true
			}
		}
	}

	var s Screening
	for _, r := range Rules {
		if matched[r.ID] {
			s.Matches = append(s.Matches, r.ID)
		}
	}
	s.Flagged = len(s.Matches) > 0
	return s
}

// Sanitize prepares text for transport to a generation provider. Whitespace
// controls become spaces, other control and format characters (zero-width,
// bidi overrides, BOM) are dropped, as are { } [ ] < >. Runs of whitespace
// collapse to one space, the result is trimmed and truncated to
// MaxSanitizedRunes. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
		case isStructural(r):
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	out = Truncate(out, MaxSanitizedRunes)
	return strings.TrimSpace(out)
}

func isStructural(r rune) bool {
	switch r {
	case '{', '}', '[', ']', '<', '>':
		return true
	}
	return false
}

// Truncate cuts s to at most maxRunes runes.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
