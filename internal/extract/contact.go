package extract

import (
	"regexp"
	"strings"
)

// emailRE matches common email address formats.
var emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// ExtractEmail returns the first email address in the text, lowercased,
// or "" when none is present.
func ExtractEmail(text string) string {
	match := emailRE.FindString(text)
	if match == "" {
		return ""
	}
	return strings.ToLower(match)
}

// spokenDigits maps spelled-out digits as STT produces them.
var spokenDigits = map[string]byte{
	"zero": '0', "oh": '0', "o": '0',
	"one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
}

// ExtractPhoneDigits collects a phone number from an utterance that mixes
// numerals and spelled digits ("nine three seven, 555 oh one two two").
// Returns the digit string when 10 or 11 digits were heard, else "".
func ExtractPhoneDigits(text string) string {
	norm := strings.ToLower(text)
	var digits strings.Builder
	for _, tok := range strings.FieldsFunc(norm, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-' || r == '.' || r == '(' || r == ')'
	}) {
		if d, ok := spokenDigits[tok]; ok {
			digits.WriteByte(d)
			continue
		}
		for _, r := range tok {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
	}
	d := digits.String()
	if len(d) == 10 || len(d) == 11 {
		return d
	}
	return ""
}

var spelledNameRE = regexp.MustCompile(`(?i)\b(?:spelled|spelt|spell(?:ing)?(?:\s+is)?)\s+((?:[a-z][\s\-,]+){2,}[a-z])\b`)

// ExtractSpelledName reassembles a letter-by-letter spelled name
// ("it's spelled J O N E S") into a single capitalized token.
func ExtractSpelledName(text string) string {
	m := spelledNameRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range strings.FieldsFunc(strings.ToLower(m[1]), func(r rune) bool {
		return r == ' ' || r == '-' || r == ','
	}) {
		if len(part) == 1 {
			b.WriteString(part)
		}
	}
	s := b.String()
	if len(s) < 2 {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ordinalWords maps spoken slot choices to a zero-based index.
var ordinalWords = map[string]int{
	"first": 0, "one": 0, "1st": 0,
	"second": 1, "two": 1, "2nd": 1,
	"third": 2, "three": 2, "3rd": 2,
	"fourth": 3, "four": 3, "4th": 3,
	"fifth": 4, "five": 4, "5th": 4,
}

var lastOptionRE = regexp.MustCompile(`\b(last|latest)\s+(one|option|slot|time)?\b`)

// SelectSlotIndex resolves which of n offered slots the caller chose, from
// either the utterance ("the second one") or DTMF digits ("2"). Returns -1
// when no selection is present or it is out of range.
func SelectSlotIndex(text, digits string, n int) int {
	if n <= 0 {
		return -1
	}

	if d := strings.TrimSpace(digits); d != "" {
		idx := 0
		for _, r := range d {
			if r < '0' || r > '9' {
				idx = -1
				break
			}
			idx = idx*10 + int(r-'0')
		}
		if idx >= 1 && idx <= n {
			return idx - 1
		}
	}

	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return -1
	}

	if lastOptionRE.MatchString(norm) {
		return n - 1
	}

	for _, tok := range strings.Fields(strings.Trim(norm, ".!?")) {
		tok = strings.Trim(tok, ".,!?")
		if idx, ok := ordinalWords[tok]; ok {
			if idx < n {
				return idx
			}
			return -1
		}
	}

	// "number 2", "option 3"
	numRE := regexp.MustCompile(`\b(?:number|option|slot)\s+(\d)\b`)
	if m := numRE.FindStringSubmatch(norm); m != nil {
		idx := int(m[1][0]-'0') - 1
		if idx >= 0 && idx < n {
			return idx
		}
	}

	return -1
}
