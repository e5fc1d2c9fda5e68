package extract

import (
	"regexp"
	"strings"
)

// relationWords are family/relationship words that callers substitute for a
// real name ("book it for my son"). A booking must never execute against one
// of these placeholders.
var relationWords = map[string]bool{
	"son":         true,
	"daughter":    true,
	"kid":         true,
	"child":       true,
	"children":    true,
	"baby":        true,
	"wife":        true,
	"husband":     true,
	"partner":     true,
	"mom":         true,
	"mother":      true,
	"dad":         true,
	"father":      true,
	"brother":     true,
	"sister":      true,
	"friend":      true,
	"grandma":     true,
	"grandmother": true,
	"grandpa":     true,
	"grandfather": true,
	"aunt":        true,
	"uncle":       true,
	"cousin":      true,
	"boyfriend":   true,
	"girlfriend":  true,
	"fiance":      true,
	"fiancee":     true,
}

var pronounWords = map[string]bool{
	"me":      true,
	"myself":  true,
	"i":       true,
	"you":     true,
	"he":      true,
	"she":     true,
	"they":    true,
	"him":     true,
	"her":     true,
	"them":    true,
	"us":      true,
	"we":      true,
	"it":      true,
	"someone": true,
	"anybody": true,
	"anyone":  true,
}

// placeholderWords are session-internal labels that leak into utterances or
// get proposed by the model in place of a collected name.
var placeholderWords = map[string]bool{
	"primary":   true,
	"caller":    true,
	"patient":   true,
	"person":    true,
	"unknown":   true,
	"guest":     true,
	"secondary": true,
}

var possessivePrefixRE = regexp.MustCompile(`^(my|his|her|their|our|the|your)\s+`)

// IsValidName reports whether a string can be used as a real person name for
// booking. Pronouns, bare relationship words ("son"), possessive-prefixed
// relationship words ("my son", "the child"), and session placeholders are
// all rejected; anything else at least two characters long is accepted.
func IsValidName(s string) bool {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Join(strings.Fields(norm), " ")
	if len(norm) < 2 {
		return false
	}

	stripped := possessivePrefixRE.ReplaceAllString(norm, "")
	if relationWords[stripped] || pronounWords[stripped] || placeholderWords[stripped] {
		return false
	}
	if relationWords[norm] || pronounWords[norm] || placeholderWords[norm] {
		return false
	}

	// Every word being a non-name word ("my little son") is still invalid.
	allNoise := true
	for _, w := range strings.Fields(stripped) {
		if !relationWords[w] && !pronounWords[w] && !placeholderWords[w] &&
			w != "little" && w != "big" && w != "other" {
			allNoise = false
			break
		}
	}
	return !allNoise
}
