package extract

import (
	"regexp"
	"strings"
)

// Answer is the outcome of yes/no classification.
type Answer string

const (
	AnswerYes     Answer = "yes"
	AnswerNo      Answer = "no"
	AnswerUnclear Answer = "unclear"
)

// Multi-word negative phrases are checked before anything else so that a
// coincidental affirmative token inside them cannot flip the result:
// "absolutely no" is a NO even though "absolutely" alone is a YES.
var negativePhrases = []string{
	"absolutely no",
	"absolutely not",
	"definitely not",
	"of course not",
	"i don't think so",
	"i dont think so",
	"not really",
	"not me",
	"not for me",
	"for someone else",
	"no thanks",
	"no thank you",
	"yeah no",
	"don't",
	"do not",
}

var negativeTokens = map[string]bool{
	"no":        true,
	"nope":      true,
	"nah":       true,
	"negative":  true,
	"wrong":     true,
	"incorrect": true,
	"cancel":    true,
	"never":     true,
}

var affirmativeTokens = map[string]bool{
	"yes":        true,
	"yeah":       true,
	"yep":        true,
	"yup":        true,
	"sure":       true,
	"ok":         true,
	"okay":       true,
	"correct":    true,
	"right":      true,
	"absolutely": true,
	"definitely": true,
	"certainly":  true,
	"confirm":    true,
	"confirmed":  true,
	"please":     true,
	"perfect":    true,
	"great":      true,
	"fine":       true,
	"good":       true,
	"sounds":     true, // "sounds good", "sounds great"
}

var yesNoCleanRE = regexp.MustCompile(`[^a-z'\s]`)

// ClassifyYesNo decides whether an utterance is an affirmation, a rejection,
// or neither. Negative signals always win over affirmative ones appearing in
// the same utterance.
func ClassifyYesNo(text string) Answer {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = yesNoCleanRE.ReplaceAllString(norm, " ")
	norm = strings.Join(strings.Fields(norm), " ")
	if norm == "" {
		return AnswerUnclear
	}

	for _, phrase := range negativePhrases {
		if strings.Contains(norm, phrase) {
			return AnswerNo
		}
	}

	tokens := strings.Fields(norm)
	sawYes := false
	for _, tok := range tokens {
		tok = strings.Trim(tok, "'")
		if negativeTokens[tok] {
			return AnswerNo
		}
		if affirmativeTokens[tok] {
			sawYes = true
		}
	}
	if sawYes {
		return AnswerYes
	}
	return AnswerUnclear
}
