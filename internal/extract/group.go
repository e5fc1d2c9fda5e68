package extract

import (
	"regexp"
	"strings"
)

// BookingScope distinguishes who an additional booking request covers.
type BookingScope string

const (
	// ScopeNone means the utterance is not asking to book for anyone else.
	ScopeNone BookingScope = ""
	// ScopeSecondary is a substitute or follow-on booking for one other
	// person, executed as a new sequential booking.
	ScopeSecondary BookingScope = "secondary"
	// ScopeGroup is a simultaneous multi-person request; every participant
	// must be ready before anything executes.
	ScopeGroup BookingScope = "group"
)

// SecondaryResult is the outcome of secondary/group-booking detection.
type SecondaryResult struct {
	Scope    BookingScope
	Relation string // "son", "daughter", ... when mentioned
	Name     string // explicit name when one was spoken ("for my son Michael")
	SameTime bool   // caller asked for the same time as the primary booking
}

var groupPhrases = []string{
	"both of us",
	"all of us",
	"the two of us",
	"two appointments",
	"three appointments",
	"appointments for us",
	"me and my",
	"my wife and i",
	"my husband and i",
	"together",
}

var secondaryPhrases = []string{
	"also book",
	"another appointment",
	"one more appointment",
	"book for someone else",
	"for someone else",
	"not for me",
	"it's for my",
	"its for my",
	"book my",
	"book for my",
	"appointment for my",
	"one for my",
}

var relationMentionRE = regexp.MustCompile(`\b(?:my|his|her|our|their)\s+(son|daughter|kid|child|wife|husband|partner|mom|mother|dad|father|brother|sister|friend)\b`)

// "for my son Michael" — a relation immediately followed by a capitalizable name.
var relationNameRE = regexp.MustCompile(`\b(?:my|his|her|our|their)\s+(?:son|daughter|kid|child|wife|husband|partner|mom|mother|dad|father|brother|sister|friend),?\s+([a-z]+(?:\s+[a-z]+)?)\b`)

var sameTimeRE = regexp.MustCompile(`\bsame\s+(time|slot|appointment|day)\b`)

// nameStopwords are words that follow a relation mention without being a
// name ("my wife and I", "my son needs one").
var nameStopwords = map[string]bool{
	"and": true, "or": true, "both": true, "also": true, "too": true,
	"need": true, "needs": true, "want": true, "wants": true,
	"would": true, "will": true, "can": true, "could": true, "should": true,
	"is": true, "are": true, "was": true, "has": true, "have": true,
	"to": true, "a": true, "an": true, "the": true, "for": true, "in": true,
}

// DetectSecondaryBooking classifies an utterance as a group request, a
// secondary (substitute/follow-on) request, or neither. Group phrasing wins
// over secondary phrasing when both appear ("book for my wife and both of us
// need one").
func DetectSecondaryBooking(text string) SecondaryResult {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return SecondaryResult{}
	}

	res := SecondaryResult{SameTime: sameTimeRE.MatchString(norm)}

	if m := relationMentionRE.FindStringSubmatch(norm); m != nil {
		res.Relation = m[1]
	}
	if m := relationNameRE.FindStringSubmatch(norm); m != nil {
		// Filler rides along in speech ("my son needs one", "my son james
		// for the same time"); keep only the words that are actually a name.
		words := strings.Fields(strings.TrimSpace(m[1]))
		if len(words) == 2 && nameStopwords[words[1]] {
			words = words[:1]
		}
		if len(words) > 0 && !nameStopwords[words[0]] {
			candidate := strings.Join(words, " ")
			if IsValidName(candidate) {
				res.Name = candidate
			}
		}
	}

	for _, p := range groupPhrases {
		if strings.Contains(norm, p) {
			res.Scope = ScopeGroup
			return res
		}
	}

	for _, p := range secondaryPhrases {
		if strings.Contains(norm, p) {
			res.Scope = ScopeSecondary
			return res
		}
	}

	return SecondaryResult{SameTime: res.SameTime}
}

// goodbyePhrases includes apostrophe and no-apostrophe variants since speech
// recognition is inconsistent about contractions.
var goodbyePhrases = []string{
	"goodbye",
	"good bye",
	"bye bye",
	"bye",
	"that's it",
	"thats it",
	"that's all",
	"thats all",
	"that is all",
	"that'll be all",
	"thatll be all",
	"nothing else",
	"no that's everything",
	"i'm done",
	"im done",
	"we're done",
	"were done",
	"all set",
	"i'm all set",
	"im all set",
	"have a good day",
	"have a great day",
	"talk to you later",
	"see you",
	"hang up",
}

// IsGoodbye reports whether the caller is wrapping up the call.
func IsGoodbye(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Trim(norm, ".!? ")
	if norm == "" {
		return false
	}
	for _, p := range goodbyePhrases {
		if norm == p {
			return true
		}
	}
	// Longer utterances still count when they end with a goodbye phrase.
	for _, p := range goodbyePhrases {
		if strings.HasSuffix(norm, p) && len(norm) <= len(p)+24 {
			return true
		}
	}
	return false
}
