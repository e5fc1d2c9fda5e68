package intent

import (
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/extract"
)

// keywordRule is one entry in the ordered fallback ruleset. Rules are
// evaluated top to bottom and the first match wins, so ordering encodes
// priority: emergency beats everything, booking beats greeting.
type keywordRule struct {
	re         *regexp.Regexp
	intent     Intent
	confidence float64
}

var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)\b(emergency|911|ambulance|chest pain|can'?t breathe|bleeding badly)\b`), IntentEmergency, 0.95},
	{regexp.MustCompile(`(?i)\b((talk|speak)\s+(to|with)\s+(a\s+)?(human|person|receptionist|someone)|transfer me|real person)\b`), IntentHumanRequest, 0.9},

	{regexp.MustCompile(`(?i)\b(what ((are|r) )?(your |the )?hours|when (are you|do you) open|open (on|until|till)|closing time)\b`), IntentFAQHours, 0.85},
	{regexp.MustCompile(`(?i)\b(where (are you|is the clinic)|address|directions|parking|located|how do i get)\b`), IntentFAQLocation, 0.85},
	{regexp.MustCompile(`(?i)\b(how much|price|pricing|cost|fee|charge|insurance|bulk bill)\b`), IntentFAQPricing, 0.8},
	{regexp.MustCompile(`(?i)\b(do you (offer|do|treat)|what services|first visit|what should i bring)\b`), IntentFAQGeneral, 0.75},

	{regexp.MustCompile(`(?i)\bcancel\b`), IntentCancel, 0.85},
	{regexp.MustCompile(`(?i)\b(reschedule|move (my|the) appointment|change (my|the) (appointment|time|booking)|different (time|day))\b`), IntentReschedule, 0.85},
	{regexp.MustCompile(`(?i)\b(book|appointment|schedule|come in|see (the|a) (doctor|dentist|gp|physio)|make a booking|get in)\b`), IntentBooking, 0.8},

	{regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|yup|sure|ok|okay|correct|that'?s right|sounds good|perfect|absolutely)\b`), IntentConfirmation, 0.75},
	{regexp.MustCompile(`(?i)^\s*(no|nope|nah|not really|that'?s wrong|incorrect)\b`), IntentNegation, 0.75},
	{regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening))\b`), IntentGreeting, 0.7},
	{regexp.MustCompile(`(?i)\b(what|sorry|pardon|repeat|say (that|it) again|didn'?t (hear|catch|understand))\b`), IntentClarification, 0.65},
}

// ClassifyByRules runs the deterministic ruleset. It is total: every
// utterance produces a result, defaulting to IntentOther at low confidence.
func ClassifyByRules(utterance string) Result {
	text := strings.TrimSpace(utterance)
	res := Result{Intent: IntentOther, Confidence: 0.3, Source: "rules"}
	if text == "" {
		return res
	}

	if extract.IsGoodbye(text) {
		res.Intent = IntentGoodbye
		res.Confidence = 0.8
		return res
	}

	for _, rule := range keywordRules {
		if rule.re.MatchString(text) {
			res.Intent = rule.intent
			res.Confidence = rule.confidence
			break
		}
	}

	res.Entities = extractEntities(text)
	return res
}

var dayEntityRE = regexp.MustCompile(`(?i)\b(today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
var timeOfDayEntityRE = regexp.MustCompile(`(?i)\b(morning|afternoon|evening)\b`)
var myNameIsRE = regexp.MustCompile(`(?i)\b(?:my name is|my name'?s|this is|i'?m|it'?s)\s+([a-zA-Z][a-zA-Z'\-]+(?:\s+[a-zA-Z][a-zA-Z'\-]+)?)`)

func extractEntities(text string) Entities {
	ents := Entities{}
	if m := dayEntityRE.FindString(text); m != "" {
		ents.Day = strings.ToLower(m)
	}
	if m := timeOfDayEntityRE.FindString(text); m != "" {
		ents.TimeOfDay = strings.ToLower(m)
	}
	if m := myNameIsRE.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		// "I'm calling", "it's about my knee" are not names.
		first := strings.ToLower(strings.Fields(candidate)[0])
		if first != "calling" && first != "about" && first != "wondering" &&
			first != "trying" && first != "looking" && extract.IsValidName(candidate) {
			ents.Name = candidate
		}
	}
	if m := extract.ExtractSpelledName(text); m != "" {
		ents.Name = m
	}
	return ents
}
