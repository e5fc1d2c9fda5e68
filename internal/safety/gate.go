package safety

import (
	"regexp"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// TriggerCategory labels why the safety gate overrode a turn.
type TriggerCategory string

const (
	TriggerNone         TriggerCategory = ""
	TriggerEmergency    TriggerCategory = "emergency"
	TriggerHumanRequest TriggerCategory = "human_request"
	TriggerProfanity    TriggerCategory = "profanity"
	TriggerDisallowed   TriggerCategory = "disallowed_content"
)

// GateResult is the outcome of the pre-classification safety check.
type GateResult struct {
	Overridden     bool
	Category       TriggerCategory
	ForcedIntent   string
	ForcedReply    string
	ShouldTransfer bool
}

type gatePattern struct {
	re       *regexp.Regexp
	category TriggerCategory
}

// Emergency patterns are checked first; a caller describing an emergency must
// never be routed into booking chit-chat.
var gatePatterns = []gatePattern{
	{regexp.MustCompile(`(?i)\b(can'?t|cannot|trouble|difficulty)\s+breath`), TriggerEmergency},
	{regexp.MustCompile(`(?i)\bchest\s+pain`), TriggerEmergency},
	{regexp.MustCompile(`(?i)\b(heart\s+attack|stroke|seizure|unconscious|overdose|anaphyla)`), TriggerEmergency},
	{regexp.MustCompile(`(?i)\b(bleeding\s+(badly|heavily|a lot)|severe\s+bleeding)`), TriggerEmergency},
	{regexp.MustCompile(`(?i)\b(emergency|911|ambulance)\b`), TriggerEmergency},
	{regexp.MustCompile(`(?i)\b(suicid|kill\s+myself|end\s+my\s+life|hurt\s+myself)`), TriggerEmergency},

	{regexp.MustCompile(`(?i)\b(talk|speak)\s+(to|with)\s+(a\s+)?(real\s+)?(human|person|receptionist|someone|somebody|staff|operator)\b`), TriggerHumanRequest},
	{regexp.MustCompile(`(?i)\b(transfer|connect)\s+me\b`), TriggerHumanRequest},
	{regexp.MustCompile(`(?i)\bget\s+me\s+(a\s+)?(human|person|someone)\b`), TriggerHumanRequest},
	{regexp.MustCompile(`(?i)\b(i\s+(don'?t|do\s+not)\s+want\s+to\s+talk\s+to\s+a?\s*(robot|machine|computer|bot|ai))\b`), TriggerHumanRequest},

	{regexp.MustCompile(`(?i)\b(fuck|shit|bitch|asshole|bastard|cunt|dickhead)\w*`), TriggerProfanity},

	{regexp.MustCompile(`(?i)\b(prescri(be|ption)\s+me|get\s+me\s+(opioids|oxycodone|fentanyl|xanax|adderall))\b`), TriggerDisallowed},
	{regexp.MustCompile(`(?i)\b(medical\s+advice|should\s+i\s+stop\s+taking)\b`), TriggerDisallowed},
}

var gateReplies = map[TriggerCategory]string{
	TriggerEmergency: "If this is a medical emergency, please hang up and dial nine one one right away. " +
		"I'm not able to help with emergencies.",
	TriggerHumanRequest: "Of course, let me put you through to our reception team now. One moment please.",
	TriggerProfanity:    "I understand this can be frustrating. Let me connect you with a member of our team.",
	TriggerDisallowed: "I'm sorry, I can't help with that over the phone. A clinician can discuss it with " +
		"you at your appointment, or I can connect you with reception.",
}

var gateIntents = map[TriggerCategory]string{
	TriggerEmergency:    "emergency",
	TriggerHumanRequest: "human_request",
	TriggerProfanity:    "human_request",
	TriggerDisallowed:   "out_of_scope",
}

// Gate inspects raw utterances before any model call and can short-circuit
// the whole turn with a fixed response.
type Gate struct {
	logger *logging.Logger
}

// NewGate creates a safety gate.
func NewGate(logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{logger: logger}
}

// Check runs the pattern tables against the utterance. It never fails; an
// utterance with no match simply comes back non-overridden.
func (g *Gate) Check(callID, utterance string) GateResult {
	if utterance == "" {
		return GateResult{}
	}

	for _, p := range gatePatterns {
		if p.re.MatchString(utterance) {
			g.logger.Info("safety gate triggered",
				"call_id", callID,
				"category", string(p.category),
			)
			return GateResult{
				Overridden:     true,
				Category:       p.category,
				ForcedIntent:   gateIntents[p.category],
				ForcedReply:    gateReplies[p.category],
				ShouldTransfer: p.category == TriggerHumanRequest || p.category == TriggerProfanity,
			}
		}
	}
	return GateResult{}
}
