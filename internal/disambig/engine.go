package disambig

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/extract"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
)

// Question kinds tracked against the per-call ask cap.
const (
	QuestionPatientIdentity = "patient_identity"
	QuestionSlotChoice      = "slot_choice"
)

// Status reports how a disambiguation round ended.
type Status string

const (
	// StatusResolved means exactly one candidate was selected.
	StatusResolved Status = "resolved"
	// StatusAsk means a bounded clarification question should be spoken.
	StatusAsk Status = "ask"
	// StatusNew means the caller is a new/unknown patient; candidate records
	// are left untouched.
	StatusNew Status = "new"
	// StatusDefaulted means the ask cap was reached and a safe default was
	// chosen instead of asking again.
	StatusDefaulted Status = "defaulted"
)

// Outcome is the result of one disambiguation round.
type Outcome struct {
	Status       Status
	PatientID    string
	SlotIndex    int
	Question     string
	QuestionKind string
}

// Engine resolves one-to-many candidate situations into a single selection
// or a bounded clarification question.
type Engine struct {
	maxAsks int
}

// NewEngine creates a disambiguation engine with the given ask cap.
func NewEngine(maxAsks int) *Engine {
	if maxAsks <= 0 {
		maxAsks = 2
	}
	return &Engine{maxAsks: maxAsks}
}

// MaxAsks returns the per-question ask cap this engine enforces.
func (e *Engine) MaxAsks() int {
	return e.maxAsks
}

var newPatientRE = regexp.MustCompile(`(?i)\b(someone new|different person|new patient|never been|first time|not (in|on) (your|the) (system|file|records))\b`)

// identityCorrectionRE catches a mid-flow change of booking target
// ("no, it's actually for Lisa").
var identityCorrectionRE = regexp.MustCompile(`(?i)\b(actually (for|it'?s)|no,? it'?s for|it'?s really for|meant to say)\b`)

// IsNewPatient reports whether the caller declared themselves unknown to the
// clinic. This always exits disambiguation without touching candidate records.
func IsNewPatient(utterance string) bool {
	return newPatientRE.MatchString(utterance)
}

// IsIdentityCorrection reports whether the caller is changing who the
// appointment is for. Before a booking locks, this re-enters disambiguation
// and overwrites the previous selection.
func IsIdentityCorrection(utterance string) bool {
	return identityCorrectionRE.MatchString(utterance)
}

// ResolvePatient picks a patient from the session's candidate set. A caller
// naming exactly one candidate resolves immediately; anything ambiguous gets
// a clarification question until the ask cap, after which the safe default is
// to treat the caller as new rather than guess an identity.
func (e *Engine) ResolvePatient(sess *session.Session, utterance string) Outcome {
	if IsNewPatient(utterance) {
		return Outcome{Status: StatusNew, SlotIndex: -1}
	}

	candidates := sess.CandidatePatients
	if len(candidates) == 1 && utteranceConfirms(utterance, candidates[0]) {
		return Outcome{Status: StatusResolved, PatientID: candidates[0].ID, SlotIndex: -1}
	}

	matches := matchByName(candidates, utterance)
	if len(matches) == 0 {
		if idx := extract.SelectSlotIndex(utterance, "", len(candidates)); idx >= 0 {
			matches = []session.PatientCandidate{candidates[idx]}
		}
	}
	if len(matches) == 1 {
		return Outcome{Status: StatusResolved, PatientID: matches[0].ID, SlotIndex: -1}
	}

	if !sess.CanAsk(QuestionPatientIdentity, e.maxAsks) {
		return Outcome{Status: StatusDefaulted, SlotIndex: -1}
	}
	sess.RecordAsk(QuestionPatientIdentity)
	return Outcome{
		Status:       StatusAsk,
		SlotIndex:    -1,
		Question:     patientQuestion(candidates),
		QuestionKind: QuestionPatientIdentity,
	}
}

// ResolveSlot picks one of the offered slots from the utterance or DTMF
// digits. Ambiguity past the ask cap defaults to the earliest matching slot
// rather than asking a third time.
func (e *Engine) ResolveSlot(sess *session.Session, utterance, digits string) Outcome {
	slots := sess.Slots
	if len(slots) == 0 {
		return Outcome{Status: StatusDefaulted, SlotIndex: -1}
	}

	if idx := extract.SelectSlotIndex(utterance, digits, len(slots)); idx >= 0 {
		return Outcome{Status: StatusResolved, SlotIndex: idx}
	}

	matches := matchSlotsBySpokenTime(slots, utterance)
	if len(matches) == 1 {
		return Outcome{Status: StatusResolved, SlotIndex: matches[0]}
	}

	if len(matches) > 1 || matches == nil {
		if !sess.CanAsk(QuestionSlotChoice, e.maxAsks) {
			// Safe default: the first matching slot, else the first offered.
			idx := 0
			if len(matches) > 0 {
				idx = matches[0]
			}
			return Outcome{Status: StatusDefaulted, SlotIndex: idx}
		}
		sess.RecordAsk(QuestionSlotChoice)
		return Outcome{
			Status:       StatusAsk,
			SlotIndex:    -1,
			Question:     slotQuestion(slots),
			QuestionKind: QuestionSlotChoice,
		}
	}

	return Outcome{Status: StatusDefaulted, SlotIndex: -1}
}

func utteranceConfirms(utterance string, c session.PatientCandidate) bool {
	if extract.ClassifyYesNo(utterance) == extract.AnswerYes {
		return true
	}
	return len(matchByName([]session.PatientCandidate{c}, utterance)) == 1
}

func matchByName(candidates []session.PatientCandidate, utterance string) []session.PatientCandidate {
	norm := " " + strings.ToLower(utterance) + " "
	var out []session.PatientCandidate
	for _, c := range candidates {
		first := strings.ToLower(strings.TrimSpace(c.FirstName))
		last := strings.ToLower(strings.TrimSpace(c.LastName))
		if (first != "" && strings.Contains(norm, " "+first+" ")) ||
			(last != "" && strings.Contains(norm, " "+last+" ")) {
			out = append(out, c)
		}
	}
	return out
}

func matchSlotsBySpokenTime(slots []session.Slot, utterance string) []int {
	pref := extract.ExtractTimePreference(utterance)
	if pref == "" {
		return nil
	}
	var out []int
	for i, s := range slots {
		speakable := strings.ToLower(s.Speakable)
		matched := true
		for _, tok := range strings.Fields(pref) {
			if !strings.Contains(speakable, tok) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, i)
		}
	}
	return out
}

func patientQuestion(candidates []session.PatientCandidate) string {
	var parts []string
	for i, c := range candidates {
		parts = append(parts, fmt.Sprintf("%d for %s", i+1, strings.TrimSpace(c.FirstName+" "+c.LastName)))
	}
	return "I found a few people on this number. Say or press " +
		strings.Join(parts, ", ") + ", or say someone new."
}

func slotQuestion(slots []session.Slot) string {
	var parts []string
	for i, s := range slots {
		parts = append(parts, fmt.Sprintf("option %d, %s", i+1, s.Speakable))
	}
	return "I have " + strings.Join(parts, "; ") + ". Which would you like?"
}
