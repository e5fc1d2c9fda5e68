package safety

import (
	"regexp"
	"strings"
)

// ReplyGuardResult contains the result of scanning a proposed outbound reply.
type ReplyGuardResult struct {
	// Blocked is true when the proposed reply must not be spoken as-is.
	Blocked bool
	// Reasons lists the detection signals that fired.
	Reasons []string
	// Text is the reply to actually speak: the original when clean, a
	// replacement when blocked.
	Text string
}

// rebookPromptRE matches re-booking/re-confirmation prompts that must be
// suppressed once a booking is complete.
var rebookPromptRE = regexp.MustCompile(`(?i)(would you like to (book|schedule)|shall i (book|confirm)|can i (book|get you booked)|ready to (book|confirm)|want me to (book|schedule))`)

// successClaimRE matches phrasing that asserts a booking happened.
var successClaimRE = regexp.MustCompile(`(?i)(you'?re (all )?(booked|set|confirmed)|appointment (is )?(booked|confirmed|scheduled)|i'?ve booked|booking (is )?confirmed|successfully booked|see you (then|at))`)

// faqAnswerRE loosely identifies informational replies that remain allowed
// under a terminal lock.
var faqAnswerRE = regexp.MustCompile(`(?i)(we'?re open|our hours|located at|address is|parking|bring your|cost[s]? |insurance|cancellation policy)`)

// GuardReply applies the terminal-lock and verification-gate rules to a
// proposed reply before it reaches the caller.
//
// terminalLocked: a completed booking suppresses any further booking or
// confirmation prompts while FAQ-style answers pass through untouched.
//
// confirmedBooking: unless the scheduling backend actually returned an
// appointment id this turn, a model-proposed success claim is rewritten. The
// model asserting success is never evidence that anything was booked.
func GuardReply(proposed string, terminalLocked, confirmedBooking bool) ReplyGuardResult {
	trimmed := strings.TrimSpace(proposed)
	if trimmed == "" {
		return ReplyGuardResult{Text: proposed}
	}

	var reasons []string

	if !confirmedBooking && successClaimRE.MatchString(trimmed) {
		reasons = append(reasons, "guard:unverified_success_claim")
		return ReplyGuardResult{
			Blocked: true,
			Reasons: reasons,
			Text: "I wasn't able to finish that booking just now, I'm sorry. " +
				"Our reception team will confirm your appointment by text shortly.",
		}
	}

	if terminalLocked && rebookPromptRE.MatchString(trimmed) && !faqAnswerRE.MatchString(trimmed) {
		reasons = append(reasons, "guard:terminal_rebook_prompt")
		return ReplyGuardResult{
			Blocked: true,
			Reasons: reasons,
			Text:    "You're all set. Is there anything else I can help you with?",
		}
	}

	return ReplyGuardResult{Text: proposed}
}
