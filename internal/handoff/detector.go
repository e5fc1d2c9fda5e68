package handoff

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("clinicvoice/handoff-detector")

// Trigger identifies why a call is being escalated to a human.
type Trigger string

const (
	TriggerNone          Trigger = ""
	TriggerExplicit      Trigger = "explicit_request"
	TriggerProfanity     Trigger = "profanity"
	TriggerBackendError  Trigger = "backend_error"
	TriggerOutOfScope    Trigger = "out_of_scope"
	TriggerLowConfidence Trigger = "low_confidence"
	TriggerNoMatchLoop   Trigger = "no_match_loop"
	TriggerGreetingLoop  Trigger = "greeting_loop"
)

// Result is the detector's verdict for one turn.
type Result struct {
	Transfer   bool
	Trigger    Trigger
	Confidence float64
}

// Signals are the per-turn inputs the detector evaluates. Identity mismatch
// is deliberately absent: a caller who is not who the records suggest goes to
// recovery and disambiguation, never straight to a human.
type Signals struct {
	Utterance    string
	Intent       string
	Confidence   float64
	BackendError bool
}

var explicitRE = regexp.MustCompile(`(?i)\b((talk|speak)\s+(to|with)\s+(a\s+)?(human|person|receptionist|operator|someone)|transfer me|real person|actual person)\b`)
var profanityRE = regexp.MustCompile(`(?i)\b(fuck|shit|bitch|asshole|bastard|cunt|dickhead)\w*`)

const (
	lowConfidenceFloor = 0.5
	noMatchLoopMin     = 2
	greetingLoopMin    = 3
)

// Detector watches utterances and session counters for escalation triggers.
type Detector struct {
	logger *logging.Logger
}

// NewDetector creates a handoff detector.
func NewDetector(logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{logger: logger}
}

// Evaluate checks triggers in priority order; the first match wins.
func (d *Detector) Evaluate(ctx context.Context, sess *session.Session, sig Signals) Result {
	_, span := tracer.Start(ctx, "handoff.evaluate")
	defer span.End()

	res := d.evaluate(sess, sig)
	if res.Transfer {
		span.SetAttributes(attribute.String("handoff.trigger", string(res.Trigger)))
		d.logger.Info("handoff triggered",
			"call_id", sess.CallID,
			"trigger", string(res.Trigger),
		)
	}
	return res
}

func (d *Detector) evaluate(sess *session.Session, sig Signals) Result {
	if explicitRE.MatchString(sig.Utterance) || sig.Intent == "human_request" {
		return Result{Transfer: true, Trigger: TriggerExplicit, Confidence: 0.95}
	}
	if profanityRE.MatchString(sig.Utterance) {
		return Result{Transfer: true, Trigger: TriggerProfanity, Confidence: 0.9}
	}
	if sig.BackendError {
		return Result{Transfer: true, Trigger: TriggerBackendError, Confidence: 0.85}
	}
	if sig.Intent == "out_of_scope" {
		return Result{Transfer: true, Trigger: TriggerOutOfScope, Confidence: 0.8}
	}
	if sig.Confidence > 0 && sig.Confidence < lowConfidenceFloor {
		return Result{Transfer: true, Trigger: TriggerLowConfidence, Confidence: 0.7}
	}
	if sess.NoMatchCount >= noMatchLoopMin {
		return Result{Transfer: true, Trigger: TriggerNoMatchLoop, Confidence: 0.7}
	}
	if sess.GreetCount >= greetingLoopMin {
		return Result{Transfer: true, Trigger: TriggerGreetingLoop, Confidence: 0.6}
	}
	return Result{}
}
