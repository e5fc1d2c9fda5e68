// Package turn runs the per-turn pipeline for a voice call: hydrate session,
// gate, extract, classify, route by stage, book, guard the reply, persist.
package turn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-voice-agent/internal/booking"
	"github.com/wolfman30/clinic-voice-agent/internal/disambig"
	"github.com/wolfman30/clinic-voice-agent/internal/extract"
	"github.com/wolfman30/clinic-voice-agent/internal/handoff"
	"github.com/wolfman30/clinic-voice-agent/internal/intent"
	"github.com/wolfman30/clinic-voice-agent/internal/notify"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/internal/safety"
	"github.com/wolfman30/clinic-voice-agent/internal/scheduling"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/internal/transcript"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("clinicvoice/turn-orchestrator")

// Action tells the telephony layer what to do with the reply.
type Action string

const (
	// ActionSpeak plays the reply and keeps listening.
	ActionSpeak Action = "speak"
	// ActionWait plays nothing and keeps listening.
	ActionWait Action = "wait"
	// ActionTransfer plays the reply, then bridges to a human.
	ActionTransfer Action = "transfer"
	// ActionHangup plays the reply, then ends the call.
	ActionHangup Action = "hangup"
)

// Input is one speech (or DTMF) event from the telephony provider.
type Input struct {
	CallID      string
	CallerPhone string
	Utterance   string
	Digits      string
}

// Output is the agent's response to one turn.
type Output struct {
	Reply        string
	Action       Action
	Stage        session.Stage
	GuardReasons []string
}

// Recorder appends turns to the audit trail. Recording is best-effort and
// never blocks the caller-facing reply.
type Recorder interface {
	RecordTurn(ctx context.Context, rec transcript.TurnRecord) error
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Store       session.Store
	Backend     scheduling.Backend
	Classifier  *intent.Classifier
	Coordinator *booking.Coordinator
	Notifier    *notify.Service
	Recorder    Recorder
	Metrics     *metrics.TurnMetrics
	Logger      *logging.Logger
}

// Options tune pipeline behavior.
type Options struct {
	// GraceWindow coalesces back-to-back empty speech events; within the
	// window an empty result is ignored instead of prompting the caller.
	GraceWindow   time.Duration
	MaxAsks       int
	HistoryWindow int
	SlotLimit     int
	// FAQAnswers overrides the canned informational answers per intent.
	FAQAnswers map[intent.Intent]string
}

// Orchestrator drives one call turn end to end.
type Orchestrator struct {
	store       session.Store
	backend     scheduling.Backend
	gate        *safety.Gate
	classifier  *intent.Classifier
	resolver    *disambig.Engine
	coordinator *booking.Coordinator
	detector    *handoff.Detector
	notifier    *notify.Service
	recorder    Recorder
	metrics     *metrics.TurnMetrics
	logger      *logging.Logger

	graceWindow   time.Duration
	historyWindow int
	slotLimit     int
	faqAnswers    map[intent.Intent]string
	now           func() time.Time
}

// NewOrchestrator wires the turn pipeline.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 1200 * time.Millisecond
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 20
	}
	if opts.SlotLimit <= 0 {
		opts.SlotLimit = 3
	}
	answers := make(map[intent.Intent]string, len(defaultFAQAnswers))
	for k, v := range defaultFAQAnswers {
		answers[k] = v
	}
	for k, v := range opts.FAQAnswers {
		answers[k] = v
	}
	return &Orchestrator{
		store:         deps.Store,
		backend:       deps.Backend,
		gate:          safety.NewGate(logger),
		classifier:    deps.Classifier,
		resolver:      disambig.NewEngine(opts.MaxAsks),
		coordinator:   deps.Coordinator,
		detector:      handoff.NewDetector(logger),
		notifier:      deps.Notifier,
		recorder:      deps.Recorder,
		metrics:       deps.Metrics,
		logger:        logger,
		graceWindow:   opts.GraceWindow,
		historyWindow: opts.HistoryWindow,
		slotLimit:     opts.SlotLimit,
		faqAnswers:    answers,
		now:           time.Now,
	}
}

// Process handles one turn. Session state is loaded fresh, mutated by the
// pipeline, and saved with the merge discipline so background completions
// survive this write.
func (o *Orchestrator) Process(ctx context.Context, in Input) (Output, error) {
	ctx, span := tracer.Start(ctx, "turn.process")
	defer span.End()
	span.SetAttributes(attribute.String("call.id", in.CallID))

	start := o.now()
	log := o.logger.WithCall(in.CallID)

	sess, err := o.store.Load(ctx, in.CallID)
	if err != nil {
		return Output{}, fmt.Errorf("turn: load session: %w", err)
	}
	created := sess == nil
	if created {
		sess = session.New(in.CallID, in.CallerPhone)
	}
	seq := len(sess.History)

	out := o.run(ctx, sess, in, created)

	guarded := safety.GuardReply(out.Reply, sess.TerminalLock, sess.AppointmentCreated)
	if guarded.Blocked {
		for _, reason := range guarded.Reasons {
			o.metrics.ObserveGuard(reason)
		}
		log.Warn("reply rewritten by guard",
			"reasons", strings.Join(guarded.Reasons, ","),
		)
	}
	out.Reply = guarded.Text
	out.GuardReasons = guarded.Reasons
	out.Stage = sess.Stage

	if out.Reply != "" {
		sess.AppendTurn("assistant", out.Reply)
	}

	if err := o.store.Save(ctx, sess); err != nil {
		return Output{}, fmt.Errorf("turn: save session: %w", err)
	}

	elapsed := o.now().Sub(start)
	o.metrics.ObserveTurn(string(sess.Stage), string(out.Action), elapsed.Seconds())

	if o.recorder != nil {
		rec := transcript.TurnRecord{
			CallID:        sess.CallID,
			TenantID:      sess.TenantID,
			Sequence:      seq,
			Utterance:     in.Utterance,
			Reply:         out.Reply,
			Intent:        sess.Intent,
			Stage:         string(sess.Stage),
			Action:        string(out.Action),
			GuardReasons:  out.GuardReasons,
			LatencyMillis: elapsed.Milliseconds(),
		}
		if err := o.recorder.RecordTurn(ctx, rec); err != nil {
			log.Error("transcript record failed", "error", err)
		}
	}

	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, in Input, created bool) Output {
	utterance := strings.TrimSpace(in.Utterance)

	if sess.Ended {
		// Best effort: the call is over, repeated events get a quiet hangup.
		return Output{Action: ActionHangup}
	}

	if utterance == "" && in.Digits == "" {
		return o.handleSilence(sess, created)
	}
	sess.EmptyCount = 0
	sess.LastEmptyAt = time.Time{}

	if utterance != "" {
		sess.AppendTurn("user", utterance)
	}

	if extract.IsGoodbye(utterance) {
		sess.End("caller_goodbye")
		return Output{Reply: replyGoodbye, Action: ActionHangup}
	}

	if g := o.gate.Check(sess.CallID, utterance); g.Overridden {
		sess.Intent = g.ForcedIntent
		if g.Category == safety.TriggerEmergency {
			sess.End("emergency")
			return Output{Reply: g.ForcedReply, Action: ActionHangup}
		}
		if g.ShouldTransfer {
			o.metrics.ObserveHandoff(string(g.Category))
			sess.End("handoff:" + string(g.Category))
			o.sendHandoffFollowup(ctx, sess)
			return Output{Reply: g.ForcedReply, Action: ActionTransfer}
		}
		return Output{Reply: g.ForcedReply, Action: ActionSpeak}
	}

	o.extractFields(sess, utterance)

	classifyStart := o.now()
	res := o.classifier.Classify(ctx, utterance, sess.RecentHistory(o.historyWindow))
	o.metrics.ObserveLLMLatency(o.classifier.Model(), o.now().Sub(classifyStart).Seconds())
	cur := intent.Apply(sess, res)
	o.metrics.ObserveIntent(string(res.Intent), res.Source)

	if sess.Collected.Name == "" && extract.IsValidName(res.Entities.Name) {
		sess.Collected.Name = res.Entities.Name
	}

	if cur == intent.IntentGreeting && sess.Stage == session.StageGreeting {
		sess.GreetCount++
	}

	// A recognized intent breaks any no-match streak; only consecutive
	// unmatched turns escalate.
	if cur != intent.IntentOther && cur != intent.IntentClarification {
		sess.NoMatchCount = 0
	}

	// Low classifier confidence only escalates once a clarification attempt
	// has already failed; the first unclear turn gets a re-ask instead. A
	// turn answering an open free-form question is exempt outright: names
	// and times are not supposed to classify as anything.
	awaitingFreeForm := sess.AwaitingResponse == awaitName ||
		sess.AwaitingResponse == awaitTargetName ||
		sess.AwaitingResponse == awaitTime
	sigConfidence := 0.0
	if !awaitingFreeForm && (cur == intent.IntentOther || cur == intent.IntentClarification) && sess.NoMatchCount >= 1 {
		sigConfidence = res.Confidence
	}
	h := o.detector.Evaluate(ctx, sess, handoff.Signals{
		Utterance:  utterance,
		Intent:     string(cur),
		Confidence: sigConfidence,
	})
	if h.Transfer {
		o.metrics.ObserveHandoff(string(h.Trigger))
		sess.End("handoff:" + string(h.Trigger))
		o.sendHandoffFollowup(ctx, sess)
		return Output{Reply: replyTransfer, Action: ActionTransfer}
	}

	// "book my appointment" phrasing overlaps with "book my son"; only a
	// relation, a name, or explicit someone-else wording opens another target.
	if sec := extract.DetectSecondaryBooking(utterance); sec.Scope == extract.ScopeGroup ||
		(sec.Scope == extract.ScopeSecondary &&
			(sec.Relation != "" || sec.Name != "" || strings.Contains(strings.ToLower(utterance), "someone else"))) {
		return o.handleAdditionalBooking(ctx, sess, sec)
	}

	if cur.FAQ() {
		return o.answerFAQ(sess, cur)
	}

	return o.routeStage(ctx, sess, utterance, in.Digits, res)
}

// handleSilence applies the empty-speech policy. The very first event of a
// call greets; otherwise one quiet beat, one re-prompt, then hang up.
func (o *Orchestrator) handleSilence(sess *session.Session, created bool) Output {
	if created || (sess.Stage == session.StageGreeting && len(sess.History) == 0) {
		sess.GreetCount++
		return Output{Reply: replyGreeting, Action: ActionSpeak}
	}
	if !sess.Stage.Interactive() {
		return Output{Action: ActionWait}
	}

	now := o.now()
	withinGrace := !sess.LastEmptyAt.IsZero() && now.Sub(sess.LastEmptyAt) <= o.graceWindow
	sess.LastEmptyAt = now
	if withinGrace {
		// Duplicate empty event from the speech layer, not caller silence.
		return Output{Action: ActionWait}
	}

	sess.EmptyCount++
	switch {
	case sess.EmptyCount == 1:
		return Output{Action: ActionWait}
	case sess.EmptyCount >= 3:
		sess.End("silence")
		return Output{Reply: replySilenceHangup, Action: ActionHangup}
	default:
		return Output{Reply: replyDidNotCatch, Action: ActionSpeak}
	}
}

// extractFields opportunistically pulls structured values out of free speech.
// A previously captured time preference is only replaced while we are
// actively asking for one.
func (o *Orchestrator) extractFields(sess *session.Session, utterance string) {
	if tp := extract.ExtractTimePreference(utterance); tp != "" {
		if sess.Collected.PreferredTime == "" || sess.Stage == session.StageCollectTime {
			sess.Collected.PreferredTime = tp
		}
	}
	if sess.Collected.Email == "" {
		if email := extract.ExtractEmail(utterance); email != "" {
			sess.Collected.Email = email
		}
	}
	if sess.Collected.Phone == "" {
		if digits := extract.ExtractPhoneDigits(utterance); digits != "" {
			sess.Collected.Phone = digits
		}
	}
	if spelled := extract.ExtractSpelledName(utterance); spelled != "" {
		sess.Collected.Name = spelled
	}
}

// answerFAQ answers an informational question in any stage, including after
// a completed booking. Mid-booking, the pending question is re-asked so the
// flow resumes where it left off.
func (o *Orchestrator) answerFAQ(sess *session.Session, faq intent.Intent) Output {
	answer, ok := o.faqAnswers[faq]
	if !ok {
		answer = o.faqAnswers[intent.IntentFAQGeneral]
	}
	switch sess.Stage {
	case session.StageOfferSlots:
		if len(sess.Slots) > 0 {
			answer += " Now, about that appointment: " + slotOffer(sess.Slots)
		}
	case session.StageConfirm:
		if sess.SelectedSlotIndex >= 0 && sess.SelectedSlotIndex < len(sess.Slots) {
			answer += " " + confirmQuestion(sess, sess.Slots[sess.SelectedSlotIndex])
		}
	}
	return Output{Reply: answer, Action: ActionSpeak}
}
