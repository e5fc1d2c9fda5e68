package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/booking"
	"github.com/wolfman30/clinic-voice-agent/internal/disambig"
	"github.com/wolfman30/clinic-voice-agent/internal/extract"
	"github.com/wolfman30/clinic-voice-agent/internal/handoff"
	"github.com/wolfman30/clinic-voice-agent/internal/intent"
	"github.com/wolfman30/clinic-voice-agent/internal/notify"
	"github.com/wolfman30/clinic-voice-agent/internal/scheduling"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
)

// AwaitingResponse keys: what the last question asked for.
const (
	awaitName           = "caller_name"
	awaitTargetName     = "target_name"
	awaitIdentityCheck  = "identity_confirm"
	awaitTime           = "time_preference"
	awaitBookingConfirm = "booking_confirm"
)

const (
	replyGreeting = "Thanks for calling the clinic, this is the scheduling assistant. " +
		"How can I help you today?"
	replyGoodbye       = "Thanks for calling. Have a great day!"
	replyTransfer      = "Let me connect you with our reception team. One moment please."
	replySilenceHangup = "I haven't heard anything for a while, so I'll let you go. " +
		"Feel free to call back any time."
	replyDidNotCatch = "Sorry, I didn't catch that. Could you say it again?"
	replyAskName     = "Can I get your first and last name, please?"
	replyAskTime     = "What day and time work best for you?"
	replyNoOpenings  = "I'm sorry, I don't see any openings around then. " +
		"Is there another day or time that could work?"
	replyBackendTrouble = "I'm having trouble reaching our scheduling system. " +
		"Let me put you through to reception."
	replyBookingInFlight = "One moment, I'm just finishing that up for you."
	replyRecovery        = "Our reception team will follow up by text to finish that booking. " +
		"Is there anything else I can help with?"
	replyAnythingElse = "Is there anything else I can help you with?"
	replyHowToHelp    = "Hi there! Are you calling to set up an appointment, " +
		"or is there something else I can help with?"
)

var defaultFAQAnswers = map[intent.Intent]string{
	intent.IntentFAQHours: "We're open weekdays from eight a.m. to five p.m., " +
		"and Saturday mornings from nine to noon.",
	intent.IntentFAQLocation: "We're at twelve hundred Oakwood Avenue, just off the main square, " +
		"with free parking behind the building.",
	intent.IntentFAQPricing: "Pricing depends on the visit type, so reception can give you " +
		"an exact quote before your appointment.",
	intent.IntentFAQGeneral: "That's a good question for our reception team, and they can " +
		"follow up with details by text.",
}

func (o *Orchestrator) routeStage(ctx context.Context, sess *session.Session, utterance, digits string, res intent.Result) Output {
	switch sess.Stage {
	case session.StageGreeting:
		return o.stageGreeting(ctx, sess, res)
	case session.StageCollectIdentity:
		return o.stageCollectIdentity(ctx, sess, utterance, res)
	case session.StageCollectTime:
		return o.stageCollectTime(ctx, sess)
	case session.StageOfferSlots:
		return o.stageOfferSlots(sess, utterance, digits)
	case session.StageConfirm:
		return o.stageConfirm(ctx, sess, utterance, digits)
	case session.StageBookingInProgress, session.StageSendingNotification:
		return o.executeBooking(ctx, sess)
	case session.StageFAQ, session.StageTerminal:
		return o.stageTerminal(sess, res)
	case session.StageErrorRecovery:
		return o.stageRecovery(ctx, sess, utterance)
	default:
		return Output{Reply: replyDidNotCatch, Action: ActionSpeak}
	}
}

func (o *Orchestrator) stageGreeting(ctx context.Context, sess *session.Session, res intent.Result) Output {
	switch {
	case res.Intent == intent.IntentBooking:
		return o.beginIdentity(ctx, sess)
	case res.Intent == intent.IntentReschedule || res.Intent == intent.IntentCancel:
		// Changing an existing appointment touches records this line can't
		// safely modify; reception owns those.
		o.metrics.ObserveHandoff(string(handoff.TriggerOutOfScope))
		sess.End("handoff:reschedule")
		o.sendHandoffFollowup(ctx, sess)
		return Output{Reply: replyTransfer, Action: ActionTransfer}
	case res.Intent == intent.IntentGreeting:
		return Output{Reply: replyHowToHelp, Action: ActionSpeak}
	default:
		sess.NoMatchCount++
		return Output{Reply: replyHowToHelp, Action: ActionSpeak}
	}
}

// beginIdentity looks up who the caller might be and routes into either a
// confirmation question, a disambiguation question, or new-patient intake.
func (o *Orchestrator) beginIdentity(ctx context.Context, sess *session.Session) Output {
	sess.Stage = session.StageCollectIdentity

	if len(sess.CandidatePatients) == 0 && sess.SelectedPatientID == "" && sess.CallerPhone != "" {
		patients, err := o.backend.FindCandidates(ctx, sess.CallerPhone)
		if err != nil {
			// A failed lookup is not fatal; the caller is simply treated as
			// new and asked for their name.
			o.logger.Error("patient lookup failed", "call_id", sess.CallID, "error", err)
			sess.ErrorCount++
		}
		for _, p := range patients {
			sess.CandidatePatients = append(sess.CandidatePatients, session.PatientCandidate{
				ID:        p.ID,
				FirstName: p.FirstName,
				LastName:  p.LastName,
			})
		}
	}

	switch len(sess.CandidatePatients) {
	case 0:
		if extract.IsValidName(sess.Collected.Name) {
			sess.Collected.PatientType = "new"
			return o.beginTimeCollection(ctx, sess)
		}
		sess.AwaitingResponse = awaitName
		return Output{Reply: replyAskName, Action: ActionSpeak}
	case 1:
		c := sess.CandidatePatients[0]
		sess.TentativePatientID = c.ID
		sess.AwaitingResponse = awaitIdentityCheck
		return Output{
			Reply:  fmt.Sprintf("Am I speaking with %s?", candidateName(c)),
			Action: ActionSpeak,
		}
	default:
		if !sess.CanAsk(disambig.QuestionPatientIdentity, o.resolver.MaxAsks()) {
			sess.Collected.PatientType = "new"
			sess.AwaitingResponse = awaitName
			return Output{Reply: replyAskName, Action: ActionSpeak}
		}
		sess.RecordAsk(disambig.QuestionPatientIdentity)
		return Output{Reply: candidateQuestion(sess.CandidatePatients), Action: ActionSpeak}
	}
}

func (o *Orchestrator) stageCollectIdentity(ctx context.Context, sess *session.Session, utterance string, res intent.Result) Output {
	if disambig.IsIdentityCorrection(utterance) && !sess.AppointmentCreated {
		sess.ClearIdentity()
		sess.AwaitingResponse = awaitName
		return Output{
			Reply:  "No problem. Who is the appointment for? I'll need their first and last name.",
			Action: ActionSpeak,
		}
	}

	switch sess.AwaitingResponse {
	case awaitIdentityCheck:
		switch extract.ClassifyYesNo(utterance) {
		case extract.AnswerYes:
			sess.AwaitingResponse = ""
			if sess.TentativePatientID != "" {
				if err := sess.ConfirmPatient(sess.TentativePatientID); err != nil {
					o.logger.Warn("identity confirm rejected", "call_id", sess.CallID, "error", err)
				}
			}
			return o.beginTimeCollection(ctx, sess)
		case extract.AnswerNo:
			sess.ClearIdentity()
			sess.Collected.PatientType = "new"
			sess.AwaitingResponse = awaitName
			return Output{
				Reply:  "No worries. " + replyAskName,
				Action: ActionSpeak,
			}
		}
		// Unclear answer: fall through to the resolver, the caller may have
		// answered with a name instead of yes or no.

	case awaitName:
		if name := spokenName(res, utterance); name != "" {
			sess.Collected.Name = name
		}
		if extract.IsValidName(sess.Collected.Name) {
			sess.AwaitingResponse = ""
			return o.beginTimeCollection(ctx, sess)
		}
		sess.NoMatchCount++
		return Output{
			Reply:  "Sorry, I need a first and last name for the appointment. " + replyAskName,
			Action: ActionSpeak,
		}

	case awaitTargetName:
		name := spokenName(res, utterance)
		if name == "" {
			sess.NoMatchCount++
			return Output{
				Reply:  "Sorry, I'll need their actual first and last name to book them in.",
				Action: ActionSpeak,
			}
		}
		if sess.ActiveTarget >= 0 && sess.ActiveTarget < len(sess.Targets) {
			sess.Targets[sess.ActiveTarget].Name = name
		}
		sess.AwaitingResponse = ""
		return o.beginTimeCollection(ctx, sess)
	}

	outcome := o.resolver.ResolvePatient(sess, utterance)
	switch outcome.Status {
	case disambig.StatusResolved:
		if err := sess.ConfirmPatient(outcome.PatientID); err != nil {
			o.logger.Warn("identity confirm rejected", "call_id", sess.CallID, "error", err)
		}
		sess.AwaitingResponse = ""
		return o.beginTimeCollection(ctx, sess)
	case disambig.StatusAsk:
		return Output{Reply: outcome.Question, Action: ActionSpeak}
	default:
		// New patient, or the ask cap ran out: stop guessing identities.
		sess.Collected.PatientType = "new"
		if extract.IsValidName(sess.Collected.Name) {
			sess.AwaitingResponse = ""
			return o.beginTimeCollection(ctx, sess)
		}
		sess.AwaitingResponse = awaitName
		return Output{Reply: replyAskName, Action: ActionSpeak}
	}
}

// beginTimeCollection moves the flow forward once identity is settled. Group
// calls collect every participant's name before talking about times.
func (o *Orchestrator) beginTimeCollection(ctx context.Context, sess *session.Session) Output {
	// Reaching here means the last answer landed; the no-match streak is over.
	sess.NoMatchCount = 0
	if idx := nextUnnamedTarget(sess); idx >= 0 {
		sess.ActiveTarget = idx
		sess.Stage = session.StageCollectIdentity
		sess.AwaitingResponse = awaitTargetName
		return Output{Reply: targetNameQuestion(sess, idx), Action: ActionSpeak}
	}
	// Once every target has a name, slot choice and confirmation must apply
	// to the appointment still being set up, not to one already booked.
	if idx := nextPendingTarget(sess); idx >= 0 {
		sess.ActiveTarget = idx
	}

	sess.Stage = session.StageCollectTime
	if sess.Collected.PreferredTime == "" {
		sess.AwaitingResponse = awaitTime
		return Output{Reply: replyAskTime, Action: ActionSpeak}
	}
	sess.AwaitingResponse = ""
	return o.offerSlots(ctx, sess)
}

func (o *Orchestrator) stageCollectTime(ctx context.Context, sess *session.Session) Output {
	// extractFields already captured any spoken preference for this stage.
	if sess.Collected.PreferredTime == "" {
		sess.NoMatchCount++
		return Output{
			Reply:  "Sorry, I didn't get a day or time from that. " + replyAskTime,
			Action: ActionSpeak,
		}
	}
	sess.NoMatchCount = 0
	sess.AwaitingResponse = ""
	return o.offerSlots(ctx, sess)
}

func (o *Orchestrator) offerSlots(ctx context.Context, sess *session.Session) Output {
	if len(sess.Slots) == 0 {
		now := o.now()
		slots, err := o.backend.SearchSlots(ctx, scheduling.SlotQuery{
			From:       now,
			To:         now.AddDate(0, 0, 14),
			Preference: sess.Collected.PreferredTime,
			Limit:      o.slotLimit,
		})
		if err != nil {
			o.logger.Error("slot search failed", "call_id", sess.CallID, "error", err)
			o.metrics.ObserveHandoff(string(handoff.TriggerBackendError))
			sess.End("handoff:backend_error")
			o.sendHandoffFollowup(ctx, sess)
			return Output{Reply: replyBackendTrouble, Action: ActionTransfer}
		}
		if len(slots) == 0 {
			sess.Collected.PreferredTime = ""
			sess.Stage = session.StageCollectTime
			sess.AwaitingResponse = awaitTime
			return Output{Reply: replyNoOpenings, Action: ActionSpeak}
		}
		for _, s := range slots {
			sess.Slots = append(sess.Slots, session.Slot{
				StartsAt:       s.StartsAt,
				PractitionerID: s.PractitionerID,
				Speakable:      speakableSlot(s),
			})
		}
	}
	sess.Stage = session.StageOfferSlots
	return Output{Reply: slotOffer(sess.Slots), Action: ActionSpeak}
}

func (o *Orchestrator) stageOfferSlots(sess *session.Session, utterance, digits string) Output {
	outcome := o.resolver.ResolveSlot(sess, utterance, digits)
	switch {
	case outcome.SlotIndex >= 0:
		sess.NoMatchCount = 0
		sess.SelectedSlotIndex = outcome.SlotIndex
		if t := activeTarget(sess); t != nil {
			t.SlotIndex = outcome.SlotIndex
		}
		sess.Stage = session.StageConfirm
		sess.AwaitingResponse = awaitBookingConfirm
		return Output{
			Reply:  confirmQuestion(sess, sess.Slots[outcome.SlotIndex]),
			Action: ActionSpeak,
		}
	case outcome.Status == disambig.StatusAsk:
		return Output{Reply: outcome.Question, Action: ActionSpeak}
	default:
		sess.NoMatchCount++
		return Output{Reply: slotOffer(sess.Slots), Action: ActionSpeak}
	}
}

func (o *Orchestrator) stageConfirm(ctx context.Context, sess *session.Session, utterance, digits string) Output {
	switch extract.ClassifyYesNo(utterance) {
	case extract.AnswerYes:
		sess.NoMatchCount = 0
		if t := activeTarget(sess); t != nil {
			t.Confirmed = true
		}
		return o.executeBooking(ctx, sess)
	case extract.AnswerNo:
		sess.NoMatchCount = 0
		sess.SelectedSlotIndex = -1
		if t := activeTarget(sess); t != nil {
			t.SlotIndex = -1
			t.Confirmed = false
		}
		sess.Stage = session.StageOfferSlots
		sess.AwaitingResponse = ""
		return Output{Reply: "No problem. " + slotOffer(sess.Slots), Action: ActionSpeak}
	}

	// Not a yes or a no; maybe the caller named a different option outright.
	if idx := extract.SelectSlotIndex(utterance, digits, len(sess.Slots)); idx >= 0 {
		sess.NoMatchCount = 0
		sess.SelectedSlotIndex = idx
		if t := activeTarget(sess); t != nil {
			t.SlotIndex = idx
		}
		return Output{Reply: confirmQuestion(sess, sess.Slots[idx]), Action: ActionSpeak}
	}
	sess.NoMatchCount++
	if sess.SelectedSlotIndex >= 0 && sess.SelectedSlotIndex < len(sess.Slots) {
		return Output{Reply: confirmQuestion(sess, sess.Slots[sess.SelectedSlotIndex]), Action: ActionSpeak}
	}
	return Output{Reply: slotOffer(sess.Slots), Action: ActionSpeak}
}

func (o *Orchestrator) executeBooking(ctx context.Context, sess *session.Session) Output {
	sess.Stage = session.StageBookingInProgress
	mode := sess.Mode
	if mode == "" {
		mode = session.ModePrimary
	}

	var res booking.Result
	if mode == session.ModePrimary {
		res = o.coordinator.Execute(ctx, sess)
	} else {
		syncTargets(sess)
		res = o.coordinator.ExecuteGroup(ctx, sess)
	}
	o.metrics.ObserveBooking(strings.ToLower(string(res.State)), string(mode))

	switch res.State {
	case booking.StateConfirmed:
		sess.Stage = session.StageSendingNotification
		o.sendConfirmations(ctx, sess)
		sess.Stage = session.StageTerminal
		sess.AwaitingResponse = ""
		return Output{Reply: successReply(sess), Action: ActionSpeak}
	case booking.StateLocked:
		return Output{Reply: replyBookingInFlight, Action: ActionSpeak}
	case booking.StateFailed:
		sess.ErrorCount++
		sess.Stage = session.StageErrorRecovery
		sess.AwaitingResponse = ""
		return Output{Reply: res.ForcedReply, Action: ActionSpeak}
	default:
		// Something is still missing; go collect it.
		return o.resumeCollection(ctx, sess)
	}
}

// resumeCollection re-enters the earliest incomplete step of the flow.
func (o *Orchestrator) resumeCollection(ctx context.Context, sess *session.Session) Output {
	if idx := nextUnnamedTarget(sess); idx >= 0 {
		sess.ActiveTarget = idx
		sess.Stage = session.StageCollectIdentity
		sess.AwaitingResponse = awaitTargetName
		return Output{Reply: targetNameQuestion(sess, idx), Action: ActionSpeak}
	}
	if idx := nextPendingTarget(sess); idx >= 0 {
		sess.ActiveTarget = idx
	}
	if len(sess.Targets) == 0 && sess.SelectedPatientID == "" && !extract.IsValidName(sess.Collected.Name) {
		sess.Stage = session.StageCollectIdentity
		sess.AwaitingResponse = awaitName
		return Output{Reply: replyAskName, Action: ActionSpeak}
	}
	if sess.SelectedSlotIndex < 0 {
		return o.beginTimeCollection(ctx, sess)
	}
	sess.Stage = session.StageConfirm
	sess.AwaitingResponse = awaitBookingConfirm
	return Output{Reply: confirmQuestion(sess, sess.Slots[sess.SelectedSlotIndex]), Action: ActionSpeak}
}

func (o *Orchestrator) stageTerminal(sess *session.Session, res intent.Result) Output {
	if res.Intent == intent.IntentNegation {
		sess.End("caller_done")
		return Output{Reply: replyGoodbye, Action: ActionHangup}
	}
	return Output{Reply: replyAnythingElse, Action: ActionSpeak}
}

func (o *Orchestrator) stageRecovery(ctx context.Context, sess *session.Session, utterance string) Output {
	if strings.Contains(strings.ToLower(utterance), "try again") {
		return o.executeBooking(ctx, sess)
	}
	if extract.ClassifyYesNo(utterance) == extract.AnswerNo {
		o.metrics.ObserveHandoff(string(handoff.TriggerBackendError))
		sess.End("handoff:booking_failed")
		o.sendHandoffFollowup(ctx, sess)
		return Output{Reply: replyTransfer, Action: ActionTransfer}
	}
	return Output{Reply: replyRecovery, Action: ActionSpeak}
}

// handleAdditionalBooking starts a booking for somebody beyond the caller,
// either as a simultaneous group or a sequential follow-on.
func (o *Orchestrator) handleAdditionalBooking(ctx context.Context, sess *session.Session, sec extract.SecondaryResult) Output {
	priorSlot := sess.SelectedSlotIndex

	if sec.Scope == extract.ScopeGroup {
		sess.Mode = session.ModeGroup
	} else {
		sess.Mode = session.ModeSecondary
		// A caller-initiated follow-on booking reopens the call; the lock
		// only suppresses agent-initiated rebooking prompts.
		sess.TerminalLock = false
	}
	// A substitute request on a fresh call books only the other person. The
	// caller becomes a target of their own only in a group, or once their
	// own booking has progressed.
	if sess.Mode == session.ModeGroup || sess.AppointmentCreated ||
		sess.SelectedPatientID != "" || extract.IsValidName(sess.Collected.Name) {
		ensurePrimaryTarget(sess)
	}

	t := session.BookingTarget{Name: sec.Name, Relation: sec.Relation, SlotIndex: -1}
	if sec.SameTime && priorSlot >= 0 {
		t.SlotIndex = priorSlot
	}
	idx := sess.AddTarget(t)
	sess.ActiveTarget = idx

	if sec.SameTime {
		if priorSlot >= 0 {
			sess.SelectedSlotIndex = priorSlot
		}
	} else if sess.Mode == session.ModeSecondary {
		// A follow-on booking starts with a clean scheduling slate.
		sess.Collected.PreferredTime = ""
		sess.Slots = nil
		sess.SelectedSlotIndex = -1
	}

	if sec.Name == "" {
		sess.Stage = session.StageCollectIdentity
		sess.AwaitingResponse = awaitTargetName
		return Output{Reply: targetNameQuestion(sess, idx), Action: ActionSpeak}
	}
	if sec.SameTime && priorSlot >= 0 && priorSlot < len(sess.Slots) {
		sess.Stage = session.StageConfirm
		sess.AwaitingResponse = awaitBookingConfirm
		return Output{Reply: confirmQuestion(sess, sess.Slots[priorSlot]), Action: ActionSpeak}
	}
	return o.beginTimeCollection(ctx, sess)
}

// sendHandoffFollowup texts the caller after a transfer so the request is
// not lost if the bridge to reception drops.
func (o *Orchestrator) sendHandoffFollowup(ctx context.Context, sess *session.Session) {
	if o.notifier == nil || sess.CallerPhone == "" {
		return
	}
	if _, err := o.notifier.Send(ctx, sess, notify.Delivery{
		Template: notify.TemplateHandoffFollowup,
		TargetID: sess.CallID,
		To:       sess.CallerPhone,
		Body: "Sorry we couldn't wrap that up over the phone. " +
			"Our reception team will text you shortly to finish your request.",
	}); err != nil {
		o.logger.Error("handoff followup send failed", "call_id", sess.CallID, "error", err)
	}
}

// sendConfirmations texts the caller a confirmation for every booked target,
// plus an intake form link for patients without a record on file.
func (o *Orchestrator) sendConfirmations(ctx context.Context, sess *session.Session) {
	if o.notifier == nil || sess.CallerPhone == "" {
		return
	}

	targets := sess.Targets
	if len(targets) == 0 {
		targets = []session.BookingTarget{{
			Name:          sess.Collected.Name,
			PatientID:     sess.SelectedPatientID,
			SlotIndex:     sess.SelectedSlotIndex,
			AppointmentID: sess.AppointmentID,
		}}
	}

	for _, t := range targets {
		if t.AppointmentID == "" {
			continue
		}
		targetID := t.PatientID
		if targetID == "" {
			targetID = t.Name
		}
		slotText := ""
		if t.SlotIndex >= 0 && t.SlotIndex < len(sess.Slots) {
			slotText = sess.Slots[t.SlotIndex].Speakable
		}

		body := fmt.Sprintf("Appointment confirmed for %s on %s. Reply HELP for assistance.", displayName(t.Name), slotText)
		if _, err := o.notifier.Send(ctx, sess, notify.Delivery{
			Template: notify.TemplateBookingConfirmation,
			TargetID: targetID,
			To:       sess.CallerPhone,
			Body:     body,
		}); err != nil {
			o.logger.Error("confirmation send failed", "call_id", sess.CallID, "error", err)
		}

		if t.PatientID == "" {
			formBody := fmt.Sprintf("Before the visit, please fill in the intake form for %s:", displayName(t.Name))
			if _, err := o.notifier.Send(ctx, sess, notify.Delivery{
				Template:   notify.TemplateIntakeForm,
				TargetID:   targetID,
				To:         sess.CallerPhone,
				Body:       formBody,
				NeedsToken: true,
			}); err != nil {
				o.logger.Error("intake form send failed", "call_id", sess.CallID, "error", err)
			}
		}
	}
}

// syncTargets fills slot choices and group confirmations into the target list
// right before a multi-person execution.
func syncTargets(sess *session.Session) {
	ensurePrimaryTarget(sess)
	for i := range sess.Targets {
		t := &sess.Targets[i]
		if t.SlotIndex < 0 && sess.SelectedSlotIndex >= 0 {
			t.SlotIndex = sess.SelectedSlotIndex
		}
		if sess.Mode == session.ModeGroup {
			// The caller confirms the group as a whole, out loud, once.
			t.Confirmed = true
		}
	}
}

func ensurePrimaryTarget(sess *session.Session) {
	if len(sess.Targets) > 0 {
		return
	}
	primary := session.BookingTarget{
		Name:      sess.Collected.Name,
		PatientID: sess.SelectedPatientID,
		Confirmed: true,
		SlotIndex: sess.SelectedSlotIndex,
	}
	if sess.AppointmentCreated {
		primary.AppointmentID = sess.AppointmentID
	}
	sess.Targets = append(sess.Targets, primary)
	if sess.ActiveTarget < 0 {
		sess.ActiveTarget = 0
	}
}

func activeTarget(sess *session.Session) *session.BookingTarget {
	if sess.ActiveTarget >= 0 && sess.ActiveTarget < len(sess.Targets) {
		return &sess.Targets[sess.ActiveTarget]
	}
	return nil
}

func nextUnnamedTarget(sess *session.Session) int {
	for i, t := range sess.Targets {
		if !extract.IsValidName(t.Name) {
			return i
		}
	}
	return -1
}

// nextPendingTarget is the first target whose appointment is neither booked
// nor fully set up yet.
func nextPendingTarget(sess *session.Session) int {
	for i, t := range sess.Targets {
		if t.AppointmentID == "" && !t.Ready() {
			return i
		}
	}
	return -1
}

// spokenName pulls a usable person name out of a turn: a classified entity
// first, then a short utterance that is itself a plausible name.
func spokenName(res intent.Result, utterance string) string {
	if extract.IsValidName(res.Entities.Name) {
		return res.Entities.Name
	}
	trimmed := strings.TrimSpace(strings.Trim(utterance, ".!? "))
	if trimmed != "" && len(strings.Fields(trimmed)) <= 3 && extract.IsValidName(trimmed) {
		return trimmed
	}
	return ""
}

func candidateName(c session.PatientCandidate) string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func candidateQuestion(candidates []session.PatientCandidate) string {
	var parts []string
	for i, c := range candidates {
		parts = append(parts, fmt.Sprintf("%d for %s", i+1, candidateName(c)))
	}
	return "I found a few people on this number. Say or press " +
		strings.Join(parts, ", ") + ", or say someone new."
}

func targetNameQuestion(sess *session.Session, idx int) string {
	t := sess.Targets[idx]
	if t.Relation != "" {
		return fmt.Sprintf("Of course. What's your %s's full name?", t.Relation)
	}
	if idx == 0 && sess.Mode != session.ModeSecondary {
		// In a group the first target is the caller themselves.
		return replyAskName
	}
	return "Of course. What's their full name?"
}

func speakableSlot(s scheduling.Slot) string {
	text := s.StartsAt.Format("Monday, January 2 at 3:04 PM")
	if s.Practitioner != "" {
		text += " with " + s.Practitioner
	}
	return text
}

func slotOffer(slots []session.Slot) string {
	var parts []string
	for i, s := range slots {
		parts = append(parts, fmt.Sprintf("option %d, %s", i+1, s.Speakable))
	}
	return "I have " + strings.Join(parts, "; ") + ". Which would you like?"
}

func confirmQuestion(sess *session.Session, slot session.Slot) string {
	return fmt.Sprintf("Just to confirm, that's %s on %s. Shall I go ahead and book it?",
		displayName(bookingName(sess)), slot.Speakable)
}

func bookingName(sess *session.Session) string {
	if t := activeTarget(sess); t != nil && extract.IsValidName(t.Name) {
		return t.Name
	}
	return sess.Collected.Name
}

func displayName(name string) string {
	if name == "" {
		return "you"
	}
	return name
}

func successReply(sess *session.Session) string {
	slotText := ""
	if sess.SelectedSlotIndex >= 0 && sess.SelectedSlotIndex < len(sess.Slots) {
		slotText = sess.Slots[sess.SelectedSlotIndex].Speakable
	}
	if sess.Mode == session.ModeGroup && len(sess.Targets) > 1 {
		return fmt.Sprintf("Done! I've booked all %d of you, and you'll get text confirmations shortly. %s",
			len(sess.Targets), replyAnythingElse)
	}
	if slotText == "" {
		return "Done! You'll get a text confirmation shortly. " + replyAnythingElse
	}
	return fmt.Sprintf("Done! That's %s on %s, and you'll get a text confirmation shortly. %s",
		displayName(bookingName(sess)), slotText, replyAnythingElse)
}
