package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-voice-agent/internal/booking"
	"github.com/wolfman30/clinic-voice-agent/internal/intent"
	"github.com/wolfman30/clinic-voice-agent/internal/llm"
	"github.com/wolfman30/clinic-voice-agent/internal/notify"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/internal/scheduling"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
)

type fakeBackend struct {
	patients  []scheduling.Patient
	findErr   error
	slots     []scheduling.Slot
	searchErr error
	apptID    string
	createErr error
	created   []scheduling.AppointmentRequest
}

func (f *fakeBackend) FindCandidates(ctx context.Context, phone string) ([]scheduling.Patient, error) {
	return f.patients, f.findErr
}

func (f *fakeBackend) SearchSlots(ctx context.Context, q scheduling.SlotQuery) ([]scheduling.Slot, error) {
	return f.slots, f.searchErr
}

func (f *fakeBackend) CreateAppointment(ctx context.Context, req scheduling.AppointmentRequest) (*scheduling.Appointment, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	id := f.apptID
	if id != "" {
		id = fmt.Sprintf("%s-%d", f.apptID, len(f.created))
	}
	return &scheduling.Appointment{ID: id, StartsAt: req.StartsAt}, nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, body)
	return nil
}

func morningSlots() []scheduling.Slot {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return []scheduling.Slot{
		{StartsAt: base, EndsAt: base.Add(30 * time.Minute), PractitionerID: "pr1", Practitioner: "Dr. Patel"},
		{StartsAt: base.Add(90 * time.Minute), EndsAt: base.Add(2 * time.Hour), PractitionerID: "pr1", Practitioner: "Dr. Patel"},
	}
}

type testHarness struct {
	orch    *Orchestrator
	store   session.Store
	backend *fakeBackend
	sms     *fakeSMS
}

func newHarness(t *testing.T, backend *fakeBackend) *testHarness {
	t.Helper()
	store := session.NewMemoryStore()
	sms := &fakeSMS{}
	// The model being down exercises the deterministic ruleset, which is what
	// these scenarios rely on.
	classifier := intent.NewClassifier(&llm.StubClient{Err: errors.New("model down")}, "stub", nil)
	orch := NewOrchestrator(Deps{
		Store:       store,
		Backend:     backend,
		Classifier:  classifier,
		Coordinator: booking.NewCoordinator(backend, 8*time.Second, nil),
		Notifier:    notify.NewService(sms, "https://forms.example.com", nil),
		Metrics:     metrics.NewTurnMetrics(prometheus.NewRegistry()),
	}, Options{})
	return &testHarness{orch: orch, store: store, backend: backend, sms: sms}
}

func (h *testHarness) turn(t *testing.T, callID, utterance string) Output {
	t.Helper()
	out, err := h.orch.Process(context.Background(), Input{
		CallID:      callID,
		CallerPhone: "+19375551212",
		Utterance:   utterance,
	})
	require.NoError(t, err)
	return out
}

func (h *testHarness) load(t *testing.T, callID string) *session.Session {
	t.Helper()
	sess, err := h.store.Load(context.Background(), callID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestNewPatientBookingEndToEnd(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	out := h.turn(t, "call-1", "")
	assert.Equal(t, ActionSpeak, out.Action)
	assert.Contains(t, out.Reply, "Thanks for calling")

	out = h.turn(t, "call-1", "I'd like to book an appointment for tomorrow morning")
	assert.Contains(t, out.Reply, "first and last name")

	sess := h.load(t, "call-1")
	assert.Equal(t, "tomorrow morning", sess.Collected.PreferredTime)
	assert.True(t, sess.IntentLocked)

	out = h.turn(t, "call-1", "My name is Sarah Johnson")
	assert.Contains(t, out.Reply, "option 1")
	assert.Contains(t, out.Reply, "option 2")
	assert.Equal(t, session.StageOfferSlots, out.Stage)

	out = h.turn(t, "call-1", "The second one, please")
	assert.Contains(t, out.Reply, "Just to confirm")
	assert.Equal(t, session.StageConfirm, out.Stage)

	out = h.turn(t, "call-1", "Yes please")
	assert.Equal(t, session.StageTerminal, out.Stage)
	assert.Contains(t, out.Reply, "text confirmation")

	require.Len(t, backend.created, 1)
	assert.Equal(t, "call-1:primary", backend.created[0].IdempotencyKey)
	assert.Equal(t, "Sarah Johnson", backend.created[0].PatientName)

	sess = h.load(t, "call-1")
	assert.True(t, sess.AppointmentCreated)
	assert.Equal(t, "appt-1", sess.AppointmentID)
	assert.True(t, sess.TerminalLock)
	assert.Equal(t, 1, sess.SelectedSlotIndex)

	// Confirmation text plus intake form for a patient with no record.
	assert.Len(t, h.sms.sent, 2)
	assert.Contains(t, h.sms.sent[1], "https://forms.example.com/intake/")

	out = h.turn(t, "call-1", "that's all, goodbye")
	assert.Equal(t, ActionHangup, out.Action)
	assert.True(t, h.load(t, "call-1").Ended)
}

func TestExistingPatientDisambiguation(t *testing.T) {
	backend := &fakeBackend{
		patients: []scheduling.Patient{
			{ID: "p1", FirstName: "Michael", LastName: "Nguyen", Phone: "+19375551212"},
			{ID: "p2", FirstName: "Lisa", LastName: "Nguyen", Phone: "+19375551212"},
		},
		slots:  morningSlots(),
		apptID: "appt",
	}
	h := newHarness(t, backend)

	h.turn(t, "call-2", "")
	out := h.turn(t, "call-2", "I need to book an appointment")
	assert.Contains(t, out.Reply, "Michael Nguyen")
	assert.Contains(t, out.Reply, "Lisa Nguyen")

	out = h.turn(t, "call-2", "It's Michael")
	assert.Contains(t, out.Reply, "What day and time")

	sess := h.load(t, "call-2")
	assert.Equal(t, "p1", sess.SelectedPatientID)
	assert.Empty(t, sess.TentativePatientID)

	out = h.turn(t, "call-2", "Wednesday afternoon works")
	assert.Contains(t, out.Reply, "option 1")

	h.turn(t, "call-2", "the first one")
	out = h.turn(t, "call-2", "yes")
	assert.Equal(t, session.StageTerminal, out.Stage)

	require.Len(t, backend.created, 1)
	assert.Equal(t, "p1", backend.created[0].PatientID)

	// Known patient: confirmation only, no intake form.
	assert.Len(t, h.sms.sent, 1)
}

func TestFailedBookingNeverClaimsSuccess(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: ""} // backend returns no confirmation id
	h := newHarness(t, backend)

	h.turn(t, "call-3", "")
	h.turn(t, "call-3", "book me in tomorrow morning")
	h.turn(t, "call-3", "My name is Sarah Johnson")
	h.turn(t, "call-3", "the first one")
	out := h.turn(t, "call-3", "yes")

	assert.Contains(t, out.Reply, "couldn't complete")
	assert.NotContains(t, strings.ToLower(out.Reply), "you're booked")
	assert.Equal(t, session.StageErrorRecovery, out.Stage)

	sess := h.load(t, "call-3")
	assert.False(t, sess.AppointmentCreated)
	assert.Empty(t, sess.AppointmentID)
	assert.False(t, sess.TerminalLock)
	assert.Empty(t, h.sms.sent)

	// Asking about it afterwards stays non-committal.
	out = h.turn(t, "call-3", "so is my appointment sorted?")
	assert.NotContains(t, strings.ToLower(out.Reply), "confirmed for")
}

func TestSecondaryBookingAfterPrimary(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-4", "")
	h.turn(t, "call-4", "I'd like to book an appointment for tomorrow morning")
	h.turn(t, "call-4", "My name is Sarah Johnson")
	h.turn(t, "call-4", "the second one")
	h.turn(t, "call-4", "yes")
	require.Len(t, backend.created, 1)

	// Seconds after the primary booked, still inside its duplicate-create
	// window. The follow-on is a different appointment and must not be barred.
	out := h.turn(t, "call-4", "Could you also book my son James for the same time?")
	assert.Contains(t, out.Reply, "Just to confirm")
	assert.Contains(t, strings.ToLower(out.Reply), "james")

	out = h.turn(t, "call-4", "yes")
	assert.Equal(t, session.StageTerminal, out.Stage)

	require.Len(t, backend.created, 2)
	assert.Equal(t, "james", backend.created[1].PatientName)
	assert.Equal(t, "call-4:target:1", backend.created[1].IdempotencyKey)

	sess := h.load(t, "call-4")
	require.Len(t, sess.Targets, 2)
	assert.NotEmpty(t, sess.Targets[0].AppointmentID)
	assert.NotEmpty(t, sess.Targets[1].AppointmentID)
	assert.NotEqual(t, sess.Targets[0].AppointmentID, sess.Targets[1].AppointmentID)
	assert.True(t, sess.TerminalLock)
}

func TestSubstituteBookingOnFreshCall(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-20", "")
	out := h.turn(t, "call-20", "I'd like to book an appointment for my son Michael")
	assert.Contains(t, out.Reply, "What day and time")

	out = h.turn(t, "call-20", "tomorrow morning works")
	assert.Contains(t, out.Reply, "option 1")

	out = h.turn(t, "call-20", "the first one")
	assert.Contains(t, out.Reply, "Just to confirm")
	assert.Contains(t, strings.ToLower(out.Reply), "michael", "the confirm question names the person being booked")

	out = h.turn(t, "call-20", "yes")
	assert.Equal(t, session.StageTerminal, out.Stage)

	require.Len(t, backend.created, 1)
	assert.Equal(t, "michael", backend.created[0].PatientName)

	sess := h.load(t, "call-20")
	require.Len(t, sess.Targets, 1, "the caller is not a target of a booking that isn't theirs")
	assert.Equal(t, "son", sess.Targets[0].Relation)
	assert.NotEmpty(t, sess.Targets[0].AppointmentID)
}

func TestBareNameAnswerIsNotLowConfidence(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-21", "")
	// One flubbed turn before the flow even starts.
	out := h.turn(t, "call-21", "ummm hmm")
	assert.Equal(t, ActionSpeak, out.Action)
	assert.Equal(t, 1, h.load(t, "call-21").NoMatchCount)

	// A recognized intent ends the no-match streak.
	out = h.turn(t, "call-21", "I need an appointment")
	assert.Contains(t, out.Reply, "first and last name")
	assert.Equal(t, 0, h.load(t, "call-21").NoMatchCount)

	// The answer to the name question is a name, not a low-confidence turn.
	out = h.turn(t, "call-21", "Sarah Johnson")
	assert.Equal(t, ActionSpeak, out.Action)
	assert.Contains(t, out.Reply, "What day and time")
	assert.False(t, h.load(t, "call-21").Ended)
}

func TestSecondaryBookingClearsTimeUnlessSameTime(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-5", "")
	h.turn(t, "call-5", "I'd like to book an appointment for tomorrow morning")
	h.turn(t, "call-5", "My name is Sarah Johnson")
	h.turn(t, "call-5", "the first one")
	h.turn(t, "call-5", "yes")

	out := h.turn(t, "call-5", "I'd like to also book my daughter Emily")
	assert.Contains(t, out.Reply, "What day and time")

	sess := h.load(t, "call-5")
	assert.Empty(t, sess.Collected.PreferredTime, "a follow-on booking starts with a clean time")
	assert.Equal(t, -1, sess.SelectedSlotIndex)
	assert.Equal(t, session.ModeSecondary, sess.Mode)
}

func TestGroupBookingAllOrNothing(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-6", "")
	out := h.turn(t, "call-6", "My wife and I would both like to come in tomorrow morning")
	assert.Contains(t, out.Reply, "wife")

	out = h.turn(t, "call-6", "Lisa Brown")
	assert.Contains(t, out.Reply, "first and last name")

	out = h.turn(t, "call-6", "Mark Brown")
	assert.Contains(t, out.Reply, "option 1")

	h.turn(t, "call-6", "the first one works")
	assert.Empty(t, backend.created, "nothing books before the group confirms")

	out = h.turn(t, "call-6", "yes")
	assert.Equal(t, session.StageTerminal, out.Stage)

	require.Len(t, backend.created, 2)
	names := []string{backend.created[0].PatientName, backend.created[1].PatientName}
	assert.ElementsMatch(t, []string{"Mark Brown", "Lisa Brown"}, names)

	sess := h.load(t, "call-6")
	assert.Equal(t, session.ModeGroup, sess.Mode)
	assert.True(t, sess.AllTargetsReady())
}

func TestHumanRequestTransfersImmediately(t *testing.T) {
	h := newHarness(t, &fakeBackend{})

	h.turn(t, "call-7", "")
	out := h.turn(t, "call-7", "I want to talk to a real person")
	assert.Equal(t, ActionTransfer, out.Action)
	assert.Contains(t, out.Reply, "reception")
	assert.True(t, h.load(t, "call-7").Ended)

	// The transfer is followed up by text so the request survives a dropped
	// bridge.
	require.Len(t, h.sms.sent, 1)
	assert.Contains(t, h.sms.sent[0], "reception team will text you")
}

func TestEmergencyAdvises911AndHangsUp(t *testing.T) {
	h := newHarness(t, &fakeBackend{})

	h.turn(t, "call-8", "")
	out := h.turn(t, "call-8", "I'm having chest pain right now")
	assert.Equal(t, ActionHangup, out.Action)
	assert.Contains(t, out.Reply, "nine one one")
	assert.True(t, h.load(t, "call-8").Ended)
}

func TestEmptySpeechGraceWindow(t *testing.T) {
	h := newHarness(t, &fakeBackend{slots: morningSlots()})

	h.turn(t, "call-9", "")
	h.turn(t, "call-9", "I'd like to book an appointment")

	t0 := time.Now().UTC()
	h.orch.now = func() time.Time { return t0 }
	out := h.turn(t, "call-9", "")
	assert.Equal(t, ActionWait, out.Action, "first empty result gets a quiet beat")
	assert.Empty(t, out.Reply)

	// A duplicate empty event inside the grace window stays silent.
	h.orch.now = func() time.Time { return t0.Add(500 * time.Millisecond) }
	out = h.turn(t, "call-9", "")
	assert.Equal(t, ActionWait, out.Action)

	// Real silence past the window earns one re-prompt.
	h.orch.now = func() time.Time { return t0.Add(3 * time.Second) }
	out = h.turn(t, "call-9", "")
	assert.Equal(t, ActionSpeak, out.Action)
	assert.Contains(t, out.Reply, "didn't catch")

	// And continued silence ends the call politely.
	h.orch.now = func() time.Time { return t0.Add(6 * time.Second) }
	out = h.turn(t, "call-9", "")
	assert.Equal(t, ActionHangup, out.Action)
	assert.True(t, h.load(t, "call-9").Ended)
}

func TestSpeechResetsEmptyCounter(t *testing.T) {
	h := newHarness(t, &fakeBackend{})

	h.turn(t, "call-10", "")
	t0 := time.Now().UTC()
	h.orch.now = func() time.Time { return t0 }
	h.turn(t, "call-10", "")
	h.orch.now = func() time.Time { return t0.Add(3 * time.Second) }
	h.turn(t, "call-10", "")

	h.turn(t, "call-10", "hello, still here")
	sess := h.load(t, "call-10")
	assert.Equal(t, 0, sess.EmptyCount)
}

func TestFAQAnsweredAfterBookingWithoutRebookPrompt(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-11", "")
	h.turn(t, "call-11", "book me in tomorrow morning")
	h.turn(t, "call-11", "My name is Sarah Johnson")
	h.turn(t, "call-11", "the first one")
	h.turn(t, "call-11", "yes")

	out := h.turn(t, "call-11", "what are your hours?")
	assert.Contains(t, out.Reply, "We're open")
	lower := strings.ToLower(out.Reply)
	assert.NotContains(t, lower, "would you like to book")
	assert.NotContains(t, lower, "shall i book")

	// And no second create happened.
	assert.Len(t, backend.created, 1)
}

func TestFAQMidFlowResumesSlotOffer(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-12", "")
	h.turn(t, "call-12", "book me in tomorrow morning")
	h.turn(t, "call-12", "My name is Sarah Johnson")

	out := h.turn(t, "call-12", "where are you located?")
	assert.Contains(t, out.Reply, "Oakwood Avenue")
	assert.Contains(t, out.Reply, "option 1", "the pending slot offer is re-asked")
}

func TestSlotSearchFailureTransfers(t *testing.T) {
	backend := &fakeBackend{searchErr: errors.New("ehr timeout")}
	h := newHarness(t, backend)

	h.turn(t, "call-13", "")
	h.turn(t, "call-13", "book me in tomorrow morning")
	out := h.turn(t, "call-13", "My name is Sarah Johnson")

	assert.Equal(t, ActionTransfer, out.Action)
	assert.Contains(t, out.Reply, "reception")
}

func TestConfirmNoReturnsToSlotOffer(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-14", "")
	h.turn(t, "call-14", "book me in tomorrow morning")
	h.turn(t, "call-14", "My name is Sarah Johnson")
	h.turn(t, "call-14", "the first one")

	out := h.turn(t, "call-14", "no, actually not that one")
	assert.Contains(t, out.Reply, "option 1")
	assert.Empty(t, backend.created)

	sess := h.load(t, "call-14")
	assert.Equal(t, -1, sess.SelectedSlotIndex)
	assert.Equal(t, session.StageOfferSlots, sess.Stage)
}

func TestDuplicateConfirmDoesNotDoubleBook(t *testing.T) {
	backend := &fakeBackend{slots: morningSlots(), apptID: "appt"}
	h := newHarness(t, backend)

	h.turn(t, "call-15", "")
	h.turn(t, "call-15", "book me in tomorrow morning")
	h.turn(t, "call-15", "My name is Sarah Johnson")
	h.turn(t, "call-15", "the first one")
	h.turn(t, "call-15", "yes")
	require.Len(t, backend.created, 1)

	// Terminal stage: another yes never re-executes the create.
	h.turn(t, "call-15", "yes")
	assert.Len(t, backend.created, 1)
	assert.Len(t, h.sms.sent, 2)
}
