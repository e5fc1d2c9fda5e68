package session

import (
	"fmt"
	"time"
)

// Stage identifies where a call is in the booking conversation.
type Stage string

const (
	StageGreeting            Stage = "greeting"
	StageCollectIdentity     Stage = "collect-identity"
	StageCollectTime         Stage = "collect-time"
	StageOfferSlots          Stage = "offer-slots"
	StageConfirm             Stage = "confirm"
	StageBookingInProgress   Stage = "booking-in-progress"
	StageSendingNotification Stage = "sending-notification"
	StageFAQ                 Stage = "faq"
	StageTerminal            Stage = "terminal"
	StageErrorRecovery       Stage = "error-recovery"
)

// Interactive reports whether a silence re-prompt is allowed in this stage.
// Background stages speak on their own schedule; prompting a caller who is
// simply waiting for a booking to finish reads as a malfunction.
func (s Stage) Interactive() bool {
	switch s {
	case StageBookingInProgress, StageSendingNotification, StageTerminal:
		return false
	}
	return true
}

// TurnEntry is a single exchange in the call transcript.
type TurnEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CollectedInfo holds the fields gathered across turns.
type CollectedInfo struct {
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	PreferredTime string `json:"preferred_time,omitempty"`
	Complaint     string `json:"complaint,omitempty"`
	PatientType   string `json:"patient_type,omitempty"` // "new" or "existing"
}

// PatientCandidate is one possible identity match for the caller's number.
type PatientCandidate struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Slot is a proposed appointment time.
type Slot struct {
	StartsAt       time.Time `json:"starts_at"`
	PractitionerID string    `json:"practitioner_id"`
	Speakable      string    `json:"speakable"`
}

// BookingMode discriminates how many people this call is booking for.
type BookingMode string

const (
	ModePrimary   BookingMode = "primary"
	ModeSecondary BookingMode = "secondary" // substitute patient, sequential booking
	ModeGroup     BookingMode = "group"     // multiple patients, all must be ready
)

// BookingTarget is one person an appointment is being booked for. The primary
// caller and any "also book for my daughter" additions are all targets.
type BookingTarget struct {
	Name          string `json:"name"`
	Relation      string `json:"relation,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	Confirmed     bool   `json:"confirmed"`
	SlotIndex     int    `json:"slot_index"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// Ready reports whether this target can be handed to the booking coordinator.
func (t BookingTarget) Ready() bool {
	return t.Name != "" && t.Confirmed && t.SlotIndex >= 0
}

// FormSubmission tracks an intake form issued to one participant.
type FormSubmission struct {
	Token       string     `json:"token"`
	TargetName  string     `json:"target_name"`
	IssuedAt    time.Time  `json:"issued_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// Session is the full per-call conversation state. One record per call id,
// hydrated at turn start and persisted at turn end.
type Session struct {
	CallID      string `json:"call_id"`
	TenantID    string `json:"tenant_id,omitempty"`
	CallerPhone string `json:"caller_phone,omitempty"`

	Stage     Stage         `json:"stage"`
	Collected CollectedInfo `json:"collected"`
	History   []TurnEntry   `json:"history"`

	AwaitingResponse string `json:"awaiting_response,omitempty"`

	ErrorCount   int       `json:"error_count"`
	NoMatchCount int       `json:"no_match_count"`
	GreetCount   int       `json:"greet_count"`
	EmptyCount   int       `json:"empty_count"`
	LastEmptyAt  time.Time `json:"last_empty_at,omitempty"`

	QuestionAsks map[string]int `json:"question_asks,omitempty"`

	Intent       string  `json:"intent,omitempty"`
	IntentLocked bool    `json:"intent_locked"`
	Confidence   float64 `json:"confidence,omitempty"`

	CandidatePatients []PatientCandidate `json:"candidate_patients,omitempty"`
	// TentativePatientID is a looked-up match that has NOT been confirmed by
	// the caller. It is never a substitute for SelectedPatientID.
	TentativePatientID string `json:"tentative_patient_id,omitempty"`
	SelectedPatientID  string `json:"selected_patient_id,omitempty"`

	Slots             []Slot `json:"slots,omitempty"`
	SelectedSlotIndex int    `json:"selected_slot_index"`

	BookingLocks       map[string]time.Time `json:"booking_locks,omitempty"`
	AppointmentCreated bool                 `json:"appointment_created"`
	AppointmentID      string               `json:"appointment_id,omitempty"`
	TerminalLock       bool                 `json:"terminal_lock"`

	Mode           BookingMode     `json:"mode,omitempty"`
	Targets        []BookingTarget `json:"targets,omitempty"`
	ActiveTarget   int             `json:"active_target"`
	GroupCompleted int             `json:"group_completed"`

	NotificationsSent map[string]time.Time      `json:"notifications_sent,omitempty"`
	FormTokens        map[string]FormSubmission `json:"form_tokens,omitempty"`

	Ended     bool      `json:"ended"`
	EndReason string    `json:"end_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh session for a call.
func New(callID, callerPhone string) *Session {
	now := time.Now().UTC()
	return &Session{
		CallID:            callID,
		CallerPhone:       callerPhone,
		Stage:             StageGreeting,
		SelectedSlotIndex: -1,
		ActiveTarget:      -1,
		QuestionAsks:      make(map[string]int),
		NotificationsSent: make(map[string]time.Time),
		FormTokens:        make(map[string]FormSubmission),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AppendTurn records one transcript entry.
func (s *Session) AppendTurn(role, text string) {
	s.History = append(s.History, TurnEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

// RecentHistory returns the last n transcript entries for LLM context.
func (s *Session) RecentHistory(n int) []TurnEntry {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// CanAsk reports whether a clarifying question kind may be asked again.
// Every question kind is capped at maxAsks per call; past the cap the
// caller must get a default or a human, never the same question again.
func (s *Session) CanAsk(kind string, maxAsks int) bool {
	if s.QuestionAsks == nil {
		return true
	}
	return s.QuestionAsks[kind] < maxAsks
}

// RecordAsk increments the ask counter for a question kind.
func (s *Session) RecordAsk(kind string) {
	if s.QuestionAsks == nil {
		s.QuestionAsks = make(map[string]int)
	}
	s.QuestionAsks[kind]++
}

// LockIntent pins the primary intent for the rest of the call.
func (s *Session) LockIntent(intent string) {
	s.Intent = intent
	s.IntentLocked = true
}

// ErrAlreadyConfirmed is returned when a second, different identity
// confirmation is attempted for the same booking target.
var ErrAlreadyConfirmed = fmt.Errorf("session: patient identity already confirmed")

// ConfirmPatient promotes a patient id to the confirmed identity. The
// confirmed identity is set exactly once; re-confirming the same id is a
// no-op, switching to a different one requires ClearIdentity first.
func (s *Session) ConfirmPatient(id string) error {
	if id == "" {
		return fmt.Errorf("session: cannot confirm empty patient id")
	}
	if s.SelectedPatientID != "" && s.SelectedPatientID != id {
		return ErrAlreadyConfirmed
	}
	s.SelectedPatientID = id
	s.TentativePatientID = ""
	return nil
}

// ClearIdentity resets identity resolution, used when the caller corrects
// who the appointment is for before any booking has locked in.
func (s *Session) ClearIdentity() {
	s.SelectedPatientID = ""
	s.TentativePatientID = ""
	s.CandidatePatients = nil
}

// BookingLocked reports whether a create attempt for one booking scope is
// still barred by the TTL. Scopes are per appointment ("primary",
// "target:1"), so an in-flight create for one person never blocks another.
func (s *Session) BookingLocked(scope string, now time.Time) bool {
	return now.Before(s.BookingLocks[scope])
}

// LockBooking starts the duplicate-create guard window for one scope.
func (s *Session) LockBooking(scope string, now time.Time, ttl time.Duration) {
	if s.BookingLocks == nil {
		s.BookingLocks = make(map[string]time.Time)
	}
	s.BookingLocks[scope] = now.Add(ttl)
}

// notificationKey builds the idempotency key for one delivery.
func notificationKey(templateType, targetID string) string {
	return templateType + ":" + targetID
}

// NotificationSent reports whether this delivery already happened.
func (s *Session) NotificationSent(templateType, targetID string) bool {
	if s.NotificationsSent == nil {
		return false
	}
	_, ok := s.NotificationsSent[notificationKey(templateType, targetID)]
	return ok
}

// MarkNotificationSent records a completed delivery so it is never re-sent.
func (s *Session) MarkNotificationSent(templateType, targetID string) {
	if s.NotificationsSent == nil {
		s.NotificationsSent = make(map[string]time.Time)
	}
	s.NotificationsSent[notificationKey(templateType, targetID)] = time.Now().UTC()
}

// AddTarget appends a booking target and returns its index.
func (s *Session) AddTarget(t BookingTarget) int {
	if t.SlotIndex == 0 && t.Name == "" {
		t.SlotIndex = -1
	}
	s.Targets = append(s.Targets, t)
	return len(s.Targets) - 1
}

// AllTargetsReady reports whether every group target can be booked. Group
// bookings execute all-or-nothing; a placeholder name blocks the whole group.
func (s *Session) AllTargetsReady() bool {
	if len(s.Targets) == 0 {
		return false
	}
	for _, t := range s.Targets {
		if !t.Ready() {
			return false
		}
	}
	return true
}

// End marks the session inert. Later turns for this call id are ignored
// apart from best-effort completion callbacks.
func (s *Session) End(reason string) {
	s.Ended = true
	s.EndReason = reason
	s.UpdatedAt = time.Now().UTC()
}
