// Package booking drives appointment creation against the scheduling
// backend, with an idempotency lock so a retried turn never books twice.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-voice-agent/internal/extract"
	"github.com/wolfman30/clinic-voice-agent/internal/scheduling"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var tracer = otel.Tracer("clinicvoice/booking-coordinator")

// State is the coordinator's position in the booking lifecycle.
type State string

const (
	StateCollecting State = "COLLECTING"
	StateReady      State = "READY"
	StateLocked     State = "LOCKED"
	StateExecuting  State = "EXECUTING"
	StateConfirmed  State = "CONFIRMED"
	StateFailed     State = "FAILED"
)

// failedReply is the forced caller-facing reply for any failed or unverified
// create attempt. Whatever the model proposed is discarded on this path.
const failedReply = "I'm sorry, I couldn't complete that booking just now. " +
	"Our reception team will confirm your appointment by text shortly."

// Result is the outcome of one coordinator pass.
type Result struct {
	State         State
	AppointmentID string
	// Executed reports whether an external create call was actually issued.
	Executed bool
	// ForcedReply, when set, must replace any model-proposed reply.
	ForcedReply string
}

// ErrNotReady means the session lacks a confirmed identity, a selected slot,
// or an explicit confirmation.
var ErrNotReady = errors.New("booking: not ready to execute")

// lockScopePrimary guards the caller's own appointment; each group or
// follow-on target gets its own scope so locks never cross appointments.
const lockScopePrimary = "primary"

func lockScopeTarget(i int) string {
	return fmt.Sprintf("target:%d", i)
}

// Coordinator turns a fully-resolved session into exactly one external
// booking attempt per target, guarded by a time-bounded lock and a
// verification gate.
type Coordinator struct {
	backend scheduling.Backend
	lockTTL time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// NewCoordinator creates a booking coordinator.
func NewCoordinator(backend scheduling.Backend, lockTTL time.Duration, logger *logging.Logger) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = 8 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		backend: backend,
		lockTTL: lockTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// Ready reports whether a single (primary) booking can execute: confirmed
// identity or a valid collected name, a selected slot, and no active lock.
func (c *Coordinator) Ready(sess *session.Session) error {
	if sess.SelectedPatientID == "" && !extract.IsValidName(sess.Collected.Name) {
		return fmt.Errorf("%w: no confirmed identity", ErrNotReady)
	}
	if sess.SelectedSlotIndex < 0 || sess.SelectedSlotIndex >= len(sess.Slots) {
		return fmt.Errorf("%w: no selected slot", ErrNotReady)
	}
	return nil
}

// Execute runs the booking for the session's primary target. The caller has
// already observed an explicit confirmation; Execute re-checks structural
// readiness, honors the lock window, and applies the verification gate.
func (c *Coordinator) Execute(ctx context.Context, sess *session.Session) Result {
	ctx, span := tracer.Start(ctx, "booking.execute")
	defer span.End()
	span.SetAttributes(attribute.String("call.id", sess.CallID))

	if sess.AppointmentCreated {
		// Duplicate confirm turn after success: nothing to do, nothing to say
		// that claims a new booking.
		return Result{State: StateConfirmed, AppointmentID: sess.AppointmentID}
	}

	if err := c.Ready(sess); err != nil {
		return Result{State: StateCollecting}
	}

	now := c.now()
	if sess.BookingLocked(lockScopePrimary, now) {
		c.logger.Info("booking suppressed by lock window", "call_id", sess.CallID)
		return Result{State: StateLocked}
	}

	// Lock before the external call so a near-simultaneous duplicate turn
	// cannot re-enter while the create is in flight.
	sess.LockBooking(lockScopePrimary, now, c.lockTTL)

	slot := sess.Slots[sess.SelectedSlotIndex]
	appt, err := c.create(ctx, sess, scheduling.AppointmentRequest{
		PatientID:      sess.SelectedPatientID,
		PatientName:    sess.Collected.Name,
		Phone:          sess.CallerPhone,
		StartsAt:       slot.StartsAt,
		PractitionerID: slot.PractitionerID,
		Reason:         sess.Collected.Complaint,
		IdempotencyKey: sess.CallID + ":primary",
	})
	if err != nil {
		span.SetAttributes(attribute.String("booking.outcome", "failed"))
		return Result{State: StateFailed, Executed: true, ForcedReply: failedReply}
	}

	sess.AppointmentCreated = true
	sess.AppointmentID = appt.ID
	sess.TerminalLock = true
	span.SetAttributes(attribute.String("booking.outcome", "confirmed"))
	return Result{State: StateConfirmed, AppointmentID: appt.ID, Executed: true}
}

// ExecuteGroup books every target in a group request. Nothing executes until
// every participant has a valid real name and a selected slot; partial
// readiness never triggers partial execution with placeholder names.
func (c *Coordinator) ExecuteGroup(ctx context.Context, sess *session.Session) Result {
	ctx, span := tracer.Start(ctx, "booking.execute_group")
	defer span.End()
	span.SetAttributes(
		attribute.String("call.id", sess.CallID),
		attribute.Int("group.size", len(sess.Targets)),
	)

	for _, t := range sess.Targets {
		if !extract.IsValidName(t.Name) {
			return Result{State: StateCollecting}
		}
	}
	if !sess.AllTargetsReady() {
		return Result{State: StateCollecting}
	}

	// Locks are per target, so a follow-on booking confirmed seconds after
	// the primary is never parked behind the primary's lock window.
	now := c.now()
	for i := range sess.Targets {
		if sess.Targets[i].AppointmentID == "" && sess.BookingLocked(lockScopeTarget(i), now) {
			return Result{State: StateLocked}
		}
	}

	var lastID string
	for i := range sess.Targets {
		t := &sess.Targets[i]
		if t.AppointmentID != "" {
			continue // already booked on a prior pass
		}
		sess.LockBooking(lockScopeTarget(i), now, c.lockTTL)
		slot := sess.Slots[t.SlotIndex]
		appt, err := c.create(ctx, sess, scheduling.AppointmentRequest{
			PatientID:      t.PatientID,
			PatientName:    t.Name,
			Phone:          sess.CallerPhone,
			StartsAt:       slot.StartsAt,
			PractitionerID: slot.PractitionerID,
			IdempotencyKey: fmt.Sprintf("%s:target:%d", sess.CallID, i),
		})
		if err != nil {
			span.SetAttributes(attribute.String("booking.outcome", "failed"))
			return Result{State: StateFailed, Executed: true, ForcedReply: failedReply}
		}
		t.AppointmentID = appt.ID
		sess.GroupCompleted++
		lastID = appt.ID
	}

	sess.AppointmentCreated = true
	sess.AppointmentID = lastID
	sess.TerminalLock = true
	span.SetAttributes(attribute.String("booking.outcome", "confirmed"))
	return Result{State: StateConfirmed, AppointmentID: lastID, Executed: true}
}

// create issues the external call and applies the verification gate: only a
// non-empty backend confirmation id counts as success.
func (c *Coordinator) create(ctx context.Context, sess *session.Session, req scheduling.AppointmentRequest) (*scheduling.Appointment, error) {
	appt, err := c.backend.CreateAppointment(ctx, req)
	if err != nil {
		c.logger.Error("appointment create failed",
			"call_id", sess.CallID,
			"error", err,
		)
		return nil, err
	}
	if appt == nil || appt.ID == "" {
		c.logger.Error("appointment create returned no confirmation id",
			"call_id", sess.CallID,
		)
		return nil, scheduling.ErrNoConfirmationID
	}
	return appt, nil
}
