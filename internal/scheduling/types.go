package scheduling

import "time"

// Patient is a patient record returned by the scheduling backend.
type Patient struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
}

// Slot is a bookable appointment opening.
type Slot struct {
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	PractitionerID string    `json:"practitioner_id"`
	Practitioner   string    `json:"practitioner,omitempty"`
}

// SlotQuery narrows a slot search.
type SlotQuery struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	PractitionerID string    `json:"practitioner_id,omitempty"`
	// Preference is the caller's spoken preference, passed through so the
	// backend can pre-rank ("tomorrow morning").
	Preference string `json:"preference,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// AppointmentRequest creates one appointment for one patient.
type AppointmentRequest struct {
	PatientID      string    `json:"patient_id,omitempty"`
	PatientName    string    `json:"patient_name,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	PractitionerID string    `json:"practitioner_id"`
	Reason         string    `json:"reason,omitempty"`
	// IdempotencyKey dedupes retried creates on the backend side.
	IdempotencyKey string `json:"idempotency_key"`
}

// Appointment is a confirmed booking. ID is the backend's confirmation
// identifier; an Appointment without one is never treated as confirmed.
type Appointment struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
}
