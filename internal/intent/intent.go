package intent

// Intent is the closed taxonomy of caller intents. The router switches
// exhaustively over these; adding one is a compile-visible change.
type Intent string

const (
	IntentEmergency     Intent = "emergency"
	IntentHumanRequest  Intent = "human_request"
	IntentFAQHours      Intent = "faq_hours"
	IntentFAQLocation   Intent = "faq_location"
	IntentFAQPricing    Intent = "faq_pricing"
	IntentFAQGeneral    Intent = "faq_general"
	IntentCancel        Intent = "cancel"
	IntentReschedule    Intent = "reschedule"
	IntentBooking       Intent = "booking"
	IntentConfirmation  Intent = "confirmation"
	IntentNegation      Intent = "negation"
	IntentGreeting      Intent = "greeting"
	IntentClarification Intent = "clarification"
	IntentGoodbye       Intent = "goodbye"
	IntentOther         Intent = "other"
)

// BookingClass reports whether an intent commits the call to a booking flow.
// Once a booking-class intent is locked, later low-confidence classification
// must not reset the call to a non-booking category.
func (i Intent) BookingClass() bool {
	switch i {
	case IntentBooking, IntentReschedule, IntentCancel:
		return true
	}
	return false
}

// FAQ reports whether an intent is an informational question.
func (i Intent) FAQ() bool {
	switch i {
	case IntentFAQHours, IntentFAQLocation, IntentFAQPricing, IntentFAQGeneral:
		return true
	}
	return false
}

// Entities are structured values pulled out alongside classification.
type Entities struct {
	Day       string `json:"day,omitempty"`
	TimeOfDay string `json:"time_of_day,omitempty"`
	Name      string `json:"name,omitempty"`
	Service   string `json:"service,omitempty"`
}

// Result is a classification outcome. Confidence is in [0,1].
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	// Source records which path produced the result: "llm" or "rules".
	Source string `json:"-"`
}

var known = map[Intent]bool{
	IntentEmergency:     true,
	IntentHumanRequest:  true,
	IntentFAQHours:      true,
	IntentFAQLocation:   true,
	IntentFAQPricing:    true,
	IntentFAQGeneral:    true,
	IntentCancel:        true,
	IntentReschedule:    true,
	IntentBooking:       true,
	IntentConfirmation:  true,
	IntentNegation:      true,
	IntentGreeting:      true,
	IntentClarification: true,
	IntentGoodbye:       true,
	IntentOther:         true,
}

// Known reports whether a string names a valid taxonomy member.
func Known(s string) bool {
	return known[Intent(s)]
}
