package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Template types for outbound notifications.
const (
	TemplateBookingConfirmation = "booking_confirmation"
	TemplateIntakeForm          = "intake_form"
	TemplateHandoffFollowup     = "handoff_followup"
)

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Delivery describes one notification to send.
type Delivery struct {
	Template   string
	TargetID   string // idempotency scope within the call: patient id or target name
	To         string // E.164 destination
	Body       string
	NeedsToken bool // issue a form token and append its link
}

// Service sends caller-facing notifications exactly once per
// (call, token, template type). Delivery state lives on the session so the
// merge-on-save discipline protects it against concurrent turns.
type Service struct {
	sms         SMSSender
	formBaseURL string
	logger      *logging.Logger
}

// NewService creates a notification service.
func NewService(sms SMSSender, formBaseURL string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sms: sms, formBaseURL: formBaseURL, logger: logger}
}

// Send delivers one notification unless an identical one already went out
// for this call. Returns true when a message was actually sent.
func (s *Service) Send(ctx context.Context, sess *session.Session, d Delivery) (bool, error) {
	if s.sms == nil {
		return false, fmt.Errorf("notify: sms sender not configured")
	}
	if d.To == "" {
		return false, fmt.Errorf("notify: destination required")
	}

	if sess.NotificationSent(d.Template, d.TargetID) {
		s.logger.Debug("notification suppressed, already sent",
			"call_id", sess.CallID,
			"template", d.Template,
			"target", d.TargetID,
		)
		return false, nil
	}

	body := d.Body
	if d.NeedsToken {
		token := s.issueFormToken(sess, d.TargetID)
		if s.formBaseURL != "" {
			body = strings.TrimSpace(body + " " + s.formBaseURL + "/intake/" + token)
		}
	}

	if err := s.sms.SendSMS(ctx, d.To, body); err != nil {
		s.logger.Error("notification send failed",
			"call_id", sess.CallID,
			"template", d.Template,
			"to", maskPhone(d.To),
			"error", err,
		)
		return false, fmt.Errorf("notify: send: %w", err)
	}

	sess.MarkNotificationSent(d.Template, d.TargetID)
	s.logger.Info("notification sent",
		"call_id", sess.CallID,
		"template", d.Template,
		"to", maskPhone(d.To),
	)
	return true, nil
}

// issueFormToken mints one intake-form token per participant, reusing an
// existing unsubmitted token for the same target.
func (s *Service) issueFormToken(sess *session.Session, targetID string) string {
	for token, sub := range sess.FormTokens {
		if sub.TargetName == targetID {
			return token
		}
	}
	token := uuid.NewString()
	if sess.FormTokens == nil {
		sess.FormTokens = make(map[string]session.FormSubmission)
	}
	sess.FormTokens[token] = session.FormSubmission{
		Token:      token,
		TargetName: targetID,
		IssuedAt:   sess.UpdatedAt,
	}
	return token
}

// maskPhone returns the last 4 digits of a phone number for logging.
func maskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
