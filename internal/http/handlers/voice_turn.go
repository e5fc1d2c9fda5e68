package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/turn"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// ----- Voice webhook event types -----

// VoiceTurnEvent is the payload the telephony provider posts once per caller
// turn. Speech arrives already transcribed; a silence timeout arrives as the
// same event with an empty Speech field.
type VoiceTurnEvent struct {
	// CallID groups turns within a single phone call.
	CallID string `json:"call_id"`
	// From is the caller's phone number (E.164).
	From string `json:"from,omitempty"`
	// To is the clinic number that received the call (E.164).
	To string `json:"to,omitempty"`
	// EventType identifies the webhook event (e.g. "speech", "silence", "dtmf").
	EventType string `json:"event_type,omitempty"`
	// Speech is the caller's latest utterance (STT output). Empty on silence.
	Speech string `json:"speech,omitempty"`
	// Digits holds DTMF input when the caller used the keypad.
	Digits string `json:"digits,omitempty"`
}

// VoiceTurnResponse is the JSON body returned to the provider. Reply is fed
// to TTS; Action tells the call leg what to do after speaking.
type VoiceTurnResponse struct {
	CallID string `json:"call_id"`
	Reply  string `json:"reply"`
	Action string `json:"action"`
}

// VoiceTurnErrorResponse is returned when the event itself is malformed.
type VoiceTurnErrorResponse struct {
	Error string `json:"error"`
}

// ----- Handler -----

// turnProcessor runs one conversational turn. Satisfied by *turn.Orchestrator.
type turnProcessor interface {
	Process(ctx context.Context, in turn.Input) (turn.Output, error)
}

// VoiceTurnHandler handles telephony provider webhook events. It is a thin
// channel adapter: it validates the event, feeds the transcribed speech
// through the turn pipeline, and returns text for TTS plus a call action.
type VoiceTurnHandler struct {
	processor turnProcessor
	secret    string
	logger    *logging.Logger
}

// VoiceTurnHandlerConfig configures the VoiceTurnHandler.
type VoiceTurnHandlerConfig struct {
	Processor turnProcessor
	// WebhookSecret, when set, must match the X-Webhook-Secret header.
	WebhookSecret string
	Logger        *logging.Logger
}

// NewVoiceTurnHandler creates a new VoiceTurnHandler.
func NewVoiceTurnHandler(cfg VoiceTurnHandlerConfig) *VoiceTurnHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VoiceTurnHandler{
		processor: cfg.Processor,
		secret:    cfg.WebhookSecret,
		logger:    cfg.Logger,
	}
}

// HandleTurn is the HTTP handler for POST /webhooks/voice/turn.
func (h *VoiceTurnHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.secret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("voice-turn: webhook secret mismatch", "remote_ip", r.RemoteAddr)
			h.writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice-turn: failed to read body", "error", err)
		h.writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	var event VoiceTurnEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("voice-turn: failed to parse event", "error", err)
		h.writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(event.CallID) == "" {
		h.logger.Warn("voice-turn: event missing call_id", "event_type", event.EventType)
		h.writeError(w, "call_id is required", http.StatusBadRequest)
		return
	}

	h.logger.Info("voice-turn: received event",
		"call_id", event.CallID,
		"event_type", event.EventType,
		"from", event.From,
		"has_speech", strings.TrimSpace(event.Speech) != "",
	)

	out, err := h.processor.Process(ctx, turn.Input{
		CallID:      event.CallID,
		CallerPhone: event.From,
		Utterance:   event.Speech,
		Digits:      event.Digits,
	})
	if err != nil {
		// The caller is live on the line. Never surface an HTTP error to the
		// provider; speak a recovery line and keep listening instead.
		h.logger.Error("voice-turn: pipeline error", "error", err, "call_id", event.CallID)
		h.writeResponse(w, VoiceTurnResponse{
			CallID: event.CallID,
			Reply:  "I'm sorry, I'm having a bit of trouble. Could you say that again?",
			Action: string(turn.ActionSpeak),
		})
		return
	}

	h.writeResponse(w, VoiceTurnResponse{
		CallID: event.CallID,
		Reply:  out.Reply,
		Action: string(out.Action),
	})
}

func (h *VoiceTurnHandler) writeResponse(w http.ResponseWriter, resp VoiceTurnResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("voice-turn: failed to write response", "error", err)
	}
}

func (h *VoiceTurnHandler) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(VoiceTurnErrorResponse{Error: msg}); err != nil {
		h.logger.Error("voice-turn: failed to write error response", "error", err)
	}
}
