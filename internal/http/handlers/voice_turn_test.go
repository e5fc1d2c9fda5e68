package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-voice-agent/internal/turn"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// --- mocks ---

type mockProcessor struct {
	out    turn.Output
	err    error
	inputs []turn.Input
}

func (m *mockProcessor) Process(_ context.Context, in turn.Input) (turn.Output, error) {
	m.inputs = append(m.inputs, in)
	return m.out, m.err
}

// --- helpers ---

func newVoiceTurnHandler(proc turnProcessor, secret string) *VoiceTurnHandler {
	return NewVoiceTurnHandler(VoiceTurnHandlerConfig{
		Processor:     proc,
		WebhookSecret: secret,
		Logger:        logging.Default(),
	})
}

func makeTurnRequest(t *testing.T, event VoiceTurnEvent) *http.Request {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeTurnResponse(t *testing.T, rec *httptest.ResponseRecorder) VoiceTurnResponse {
	t.Helper()
	var resp VoiceTurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// --- tests ---

func TestHandleTurnSpeechEvent(t *testing.T) {
	proc := &mockProcessor{out: turn.Output{
		Reply:  "What day and time work best for you?",
		Action: turn.ActionSpeak,
	}}
	h := newVoiceTurnHandler(proc, "")

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, makeTurnRequest(t, VoiceTurnEvent{
		CallID:    "call-77",
		From:      "+15559876543",
		EventType: "speech",
		Speech:    "I'd like to book an appointment",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeTurnResponse(t, rec)
	assert.Equal(t, "call-77", resp.CallID)
	assert.Equal(t, "What day and time work best for you?", resp.Reply)
	assert.Equal(t, "speak", resp.Action)

	require.Len(t, proc.inputs, 1)
	assert.Equal(t, "call-77", proc.inputs[0].CallID)
	assert.Equal(t, "+15559876543", proc.inputs[0].CallerPhone)
	assert.Equal(t, "I'd like to book an appointment", proc.inputs[0].Utterance)
}

func TestHandleTurnSilenceEventPassesEmptyUtterance(t *testing.T) {
	proc := &mockProcessor{out: turn.Output{Action: turn.ActionWait}}
	h := newVoiceTurnHandler(proc, "")

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, makeTurnRequest(t, VoiceTurnEvent{
		CallID:    "call-78",
		EventType: "silence",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeTurnResponse(t, rec)
	assert.Equal(t, "wait", resp.Action)
	assert.Empty(t, resp.Reply)

	require.Len(t, proc.inputs, 1)
	assert.Empty(t, proc.inputs[0].Utterance)
}

func TestHandleTurnMissingCallID(t *testing.T) {
	proc := &mockProcessor{}
	h := newVoiceTurnHandler(proc, "")

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, makeTurnRequest(t, VoiceTurnEvent{Speech: "hello"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, proc.inputs, "pipeline should not run without a call_id")
}

func TestHandleTurnMalformedBody(t *testing.T) {
	proc := &mockProcessor{}
	h := newVoiceTurnHandler(proc, "")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleTurn(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, proc.inputs)
}

func TestHandleTurnSecretEnforced(t *testing.T) {
	proc := &mockProcessor{out: turn.Output{Reply: "hi", Action: turn.ActionSpeak}}
	h := newVoiceTurnHandler(proc, "s3cret")

	// Missing secret is rejected.
	rec := httptest.NewRecorder()
	h.HandleTurn(rec, makeTurnRequest(t, VoiceTurnEvent{CallID: "call-79", Speech: "hi"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, proc.inputs)

	// Correct secret is accepted.
	req := makeTurnRequest(t, VoiceTurnEvent{CallID: "call-79", Speech: "hi"})
	req.Header.Set("X-Webhook-Secret", "s3cret")
	rec = httptest.NewRecorder()
	h.HandleTurn(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, proc.inputs, 1)
}

func TestHandleTurnPipelineErrorSpeaksRecoveryLine(t *testing.T) {
	proc := &mockProcessor{err: errors.New("session store unavailable")}
	h := newVoiceTurnHandler(proc, "")

	rec := httptest.NewRecorder()
	h.HandleTurn(rec, makeTurnRequest(t, VoiceTurnEvent{
		CallID: "call-80",
		Speech: "tomorrow morning",
	}))

	// The caller is on the line; errors must come back as speech, not 5xx.
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeTurnResponse(t, rec)
	assert.Equal(t, "speak", resp.Action)
	assert.Contains(t, resp.Reply, "say that again")
	assert.NotContains(t, resp.Reply, "booked")
}
