package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/llm"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// minLLMConfidence is the floor under which an LLM classification is
// discarded in favor of the deterministic ruleset.
const minLLMConfidence = 0.6

const classifierPrompt = `You classify a caller utterance from a clinic phone call into ONE intent. Respond with JSON only.

Intents:
- emergency: medical emergency
- human_request: caller explicitly wants a human
- faq_hours: opening hours question
- faq_location: address/directions/parking question
- faq_pricing: cost/fees/insurance question
- faq_general: other informational question about the clinic
- cancel: cancel an existing appointment
- reschedule: change an existing appointment
- booking: book a new appointment
- confirmation: caller is agreeing with what was just proposed
- negation: caller is rejecting what was just proposed
- greeting: hello / small talk opener
- clarification: caller did not hear or understand
- goodbye: caller is ending the call
- other: none of the above

Respond with:
{"intent": "<intent>", "confidence": <0.0-1.0>, "entities": {"day": "", "time_of_day": "", "name": "", "service": ""}}`

// Classifier resolves utterances to intents, preferring the LLM and falling
// back to the keyword ruleset whenever the model is unavailable, unparsable,
// or unsure. The fallback path is total; classification never fails.
type Classifier struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

// NewClassifier creates an intent classifier. A nil client means the
// deterministic ruleset handles everything.
func NewClassifier(client llm.Client, model string, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{client: client, model: model, logger: logger}
}

// Model is the configured model id, used as a metrics label.
func (c *Classifier) Model() string {
	return c.model
}

// Classify resolves one utterance, using recent history for context.
func (c *Classifier) Classify(ctx context.Context, utterance string, history []session.TurnEntry) Result {
	if c.client != nil {
		if res, err := c.classifyLLM(ctx, utterance, history); err == nil {
			return res
		} else {
			c.logger.Warn("llm classification failed, using ruleset", "error", err)
		}
	}
	return ClassifyByRules(utterance)
}

func (c *Classifier) classifyLLM(ctx context.Context, utterance string, history []session.TurnEntry) (Result, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	resp, err := c.client.Complete(ctx, llm.Request{
		Model:     c.model,
		System:    []string{classifierPrompt},
		Messages:  messages,
		MaxTokens: 120,
	})
	if err != nil {
		return Result{}, err
	}

	res, err := parseClassification(resp.Text)
	if err != nil {
		return Result{}, err
	}
	if res.Confidence <= minLLMConfidence {
		return Result{}, fmt.Errorf("intent: llm confidence %.2f below threshold", res.Confidence)
	}
	res.Source = "llm"
	return res, nil
}

// parseClassification extracts the JSON object from the model response,
// tolerating extra prose around it.
func parseClassification(text string) (Result, error) {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("intent: no JSON object in response")
	}
	content = content[start : end+1]

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return Result{}, fmt.Errorf("intent: parse classification: %w", err)
	}
	if !Known(string(res.Intent)) {
		return Result{}, fmt.Errorf("intent: unknown intent %q", res.Intent)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return Result{}, fmt.Errorf("intent: confidence %v out of range", res.Confidence)
	}
	return res, nil
}

// Apply merges a classification into the session, honoring the intent lock:
// once a booking-class intent is set, a later reclassification to a
// non-booking category must not overwrite it. FAQ intents are still returned
// to the router so questions get answered mid-booking.
func Apply(sess *session.Session, res Result) Intent {
	current := Intent(sess.Intent)
	if sess.IntentLocked && current.BookingClass() && !res.Intent.BookingClass() {
		return res.Intent
	}
	sess.Intent = string(res.Intent)
	sess.Confidence = res.Confidence
	if res.Intent.BookingClass() {
		sess.LockIntent(string(res.Intent))
	}
	return res.Intent
}
