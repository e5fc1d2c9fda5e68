package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelnyxSender sends SMS through the Telnyx messages API.
type TelnyxSender struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewTelnyxSender creates a Telnyx SMS sender with a bounded timeout.
func NewTelnyxSender(baseURL, apiKey, from string, timeout time.Duration) *TelnyxSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TelnyxSender{
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type telnyxMessagePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendSMS posts one outbound message.
func (t *TelnyxSender) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(telnyxMessagePayload{
		From: t.from,
		To:   to,
		Text: body,
	})
	if err != nil {
		return fmt.Errorf("telnyx: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telnyx: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telnyx: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telnyx: send failed with status %d", resp.StatusCode)
	}
	return nil
}
