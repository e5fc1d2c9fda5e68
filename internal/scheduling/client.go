package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Backend is what the booking flow needs from the clinic scheduling system.
type Backend interface {
	FindCandidates(ctx context.Context, phone string) ([]Patient, error)
	SearchSlots(ctx context.Context, q SlotQuery) ([]Slot, error)
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error)
}

// ErrNoConfirmationID is returned when the backend accepted a create request
// but did not return a confirmation identifier. The booking coordinator
// treats this exactly like a failure.
var ErrNoConfirmationID = errors.New("scheduling: create succeeded without confirmation id")

// Client talks to the clinic scheduling backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a scheduling client with a bounded request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FindCandidates looks up patient records registered against a phone number.
func (c *Client) FindCandidates(ctx context.Context, phone string) ([]Patient, error) {
	var out struct {
		Patients []Patient `json:"patients"`
	}
	endpoint := "/v1/patients?phone=" + url.QueryEscape(phone)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("scheduling: find candidates: %w", err)
	}
	return out.Patients, nil
}

// SearchSlots returns bookable openings in a range.
func (c *Client) SearchSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	var out struct {
		Slots []Slot `json:"slots"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/slots/search", q, &out); err != nil {
		return nil, fmt.Errorf("scheduling: search slots: %w", err)
	}
	return out.Slots, nil
}

// CreateAppointment books one appointment. A 2xx response without an id in
// the body is an error, not a success.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPost, "/v1/appointments", req, &out); err != nil {
		return nil, fmt.Errorf("scheduling: create appointment: %w", err)
	}
	if out.ID == "" {
		return nil, ErrNoConfirmationID
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("scheduling backend error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
