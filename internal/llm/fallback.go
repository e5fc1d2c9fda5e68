package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// ErrUnavailable signals that no completion provider produced usable output.
// Callers fall back to deterministic behavior; this error never reaches the
// caller on the phone.
var ErrUnavailable = errors.New("llm: provider unavailable")

// FallbackClient wraps a primary client with an optional fallback provider.
// If the primary fails or returns empty text, it retries with the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. A nil fallback means
// only the primary is used.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Complete tries the primary provider, then the fallback. An empty response
// is treated as a failure, never as a valid empty answer.
func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) != "" {
		return resp, nil
	}
	if err == nil {
		err = ErrUnavailable
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}
	if strings.TrimSpace(fallbackResp.Text) == "" {
		return Response{}, ErrUnavailable
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}

// TimeoutClient bounds every completion with its own deadline. A stalled
// model must never hold a live phone call; callers recover from the timeout
// the same way they recover from any provider error.
type TimeoutClient struct {
	Client  Client
	Timeout time.Duration
}

// Complete delegates with a deadline applied.
func (t TimeoutClient) Complete(ctx context.Context, req Request) (Response, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	return t.Client.Complete(ctx, req)
}

// ModelOverride rewrites the request model before delegating, so a fallback
// path can target a different model than the primary asked for.
type ModelOverride struct {
	Client Client
	Model  string
}

// Complete delegates with the overridden model.
func (m ModelOverride) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(m.Model) != "" {
		req.Model = m.Model
	}
	return m.Client.Complete(ctx, req)
}

// StubClient returns canned responses for tests and local development.
type StubClient struct {
	Responses []string
	Err       error
	calls     int

	// Requests records what was asked, for assertions.
	Requests []Request
}

// Complete pops the next canned response.
func (s *StubClient) Complete(ctx context.Context, req Request) (Response, error) {
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return Response{}, s.Err
	}
	if len(s.Responses) == 0 {
		return Response{}, ErrUnavailable
	}
	idx := s.calls
	if idx >= len(s.Responses) {
		idx = len(s.Responses) - 1
	}
	s.calls++
	return Response{Text: s.Responses[idx], StopReason: "end_turn"}, nil
}
