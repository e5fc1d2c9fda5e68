package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-voice-agent/internal/http/handlers"
	"github.com/wolfman30/clinic-voice-agent/internal/turn"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, in turn.Input) (turn.Output, error) {
	return turn.Output{Reply: "hello " + in.CallID, Action: turn.ActionSpeak}, nil
}

func newTestRouter() http.Handler {
	return New(&Config{
		Logger: logging.Default(),
		VoiceTurn: handlers.NewVoiceTurnHandler(handlers.VoiceTurnHandlerConfig{
			Processor: stubProcessor{},
			Logger:    logging.Default(),
		}),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestMetricsRouteMounted(t *testing.T) {
	srv := httptest.NewServer(newTestRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVoiceTurnRoute(t *testing.T) {
	srv := httptest.NewServer(newTestRouter())
	defer srv.Close()

	body := []byte(`{"call_id":"call-1","speech":"hi"}`)
	resp, err := http.Post(srv.URL+"/webhooks/voice/turn", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVoiceTurnRouteRateLimited(t *testing.T) {
	r := New(&Config{
		Logger: logging.Default(),
		VoiceTurn: handlers.NewVoiceTurnHandler(handlers.VoiceTurnHandlerConfig{
			Processor: stubProcessor{},
			Logger:    logging.Default(),
		}),
		WebhookRateLimit: 1,
		WebhookBurst:     1,
	})
	// Both requests belong to the same call, so they share one bucket.
	body := `{"call_id":"call-2","speech":"hi"}`
	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", bytes.NewReader([]byte(body))))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/webhooks/voice/turn", bytes.NewReader([]byte(body))))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
