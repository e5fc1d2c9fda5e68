package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message sent to the completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

// Response is the provider's completion output. An empty Text with a nil
// error never happens: providers that return nothing surface an error so
// callers treat the provider as unavailable rather than as silent.
type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client produces chat completions. Implementations must honor the context
// deadline; the orchestrator calls with a bounded timeout and recovers any
// failure deterministically.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
