package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content"`
}

// ChatRequest is the inbound payload. Pass-through adapters only fill Model;
// the rest of the body is forwarded without being decoded.
type ChatRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages" validate:"required,min=1,dive"`
}

type Choice struct {
	Message Message `json:"message"`
}

// ChatResponse is the envelope every adapter hands back to the frontend.
type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

// Adapter translates between the relay's request/response shapes and one
// upstream provider. Implementations must be safe for concurrent use.
type Adapter interface {
	// Name is the short provider identifier used in logs and metrics.
	Name() string
	// Label is the human-readable provider name used in error details.
	Label() string
	// Endpoint is the absolute URL the relay POSTs to.
	Endpoint() string
	// ParseRequest validates the inbound body and extracts what BuildRequest
	// needs. Failures are *ValidationError.
	ParseRequest(raw []byte) (*ChatRequest, error)
	// BuildRequest returns the outbound JSON payload. raw is the inbound body.
	BuildRequest(raw []byte, req *ChatRequest) ([]byte, error)
	// ParseResponse turns a 2xx upstream body into the JSON sent to the caller.
	ParseResponse(body []byte) ([]byte, error)
}

// Client forwards one inbound chat body upstream and returns the response body.
type Client interface {
	Forward(ctx context.Context, body []byte) ([]byte, error)
}
