package llm

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const DefaultOpenAIBaseURL = "https://api.openai.com"

// openAIAdapter forwards the inbound body untouched; the frontend already
// speaks the chat-completions format.
type openAIAdapter struct {
	endpoint string
}

// NewOpenAIAdapter returns the pass-through adapter. An empty baseURL selects
// DefaultOpenAIBaseURL.
func NewOpenAIAdapter(baseURL string) Adapter {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &openAIAdapter{
		endpoint: strings.TrimRight(baseURL, "/") + "/v1/chat/completions",
	}
}

func (a *openAIAdapter) Name() string     { return "openai" }
func (a *openAIAdapter) Label() string    { return "OpenAI" }
func (a *openAIAdapter) Endpoint() string { return a.endpoint }

// ParseRequest only checks that model and messages are present. Message
// contents are left for the upstream to judge.
func (a *openAIAdapter) ParseRequest(raw []byte) (*ChatRequest, error) {
	obj, err := parseObject(raw, "model", "messages")
	if err != nil {
		return nil, err
	}

	model := obj.Get("model")
	if model.Type != gjson.String || strings.TrimSpace(model.String()) == "" {
		return nil, invalidRequest("model must be a non-empty string", nil)
	}
	return &ChatRequest{Model: model.String()}, nil
}

func (a *openAIAdapter) BuildRequest(raw []byte, _ *ChatRequest) ([]byte, error) {
	return raw, nil
}

func (a *openAIAdapter) ParseResponse(body []byte) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, &UpstreamError{
			Provider:   a.Name(),
			Label:      a.Label(),
			StatusCode: http.StatusBadGateway,
			Body:       string(body),
		}
	}
	return body, nil
}
