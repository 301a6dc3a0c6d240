package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultHuggingFaceBaseURL = "https://api-inference.huggingface.co"
	DefaultHuggingFaceModel   = "HuggingFaceH4/zephyr-7b-beta"
)

// huggingFaceAdapter flattens the conversation into a single text prompt for
// a hosted text-generation model.
type huggingFaceAdapter struct {
	endpoint string
	params   GenerationParams
}

// NewHuggingFaceAdapter returns the prompt-flattening adapter for model.
// Empty baseURL or model select the package defaults.
func NewHuggingFaceAdapter(baseURL, model string, params GenerationParams) Adapter {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	return &huggingFaceAdapter{
		endpoint: strings.TrimRight(baseURL, "/") + "/models/" + strings.Trim(model, "/"),
		params:   params,
	}
}

func (a *huggingFaceAdapter) Name() string     { return "huggingface" }
func (a *huggingFaceAdapter) Label() string    { return "Hugging Face" }
func (a *huggingFaceAdapter) Endpoint() string { return a.endpoint }

func (a *huggingFaceAdapter) ParseRequest(raw []byte) (*ChatRequest, error) {
	return decodeRequest(raw)
}

func (a *huggingFaceAdapter) BuildRequest(_ []byte, req *ChatRequest) ([]byte, error) {
	payload, err := json.Marshal(hfGenerateRequest{
		Inputs:     flattenPrompt(req.Messages),
		Parameters: a.params,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal huggingface request: %w", err)
	}
	return payload, nil
}

// ParseResponse takes the first generation when the upstream returns a list
// of them, otherwise the whole body becomes the reply text.
func (a *huggingFaceAdapter) ParseResponse(body []byte) ([]byte, error) {
	text := strings.TrimSpace(string(body))

	if parsed := gjson.ParseBytes(body); parsed.IsArray() {
		if generated := parsed.Get("0.generated_text"); generated.Type == gjson.String {
			text = generated.String()
		}
	}

	out, err := json.Marshal(ChatResponse{
		Choices: []Choice{
			{Message: Message{Role: RoleAssistant, Content: text}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal chat response: %w", err)
	}
	return out, nil
}

// flattenPrompt renders "<Role>: <content>\n" per message.
func flattenPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(capitalize(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// capitalize upper-cases the first rune of s and lower-cases the rest, so
// "ASSISTANT" and "system admin" become "Assistant" and "System admin".
func capitalize(s string) string {
	_, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	// Casers keep state between calls and are not shared across goroutines.
	return cases.Upper(language.Und).String(s[:size]) + cases.Lower(language.Und).String(s[size:])
}
