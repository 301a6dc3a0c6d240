package llm

// GenerationParams are the fixed sampling settings sent to text-generation
// endpoints.
type GenerationParams struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

// DefaultGenerationParams mirrors the values the frontend was tuned against.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		MaxNewTokens: 512,
		Temperature:  0.7,
		TopP:         0.95,
	}
}

// Request shape for the Hugging Face inference API.
type hfGenerateRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters GenerationParams `json:"parameters"`
}
