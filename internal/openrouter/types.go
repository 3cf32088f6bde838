package openrouter

import "encoding/json"

// Model represents an OpenRouter catalog model.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ContextLength *int   `json:"context_length,omitempty"`
}

// modelsEnvelope lets ListModels tell a missing data array from an empty one.
type modelsEnvelope struct {
	Data json.RawMessage `json:"data"`
}
