// Package responses implements the C6 converters between OpenAI
// chat.completions and the OpenAI Responses API (Codex's wire format),
// including the pull-based transducer from Responses SSE events to
// chat.completions SSE chunks.
package responses

import "encoding/json"

// Item is one element of a Responses API `input[]`/`output[]` array.
type Item struct {
	Type    string          `json:"type"`
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	ID      string          `json:"id,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output  string          `json:"output,omitempty"`
}

// Tool is a Responses API function tool declaration (flat, unlike the
// nested `{type:"function", function:{...}}` chat.completions shape).
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request is the converted Responses API request body.
type Request struct {
	Model        string   `json:"model"`
	Input        []Item   `json:"input"`
	Instructions string   `json:"instructions,omitempty"`
	Tools        []Tool   `json:"tools,omitempty"`
	Store        bool     `json:"store"`
	Stream       bool     `json:"stream,omitempty"`
	Include      []string `json:"include,omitempty"`
	Reasoning    *ReasoningParam `json:"reasoning,omitempty"`
}

// ReasoningParam carries the requested reasoning effort.
type ReasoningParam struct {
	Effort string `json:"effort,omitempty"`
}

const defaultInstructions = "You are Codex, an expert coding assistant."
