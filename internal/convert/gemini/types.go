// Package gemini implements the C6 converters between OpenAI chat.completions
// and the Gemini Code Assist RPC wire format, including the Claude-routed
// and Gemini-routed envelopes and both response transform directions.
package gemini

import "encoding/json"

// Part is one element of a Content's parts[] array. It is a tagged union in
// spirit (§9 design notes); MarshalJSON/UnmarshalJSON flatten it to the
// single-key-populated object shape Gemini expects on the wire.
type Part struct {
	Text             string
	Thought          bool
	FunctionCall     *FunctionCall
	FunctionResponse *FunctionResponse
	InlineData       *InlineData
	FileData         *FileData
	ThoughtSignature string
}

// FunctionCall is a model-issued tool invocation part.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id,omitempty"`
}

// FunctionResponse is a tool-result part answering a FunctionCall.
type FunctionResponse struct {
	Name     string         `json:"name"`
	ID       string         `json:"id,omitempty"`
	Response map[string]any `json:"response"`
}

// InlineData is a base64-embedded image/file part.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FileData references an externally hosted file by URI.
type FileData struct {
	FileURI string `json:"fileUri"`
}

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
}

// MarshalJSON flattens Part to whichever single field is populated.
func (p Part) MarshalJSON() ([]byte, error) {
	w := wirePart{
		Text:             p.Text,
		Thought:          p.Thought,
		FunctionCall:     p.FunctionCall,
		FunctionResponse: p.FunctionResponse,
		InlineData:       p.InlineData,
		FileData:         p.FileData,
		ThoughtSignature: p.ThoughtSignature,
	}
	return json.Marshal(w)
}

// UnmarshalJSON reverses MarshalJSON, used when parsing a Gemini response.
func (p *Part) UnmarshalJSON(data []byte) error {
	var w wirePart
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Text = w.Text
	p.Thought = w.Thought
	p.FunctionCall = w.FunctionCall
	p.FunctionResponse = w.FunctionResponse
	p.InlineData = w.InlineData
	p.FileData = w.FileData
	p.ThoughtSignature = w.ThoughtSignature
	return nil
}

// IsEmpty reports whether none of Part's fields carry content.
func (p Part) IsEmpty() bool {
	return p.Text == "" && !p.Thought && p.FunctionCall == nil && p.FunctionResponse == nil &&
		p.InlineData == nil && p.FileData == nil
}

// Content is one role-tagged turn of a Gemini conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// ThinkingConfig mirrors Gemini's generationConfig.thinkingConfig.
type ThinkingConfig struct {
	ThinkingBudget  *int  `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool  `json:"includeThoughts,omitempty"`
}

// GenerationConfig is the OpenAI sampling-params mapping target.
type GenerationConfig struct {
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	MaxOutputTokens *int            `json:"maxOutputTokens,omitempty"`
	StopSequences   []string        `json:"stopSequences,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// FunctionDeclaration is one tool exposed to the model.
type FunctionDeclaration struct {
	Name                  string          `json:"name"`
	Description           string          `json:"description,omitempty"`
	Parameters            json.RawMessage `json:"parameters,omitempty"`
	ParametersJSONSchema  json.RawMessage `json:"parametersJsonSchema,omitempty"`
}

// ToolDeclaration wraps a batch of FunctionDeclarations.
type ToolDeclaration struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// Request is the converted Gemini Code Assist request payload (pre-envelope).
type Request struct {
	Contents          []Content          `json:"contents"`
	SystemInstruction *Content           `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []ToolDeclaration  `json:"tools,omitempty"`
	ToolConfig        *ToolConfig        `json:"toolConfig,omitempty"`
}

// ToolConfig controls function-calling mode, forced to VALIDATED in the
// Claude-routed envelope.
type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

// FunctionCallingConfig carries the function-calling Mode string.
type FunctionCallingConfig struct {
	Mode string `json:"mode"`
}

// Envelope wraps a converted Request for either Claude-behind-Gemini or
// native Gemini routing (§4.2.2).
type Envelope struct {
	Project     string  `json:"project,omitempty"`
	Model       string  `json:"model"`
	UserAgent   string  `json:"userAgent"`
	RequestType string  `json:"requestType"`
	RequestID   string  `json:"requestId"`
	SessionID   string  `json:"sessionId"`
	Request     Request `json:"request"`
}

// UsageMetadata is the Gemini response usage block.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Candidate is one entry of a Gemini response's candidates[].
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Response is a (possibly envelope-wrapped) Gemini response frame.
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}
