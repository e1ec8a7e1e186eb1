package gemini

import (
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
)

// antigravityBaseSystemInstruction is injected as the first system
// instruction part for Claude-routed requests.
const antigravityBaseSystemInstruction = "You are an AI coding assistant, powered by a large language model accessed through Google's Antigravity Code Assist gateway."

// NewRequestID builds a fresh agent-<uuid> request id for the Code Assist
// envelope (GLOSSARY: Request id).
func NewRequestID() string {
	return "agent-" + uuid.NewString()
}

// DeriveSessionID builds the GLOSSARY "Session id": a stable per-conversation
// identifier derived by SHA-256 over the first user message's text,
// formatted as a UUID, so the same conversation always lands on the same
// sessionId/signature-cache key across every turn (unlike a fresh
// uuid.NewString() per call, which would make thought-signature continuity
// impossible).
func DeriveSessionID(messages []common.ChatMessage) string {
	var text string
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		texts := extractTexts(m.Content)
		text = strings.Join(texts, "\n")
		break
	}
	sum := sha256.Sum256([]byte(text))
	var id uuid.UUID
	copy(id[:], sum[:16])
	return id.String()
}

// routesToClaude reports whether modelName should receive the Claude-routed
// envelope treatment (§4.2.2).
func routesToClaude(modelName string) bool {
	lower := strings.ToLower(modelName)
	return strings.Contains(lower, "claude") || strings.Contains(lower, "gemini-3-pro") || strings.Contains(lower, "gemini-3-flash")
}

// BuildEnvelope wraps req for upstream delivery, applying the Claude-routed
// or Gemini-routed treatment depending on modelName.
func BuildEnvelope(project, modelName, sessionID string, req *Request, sigCache signatureLookup) *Envelope {
	if routesToClaude(modelName) {
		applyClaudeEnvelopeTransforms(req)
	} else {
		applyGeminiEnvelopeTransforms(req, sessionID, sigCache)
	}
	return &Envelope{
		Project:     project,
		Model:       modelName,
		UserAgent:   "antigravity",
		RequestType: "agent",
		RequestID:   NewRequestID(),
		SessionID:   sessionID,
		Request:     *req,
	}
}

// signatureLookup is the subset of *signature.Cache BuildEnvelope needs; a
// narrow interface keeps this package free of a direct dependency on the
// signature cache's storage details.
type signatureLookup interface {
	Get(family, sessionID, textKey string) (string, bool)
}

func applyClaudeEnvelopeTransforms(req *Request) {
	instr := Content{Parts: []Part{{Text: antigravityBaseSystemInstruction}}}
	if req.SystemInstruction == nil {
		req.SystemInstruction = &instr
	} else {
		req.SystemInstruction.Parts = append([]Part{{Text: antigravityBaseSystemInstruction}}, req.SystemInstruction.Parts...)
	}

	req.ToolConfig = &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "VALIDATED"}}

	if req.GenerationConfig != nil && req.GenerationConfig.ThinkingConfig != nil {
		tc := req.GenerationConfig.ThinkingConfig
		if tc.ThinkingBudget == nil {
			budget := 16384
			tc.ThinkingBudget = &budget
		}
		tc.IncludeThoughts = true
		maxTokens := 64000
		req.GenerationConfig.MaxOutputTokens = &maxTokens
	}

	for i := range req.Tools {
		for j := range req.Tools[i].FunctionDeclarations {
			fd := &req.Tools[i].FunctionDeclarations[j]
			fd.Parameters = rewriteSchemaToClaudeShape(fd.ParametersJSONSchema, fd.Parameters)
			fd.ParametersJSONSchema = nil
			if len(fd.Name) > 0 && fd.Name[0] >= '0' && fd.Name[0] <= '9' {
				fd.Name = "t_" + fd.Name
			}
		}
	}

	inheritMissingFunctionResponseIDs(req.Contents)
	req.Contents = sanitiseOrphans(req.Contents)
	req.Contents = dropEmptyTextParts(req.Contents)
}

func rewriteSchemaToClaudeShape(jsonSchema, parameters json.RawMessage) json.RawMessage {
	src := jsonSchema
	if len(src) == 0 {
		src = parameters
	}
	if len(src) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(src, &m); err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	delete(m, "$schema")
	if _, ok := m["type"]; !ok {
		m["type"] = json.RawMessage(`"object"`)
	}
	if _, ok := m["properties"]; !ok {
		m["properties"] = json.RawMessage(`{}`)
	}
	out, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return out
}

// inheritMissingFunctionResponseIDs tracks call ids so a functionResponse
// part lacking one can inherit it from the nearest preceding functionCall
// with the same tool name.
func inheritMissingFunctionResponseIDs(contents []Content) {
	lastIDByName := map[string]string{}
	for i := range contents {
		for j := range contents[i].Parts {
			p := &contents[i].Parts[j]
			if p.FunctionCall != nil {
				lastIDByName[p.FunctionCall.Name] = p.FunctionCall.ID
			}
			if p.FunctionResponse != nil && p.FunctionResponse.ID == "" {
				if id, ok := lastIDByName[p.FunctionResponse.Name]; ok {
					p.FunctionResponse.ID = id
				}
			}
		}
	}
}

func dropEmptyTextParts(contents []Content) []Content {
	var out []Content
	for _, c := range contents {
		var kept []Part
		for _, p := range c.Parts {
			if p.Text == "" && p.FunctionCall == nil && p.FunctionResponse == nil && p.InlineData == nil && p.FileData == nil {
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, Content{Role: c.Role, Parts: kept})
	}
	return out
}

// toolHardeningSystemInstruction is injected (idempotently) whenever the
// Gemini-routed request carries function declarations.
const toolHardeningSystemInstruction = "When calling tools, always wait for the tool result before continuing; never fabricate a tool's output."

func applyGeminiEnvelopeTransforms(req *Request, sessionID string, sigCache signatureLookup) {
	if len(req.Tools) > 0 {
		injectIdempotent(req, toolHardeningSystemInstruction)
	}

	for i := range req.Contents {
		if req.Contents[i].Role != "model" {
			continue
		}
		var kept []Part
		for _, p := range req.Contents[i].Parts {
			if p.Thought {
				textKey := textKeyFn(p.Text)
				if sigCache != nil {
					if sig, ok := sigCache.Get("gemini", sessionID, textKey); ok {
						p.ThoughtSignature = sig
						kept = append(kept, p)
					}
					// no cached signature: drop the thought part entirely.
					continue
				}
				continue
			}
			if p.FunctionCall != nil && p.ThoughtSignature == "" {
				p.ThoughtSignature = skipThoughtSignatureSentinel
			}
			kept = append(kept, p)
		}
		req.Contents[i].Parts = kept
	}
}

// skipThoughtSignatureSentinel mirrors signature.SentinelSkipValidation
// without importing the signature package directly (kept decoupled so this
// package has no dependency on C4's TTL machinery, only its lookup).
const skipThoughtSignatureSentinel = "skip_thought_signature_validator"

// textKeyFn mirrors signature.TextKey without importing the signature
// package, for the same decoupling reason as the sentinel above.
func textKeyFn(text string) string {
	runes := []rune(text)
	n := len(runes)
	prefix := runes
	if n > 100 {
		prefix = runes[:100]
	}
	b := strings.Builder{}
	b.WriteString(string(prefix))
	b.WriteString("::")
	b.WriteString(itoaLocal(n))
	return b.String()
}

func itoaLocal(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func injectIdempotent(req *Request, instruction string) {
	if req.SystemInstruction == nil {
		req.SystemInstruction = &Content{Parts: []Part{{Text: instruction}}}
		return
	}
	for _, p := range req.SystemInstruction.Parts {
		if p.Text == instruction {
			return
		}
	}
	req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, Part{Text: instruction})
}
