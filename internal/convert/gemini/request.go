package gemini

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
)

// ConvertChatToGeminiRequest implements §4.2.1: the three-pass pre-processing,
// the main conversion pass, and the three post-passes that sanitise the
// resulting contents[].
func ConvertChatToGeminiRequest(req *common.ChatCompletionRequest) *Request {
	completedToolCallIDs, toolUseIDs, validToolResultIDs, nameByID := prePass(req.Messages)

	var systemParts []Part
	var contents []Content

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			for _, t := range extractTexts(msg.Content) {
				if t != "" {
					systemParts = append(systemParts, Part{Text: t})
				}
			}
		case "assistant":
			var parts []Part
			parts = append(parts, textAndImageParts(msg.Content)...)
			for _, tc := range msg.ToolCalls {
				if !completedToolCallIDs[tc.ID] {
					continue
				}
				args := map[string]any{}
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				parts = append(parts, Part{FunctionCall: &FunctionCall{
					Name: tc.Function.Name,
					Args: args,
					ID:   tc.ID,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, Content{Role: "model", Parts: parts})
			}
		case "tool":
			if validToolResultIDs[msg.ToolCallID] && toolUseIDs[msg.ToolCallID] {
				name := msg.Name
				if name == "" {
					name = nameByID[msg.ToolCallID]
				}
				contents = append(contents, Content{Role: "user", Parts: []Part{{
					FunctionResponse: &FunctionResponse{
						Name:     name,
						ID:       msg.ToolCallID,
						Response: map[string]any{"result": rawContentToString(msg.Content)},
					},
				}}})
			}
		case "user":
			parts := userMessageParts(msg, toolUseIDs, validToolResultIDs, nameByID)
			if len(parts) > 0 {
				contents = append(contents, Content{Role: "user", Parts: parts})
			}
		}
	}

	contents = sanitiseOrphans(contents)
	contents = groupConsecutiveToolResultUsers(contents)
	contents = splitMixedModelMessages(contents)

	out := &Request{Contents: contents}
	if len(systemParts) > 0 {
		out.SystemInstruction = &Content{Parts: systemParts}
	}
	if gc := buildGenerationConfig(req); gc != nil {
		out.GenerationConfig = gc
	}
	if len(req.Tools) > 0 {
		out.Tools = []ToolDeclaration{{FunctionDeclarations: toolsToDeclarations(req.Tools)}}
	}
	return out
}

func toolsToDeclarations(tools []common.Tool) []FunctionDeclaration {
	decls := make([]FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return decls
}

func buildGenerationConfig(req *common.ChatCompletionRequest) *GenerationConfig {
	gc := &GenerationConfig{}
	hasAny := false
	if req.Temperature != nil {
		gc.Temperature = req.Temperature
		hasAny = true
	}
	if req.TopP != nil {
		gc.TopP = req.TopP
		hasAny = true
	}
	if req.MaxTokens != nil {
		gc.MaxOutputTokens = req.MaxTokens
		hasAny = true
	}
	if stops := parseStop(req.Stop); len(stops) > 0 {
		gc.StopSequences = stops
		hasAny = true
	}
	if tc := buildThinkingConfig(req); tc != nil {
		gc.ThinkingConfig = tc
		hasAny = true
	}
	if !hasAny {
		return nil
	}
	return gc
}

func parseStop(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		return multi
	}
	return nil
}

func buildThinkingConfig(req *common.ChatCompletionRequest) *ThinkingConfig {
	effort := req.ReasoningEffort
	var includeThoughts *bool
	var explicitBudget *int
	if req.Reasoning != nil {
		if req.Reasoning.Effort != "" {
			effort = req.Reasoning.Effort
		}
		explicitBudget = req.Reasoning.ThinkingBudget
		includeThoughts = req.Reasoning.IncludeThoughts
	}
	tc := &ThinkingConfig{}
	set := false
	if explicitBudget != nil {
		tc.ThinkingBudget = explicitBudget
		set = true
	} else if effort != "" {
		if budget, ok := common.EffortToBudget[effort]; ok {
			b := budget
			tc.ThinkingBudget = &b
			set = true
		}
	}
	if includeThoughts != nil {
		tc.IncludeThoughts = *includeThoughts
		set = true
	}
	if !set {
		return nil
	}
	return tc
}

// prePass builds the three id sets described in §4.2.1.
func prePass(messages []common.ChatMessage) (completed, toolUse, validResults map[string]bool, nameByID map[string]string) {
	completed = map[string]bool{}
	toolUse = map[string]bool{}
	nameByID = map[string]string{}
	validResults = map[string]bool{}

	for _, msg := range messages {
		if msg.Role == "assistant" {
			for _, tc := range msg.ToolCalls {
				toolUse[tc.ID] = true
				nameByID[tc.ID] = tc.Function.Name
			}
		}
		if msg.Role == "tool" && msg.ToolCallID != "" {
			completed[msg.ToolCallID] = true
		}
		if msg.Role == "user" {
			for _, part := range decodeContentParts(msg.Content) {
				if part.Type == "tool_result" && part.ToolUseID != "" {
					completed[part.ToolUseID] = true
				}
			}
		}
	}

	openSet := map[string]bool{}
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			openSet = map[string]bool{}
		case "assistant":
			openSet = map[string]bool{}
			for _, tc := range msg.ToolCalls {
				openSet[tc.ID] = true
			}
		case "tool":
			if openSet[msg.ToolCallID] {
				validResults[msg.ToolCallID] = true
			}
		case "user":
			ids, isToolResult := userToolResultIDs(msg)
			if isToolResult {
				for _, id := range ids {
					if openSet[id] {
						validResults[id] = true
					}
				}
			} else {
				openSet = map[string]bool{}
			}
		}
	}
	return completed, toolUse, validResults, nameByID
}

func userToolResultIDs(msg common.ChatMessage) (ids []string, isToolResult bool) {
	parts := decodeContentParts(msg.Content)
	if len(parts) == 0 {
		return nil, false
	}
	found := false
	for _, p := range parts {
		if p.Type == "tool_result" && p.ToolUseID != "" {
			ids = append(ids, p.ToolUseID)
			found = true
		}
	}
	return ids, found
}

func decodeContentParts(raw json.RawMessage) []common.ContentPart {
	if len(raw) == 0 {
		return nil
	}
	var parts []common.ContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		return parts
	}
	return nil
}

func extractTexts(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var texts []string
	for _, p := range decodeContentParts(raw) {
		if p.Type == "text" || (p.Type == "" && p.Text != "") {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

func rawContentToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	texts := extractTexts(raw)
	return strings.Join(texts, "")
}

// textAndImageParts converts a message's content into text/inlineData/fileData
// parts, keeping only non-empty text.
func textAndImageParts(raw json.RawMessage) []Part {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []Part{{Text: s}}
	}
	var out []Part
	for _, p := range decodeContentParts(raw) {
		switch p.Type {
		case "text":
			if p.Text != "" {
				out = append(out, Part{Text: p.Text})
			}
		case "image_url":
			if p.ImageURL == nil {
				continue
			}
			url := p.ImageURL.URL
			if strings.HasPrefix(url, "data:") {
				mime, data := parseDataURL(url)
				out = append(out, Part{InlineData: &InlineData{MimeType: mime, Data: data}})
			} else if url != "" {
				out = append(out, Part{FileData: &FileData{FileURI: url}})
			}
		}
	}
	return out
}

func parseDataURL(url string) (mimeType, data string) {
	// data:<mime>;base64,<data>
	rest := strings.TrimPrefix(url, "data:")
	semi := strings.Index(rest, ";")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return "application/octet-stream", ""
	}
	if semi >= 0 && semi < comma {
		mimeType = rest[:semi]
	} else {
		mimeType = rest[:comma]
	}
	data = rest[comma+1:]
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		// still forward as-is; upstream will reject malformed payloads,
		// matching the source's lack of client-side validation here.
		_ = err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType, data
}

func userMessageParts(msg common.ChatMessage, toolUseIDs, validToolResultIDs map[string]bool, nameByID map[string]string) []Part {
	parts := decodeContentParts(msg.Content)
	if len(parts) == 0 {
		return textAndImageParts(msg.Content)
	}
	var out []Part
	for _, p := range parts {
		switch p.Type {
		case "text":
			if p.Text != "" {
				out = append(out, Part{Text: p.Text})
			}
		case "image_url":
			if p.ImageURL == nil {
				continue
			}
			url := p.ImageURL.URL
			if strings.HasPrefix(url, "data:") {
				mime, data := parseDataURL(url)
				out = append(out, Part{InlineData: &InlineData{MimeType: mime, Data: data}})
			} else if url != "" {
				out = append(out, Part{FileData: &FileData{FileURI: url}})
			}
		case "tool_result":
			id := p.ToolUseID
			if !validToolResultIDs[id] || !toolUseIDs[id] {
				continue
			}
			out = append(out, Part{FunctionResponse: &FunctionResponse{
				Name:     nameByID[id],
				ID:       id,
				Response: map[string]any{"result": rawContentToString(p.Content)},
			}})
		}
	}
	return out
}

// sanitiseOrphans drops functionCall/functionResponse parts whose matching
// id is missing or whose response does not strictly follow the call, then
// drops any message left with empty parts.
func sanitiseOrphans(contents []Content) []Content {
	type pos struct{ msgIdx int }
	callPos := map[string]pos{}
	respPos := map[string]pos{}
	for mi, c := range contents {
		for _, p := range c.Parts {
			if p.FunctionCall != nil && p.FunctionCall.ID != "" {
				callPos[p.FunctionCall.ID] = pos{mi}
			}
			if p.FunctionResponse != nil && p.FunctionResponse.ID != "" {
				respPos[p.FunctionResponse.ID] = pos{mi}
			}
		}
	}
	validID := func(id string) bool {
		cp, hasCall := callPos[id]
		rp, hasResp := respPos[id]
		return hasCall && hasResp && rp.msgIdx > cp.msgIdx
	}

	var out []Content
	for _, c := range contents {
		var keep []Part
		for _, p := range c.Parts {
			if p.FunctionCall != nil && p.FunctionCall.ID != "" && !validID(p.FunctionCall.ID) {
				continue
			}
			if p.FunctionResponse != nil && p.FunctionResponse.ID != "" && !validID(p.FunctionResponse.ID) {
				continue
			}
			keep = append(keep, p)
		}
		if len(keep) == 0 {
			continue
		}
		out = append(out, Content{Role: c.Role, Parts: keep})
	}
	return out
}

func hasFunctionResponse(c Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse != nil {
			return true
		}
	}
	return false
}

func hasFunctionCall(c Content) bool {
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			return true
		}
	}
	return false
}

// groupConsecutiveToolResultUsers merges consecutive user messages that
// contain functionResponse parts into a single user message (Claude-behind-
// Gemini requires all tool_result blocks for one assistant batch together).
func groupConsecutiveToolResultUsers(contents []Content) []Content {
	var out []Content
	for _, c := range contents {
		if c.Role == "user" && hasFunctionResponse(c) && len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Role == "user" && hasFunctionResponse(*prev) {
				prev.Parts = append(prev.Parts, c.Parts...)
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// splitMixedModelMessages splits a model message that mixes text/thought
// with functionCall parts into two messages (text first), and drops text
// parts from user messages carrying functionResponse parts.
func splitMixedModelMessages(contents []Content) []Content {
	var out []Content
	for _, c := range contents {
		if c.Role == "user" && hasFunctionResponse(c) {
			var kept []Part
			for _, p := range c.Parts {
				if p.Text != "" && p.FunctionCall == nil && p.FunctionResponse == nil {
					continue
				}
				kept = append(kept, p)
			}
			out = append(out, Content{Role: c.Role, Parts: kept})
			continue
		}
		if c.Role == "model" && hasFunctionCall(c) {
			var textThought, calls []Part
			for _, p := range c.Parts {
				if p.FunctionCall != nil {
					calls = append(calls, p)
				} else {
					textThought = append(textThought, p)
				}
			}
			if len(textThought) > 0 {
				out = append(out, Content{Role: "model", Parts: textThought})
			}
			if len(calls) > 0 {
				out = append(out, Content{Role: "model", Parts: calls})
			}
			continue
		}
		out = append(out, c)
	}
	return out
}
