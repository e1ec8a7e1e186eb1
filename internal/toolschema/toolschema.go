// Package toolschema implements C5: a per-request cache of tool parameter
// schemas and the normalizeToolCallArgs re-serialisation rules that depend
// on it.
package toolschema

import (
	"encoding/json"
	"strings"
)

// ParamType is the JSON-schema type bucket that drives re-serialisation.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeArray  ParamType = "array"
	TypeObject ParamType = "object"
	TypeOther  ParamType = "other"
)

// Schema maps a tool's parameter names to their declared JSON-schema type.
type Schema map[string]ParamType

// Cache is a per-request map: toolName -> Schema. Build one per inbound
// request from the `tools[]` the caller supplied, then pass it through the
// conversion pipeline so NormalizeToolCallArgs can consult it.
type Cache struct {
	schemas map[string]Schema
}

// NewCache builds an empty per-request schema cache.
func NewCache() *Cache {
	return &Cache{schemas: make(map[string]Schema)}
}

// Put records a tool's parameter schema, extracted from an OpenAI
// `{type:"function", function:{name, parameters:{properties:{...}}}}` tool
// declaration's JSON-schema `parameters.properties`.
func (c *Cache) Put(toolName string, propertiesJSON json.RawMessage) {
	var props map[string]struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(propertiesJSON, &props); err != nil {
		return
	}
	schema := make(Schema, len(props))
	for name, p := range props {
		switch p.Type {
		case "string":
			schema[name] = TypeString
		case "array":
			schema[name] = TypeArray
		case "object":
			schema[name] = TypeObject
		default:
			schema[name] = TypeOther
		}
	}
	c.schemas[toolName] = schema
}

// Lookup returns the recorded type for (toolName, paramName), or TypeOther
// if the tool or parameter is unknown.
func (c *Cache) Lookup(toolName, paramName string) ParamType {
	schema, ok := c.schemas[toolName]
	if !ok {
		return TypeOther
	}
	t, ok := schema[paramName]
	if !ok {
		return TypeOther
	}
	return t
}

// unescapeControlChars undoes literal "\n"/"\t"/"\r" two-character escape
// sequences without treating the value as JSON. This is the "do NOT
// re-parse" path for string-typed fields.
func unescapeControlChars(s string) string {
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\r`, "\r",
	)
	return replacer.Replace(s)
}

// NormalizeToolCallArgs re-serialises a raw arguments value field-by-field
// according to the cached schema for toolName:
//   - string fields: control-char unescape only, never JSON-parsed.
//   - array/object fields whose current value is a string: JSON.parse it;
//     on failure fall back to control-char unescape.
//   - anything else: control-char unescape only.
//
// args is the decoded arguments object (already parsed from the upstream
// functionCall.args or a prior JSON.parse of the raw string); the returned
// map is safe to json.Marshal for the OpenAI tool_calls[].function.arguments
// string.
func NormalizeToolCallArgs(toolName string, args map[string]any, cache *Cache) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for field, value := range args {
		paramType := TypeOther
		if cache != nil {
			paramType = cache.Lookup(toolName, field)
		}
		strValue, isString := value.(string)
		switch {
		case paramType == TypeString:
			if isString {
				out[field] = unescapeControlChars(strValue)
			} else {
				out[field] = value
			}
		case (paramType == TypeArray || paramType == TypeObject) && isString:
			var parsed any
			if err := json.Unmarshal([]byte(strValue), &parsed); err == nil {
				out[field] = parsed
			} else {
				out[field] = unescapeControlChars(strValue)
			}
		default:
			if isString {
				out[field] = unescapeControlChars(strValue)
			} else {
				out[field] = value
			}
		}
	}
	return out
}
