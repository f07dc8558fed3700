package chat

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseError reports that no JSON object could be recovered from a model
// completion.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse completion: " + e.Reason }

// ExtractJSON recovers a JSON object from a model completion. The raw text
// is tried as-is first; models often wrap the object in prose or code
// fences, so the fallback takes the outermost brace-delimited span.
func ExtractJSON(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, &ParseError{Reason: "no valid JSON found"}
	}

	candidate := trimmed[start : end+1]
	if !gjson.Valid(candidate) {
		return nil, &ParseError{Reason: "no valid JSON found"}
	}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, &ParseError{Reason: "no valid JSON found"}
	}
	return obj, nil
}
