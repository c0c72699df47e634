package validation

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pageforge/pageforge/pkg/schema"
)

// ExtractJSON pulls the JSON document out of a generator reply. Models wrap
// JSON in markdown fences or conversational framing; this strips both and
// returns the first syntactically valid object or array.
func ExtractJSON(reply string) ([]byte, error) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty generator reply")
	}

	// Fast path: the whole reply is already JSON.
	if gjson.Valid(s) && isDocument(s) {
		return []byte(s), nil
	}

	// Fenced block: ```json ... ``` or plain ``` ... ```.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if gjson.Valid(candidate) && isDocument(candidate) {
				return []byte(candidate), nil
			}
		}
	}

	// Last resort: widest brace-delimited slice.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		candidate := s[start : end+1]
		if gjson.Valid(candidate) {
			return []byte(candidate), nil
		}
	}

	return nil, schema.NewError(schema.ErrCodeValidation, "generator reply contains no valid JSON document")
}

func isDocument(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
