package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON extracts the first balanced JSON object or array from text
// that may contain surrounding prose or markdown fences. LLMs add
// explanations around the JSON despite instructions; the parser has to cope.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	start := objStart
	open, close := byte('{'), byte('}')
	if start == -1 || (arrStart != -1 && arrStart < objStart) {
		start = arrStart
		open, close = '[', ']'
	}
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// parseJSONResponse extracts and unmarshals a JSON payload from an LLM
// response into out.
func parseJSONResponse(text string, out interface{}) error {
	clean := extractJSON(text)
	if err := json.Unmarshal([]byte(clean), out); err != nil {
		return fmt.Errorf("llm: failed to parse response JSON: %w", err)
	}
	return nil
}
