package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON extracts the first complete JSON object from text that may
// contain extra prose. LLMs add explanations before and after the JSON
// despite instructions; this keeps the adapters robust to it.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escape {
			escape = false
			continue
		}
		switch ch {
		case '\\':
			escape = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				braceCount++
			}
		case '}':
			if !inString {
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return text[start:]
}

// parseInto unmarshals the JSON object embedded in a completion into dst.
func parseInto(completion string, dst any) error {
	raw := extractJSON(completion)
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
