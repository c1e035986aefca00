package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject pulls the first JSON object out of model output. Models
// sometimes wrap JSON in markdown fences or add prose around it.
func ExtractJSONObject(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrInvalidResponse)
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("%w: output is not valid JSON", ErrInvalidResponse)
	}
	return []byte(candidate), nil
}
