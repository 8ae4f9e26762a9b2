package llm

import (
	"encoding/json"
	"strings"
)

// ParseJSONFence unmarshals v from an LLM response that may wrap its
// JSON payload in a markdown code fence (```json ... ``` or ``` ...
// ```), per the strict-JSON-with-tolerant-parsing contract used by
// enrichment, intent classification and insights prompts (spec §4.7,
// §4.13, §4.16).
func ParseJSONFence(raw string, v interface{}) error {
	return json.Unmarshal([]byte(stripFence(raw)), v)
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
