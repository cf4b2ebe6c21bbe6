package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model response into target. Responses are asked
// for as bare JSON, but models wrap payloads in markdown fences or surround
// them with prose often enough that the decoder recovers the embedded
// document before giving up.
func DecodeJSON(content string, target any) error {
	payload := strings.TrimSpace(content)
	if payload == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(payload), target)
	if directErr == nil {
		return nil
	}

	recovered := recoverPayload(payload)
	if recovered == "" || recovered == payload {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, payloadSnippet(payload))
	}
	if err := json.Unmarshal([]byte(recovered), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, payloadSnippet(recovered))
	}
	return nil
}

// recoverPayload peels the decoration a model adds around a JSON document.
// Fenced blocks lose their fences; when prose surrounds the payload, the
// outermost object or array is cut out by its brackets.
func recoverPayload(raw string) string {
	body := stripFences(raw)
	if body == "" {
		return ""
	}
	if body[0] == '{' || body[0] == '[' {
		return body
	}
	if span, ok := bracketSpan(body, "{", "}"); ok {
		return span
	}
	if span, ok := bracketSpan(body, "[", "]"); ok {
		return span
	}
	return body
}

// stripFences removes a surrounding markdown code fence, including the
// optional json language tag after the opening backticks.
func stripFences(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimLeft(body[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// bracketSpan returns the text from the first open bracket through the last
// close bracket, when both appear in that order.
func bracketSpan(s, open, close string) (string, bool) {
	start := strings.Index(s, open)
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(s, close)
	if end <= start {
		return "", false
	}
	return strings.TrimSpace(s[start : end+len(close)]), true
}

// payloadSnippet flattens a payload onto one line, capped at 160 runes, so
// decode errors stay readable in logs.
func payloadSnippet(raw string) string {
	flat := strings.Join(strings.Fields(raw), " ")
	if flat == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(flat)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return flat
}
