package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// maxParseRetries bounds how many times Decide re-prompts the model after an
// unparseable response before giving up (§4.E).
const maxParseRetries = 2

// extractFencedJSON pulls JSON out of a ```json ... ``` or bare ``` ... ```
// code block, the same recovery shape as the teacher's extractYAML
// (internal/agent/decide_helpers.go), ported from YAML framing to JSON.
func extractFencedJSON(content string) (string, error) {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), nil
		}
		return "", fmt.Errorf("unclosed ```json code block")
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), nil
		}
		return "", fmt.Errorf("unclosed ``` code block")
	}
	return "", fmt.Errorf("no fenced code block found")
}

// extractBraceMatched finds the first balanced {...} span in content,
// tolerating braces inside quoted strings. Used as the last-resort
// extraction when neither a direct parse nor a fenced block works.
func extractBraceMatched(content string) (string, error) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", fmt.Errorf("no '{' found in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces in response")
}

// parseRaw attempts, in order: a direct JSON parse of the full response, a
// parse of a fenced code block, and a parse of the first balanced brace
// span. Each candidate is validated by unmarshaling into rawDecision before
// being accepted — an attempt that merely parses as some unrelated JSON
// value does not count as success.
func parseRaw(content string) (rawDecision, error) {
	var raw rawDecision
	var lastErr error

	candidates := []func() (string, error){
		func() (string, error) { return content, nil },
		func() (string, error) { return extractFencedJSON(content) },
		func() (string, error) { return extractBraceMatched(content) },
	}

	for _, get := range candidates {
		text, err := get()
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			lastErr = err
			continue
		}
		if raw.Action == "" {
			lastErr = fmt.Errorf("parsed JSON missing \"action\" field")
			continue
		}
		return raw, nil
	}
	return rawDecision{}, fmt.Errorf("could not extract a valid decision from response: %w", lastErr)
}

// Decide sends messages to the provider and parses the response into a
// Decision, re-prompting up to maxParseRetries times with an added
// correction message when parsing fails (§4.E).
func Decide(ctx context.Context, p Provider, messages []Message) (Decision, error) {
	attemptMessages := messages
	var lastErr error

	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		reply, err := p.Call(ctx, attemptMessages)
		if err != nil {
			return Decision{}, fmt.Errorf("model call failed: %w", err)
		}

		raw, perr := parseRaw(reply.Content)
		if perr != nil {
			lastErr = perr
			attemptMessages = append(attemptMessages,
				Message{Role: RoleAssistant, Content: reply.Content},
				Message{Role: RoleUser, Content: fmt.Sprintf(
					"Your last response could not be parsed as the required JSON object: %v. "+
						"Respond with a single JSON object and nothing else.", perr)},
			)
			continue
		}

		decision, derr := toDecision(raw)
		if derr != nil {
			lastErr = derr
			attemptMessages = append(attemptMessages,
				Message{Role: RoleAssistant, Content: reply.Content},
				Message{Role: RoleUser, Content: fmt.Sprintf(
					"Your response was invalid: %v. Correct it and respond with a single JSON object.", derr)},
			)
			continue
		}
		return decision, nil
	}
	return Decision{}, fmt.Errorf("giving up after %d attempts, last error: %w", maxParseRetries+1, lastErr)
}
