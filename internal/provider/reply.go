package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	commandLinePattern = regexp.MustCompile(`(?im)^[ \t]*(?:[-*]\s*)?(?:\*\*)?command(?:\*\*)?[ \t]*:(?:\*\*)?[ \t]*(.+)$`)
	shellFencePattern  = regexp.MustCompile("(?s)```(?:bash|sh|shell|zsh|console)?[ \t]*\n(.*?)\n[ \t]*```")
)

// parseReply turns raw model output into a Reply. It accepts strict JSON,
// JSON wrapped in fences or CLI envelopes, JSON embedded in prose, and
// plain text carrying a "Command: ..." line.
func parseReply(raw string) (Reply, error) {
	trimmed := preprocessStructuredText(raw)
	if trimmed == "" {
		return Reply{}, fmt.Errorf("empty response")
	}

	if parsed, err := decodeReplyJSON(trimmed); err == nil {
		return parsed, nil
	}

	var wrapper map[string]any
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil {
		if parsed, ok := unwrapEnvelope(wrapper); ok {
			return parsed, nil
		}
		return Reply{}, fmt.Errorf("could not parse structured reply")
	}

	if extracted, ok := extractJSONObject(trimmed); ok {
		if parsed, err := decodeReplyJSON(extracted); err == nil {
			return parsed, nil
		}
	}

	return parsePlainText(trimmed), nil
}

func unwrapEnvelope(wrapper map[string]any) (Reply, bool) {
	if value, ok := wrapper["result"]; ok {
		switch result := value.(type) {
		case string:
			if parsed, err := parseReply(result); err == nil {
				return parsed, true
			}
		case map[string]any:
			if adapted, ok := adaptLooseReply(result); ok {
				return adapted, true
			}
		}
	}
	if value, ok := wrapper["content"]; ok {
		switch content := value.(type) {
		case string:
			if parsed, err := parseReply(content); err == nil {
				return parsed, true
			}
		case []any:
			for _, item := range content {
				obj, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := obj["text"].(string); ok {
					if parsed, err := parseReply(text); err == nil {
						return parsed, true
					}
				}
			}
		}
	}
	return Reply{}, false
}

func decodeReplyJSON(raw string) (Reply, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(preprocessStructuredText(raw)), &generic); err != nil {
		return Reply{}, err
	}
	if adapted, ok := adaptLooseReply(generic); ok {
		return adapted, nil
	}
	return Reply{}, fmt.Errorf("missing explanation/command fields")
}

func adaptLooseReply(payload map[string]any) (Reply, bool) {
	if len(payload) == 0 {
		return Reply{}, false
	}
	reply := Reply{
		Explanation: firstNonEmpty(
			stringValue(payload["explanation"]),
			stringValue(payload["reason"]),
			stringValue(payload["message"]),
			stringValue(payload["answer"]),
			stringValue(payload["response"]),
		),
		Command: firstNonEmpty(
			stringValue(payload["command"]),
			stringValue(payload["cmd"]),
			stringValue(payload["shell_command"]),
		),
		Risk:  stringValue(payload["risk"]),
		Steps: stepsValue(firstPresent(payload, "steps", "plan")),
	}
	if reply.Explanation == "" && reply.Command == "" && len(reply.Steps) == 0 {
		return Reply{}, false
	}
	return reply, true
}

func stepsValue(value any) []Step {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	steps := make([]Step, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			steps = append(steps, Step{Command: strings.TrimSpace(v)})
		case map[string]any:
			steps = append(steps, Step{
				Description: firstNonEmpty(stringValue(v["description"]), stringValue(v["desc"]), stringValue(v["title"]), stringValue(v["step"])),
				Command:     firstNonEmpty(stringValue(v["command"]), stringValue(v["cmd"])),
			})
		}
	}
	return steps
}

// parsePlainText handles replies that ignored the JSON instructions. A
// "Command:" line wins; otherwise a single shell code block is used.
func parsePlainText(text string) Reply {
	if loc := commandLinePattern.FindStringSubmatchIndex(text); loc != nil {
		return Reply{
			Explanation: strings.TrimSpace(text[:loc[0]]),
			Command:     strings.Trim(strings.TrimSpace(text[loc[2]:loc[3]]), "`"),
		}
	}
	if blocks := shellFencePattern.FindAllStringSubmatchIndex(text, -1); len(blocks) == 1 {
		block := blocks[0]
		explanation := strings.TrimSpace(strings.TrimSpace(text[:block[0]]) + "\n" + strings.TrimSpace(text[block[1]:]))
		return Reply{
			Explanation: explanation,
			Command:     strings.TrimSpace(text[block[2]:block[3]]),
		}
	}
	return Reply{Explanation: text}
}

func normalizeReply(in Reply) Reply {
	out := Reply{
		Explanation: strings.TrimSpace(in.Explanation),
		Command:     strings.TrimSpace(in.Command),
	}
	switch risk := strings.ToLower(strings.TrimSpace(in.Risk)); risk {
	case "low", "medium", "high":
		out.Risk = risk
	}
	for _, step := range in.Steps {
		command := strings.TrimSpace(step.Command)
		if command == "" {
			continue
		}
		description := strings.TrimSpace(step.Description)
		if description == "" {
			description = command
		}
		out.Steps = append(out.Steps, Step{Description: description, Command: command})
	}
	if out.Explanation == "" {
		switch {
		case out.Command != "":
			out.Explanation = "Here is a command for that."
		case len(out.Steps) > 0:
			out.Explanation = "Here is a plan for that."
		}
	}
	return out
}

func extractJSONObject(raw string) (string, bool) {
	inString := false
	escape := false
	depth := 0
	start := -1
	for i, r := range raw {
		if escape {
			escape = false
			continue
		}
		if r == '\\' {
			escape = true
			continue
		}
		if r == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch {
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}' && depth > 0:
			depth--
			if depth == 0 && start >= 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// preprocessStructuredText strips a surrounding code fence when the fenced
// content is JSON.
func preprocessStructuredText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	withoutFence := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	if idx := strings.IndexRune(withoutFence, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(withoutFence[:idx])
		if !strings.HasPrefix(firstLine, "{") && !strings.HasPrefix(firstLine, "[") {
			withoutFence = withoutFence[idx+1:]
		}
	}
	if idx := strings.LastIndex(withoutFence, "```"); idx >= 0 {
		withoutFence = withoutFence[:idx]
	}
	withoutFence = strings.TrimSpace(withoutFence)
	if !strings.HasPrefix(withoutFence, "{") {
		return trimmed
	}
	return withoutFence
}

func truncate(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= max {
		return trimmed
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}

func firstPresent(payload map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := payload[key]; ok {
			return value
		}
	}
	return nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

const replyJSONSchema = `{
  "type": "object",
  "required": ["explanation"],
  "properties": {
    "explanation": { "type": "string" },
    "command": { "type": "string" },
    "risk": { "type": "string", "enum": ["low", "medium", "high"] },
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description", "command"],
        "properties": {
          "description": { "type": "string" },
          "command": { "type": "string" }
        }
      }
    }
  }
}`
