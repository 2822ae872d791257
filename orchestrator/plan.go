package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/devhub/devhub-go/devhub"
)

var errEmptyPlan = errors.New("empty planning response")

// parsePlan decodes a planner response into tool calls. The response may be
// wrapped in a Markdown code fence. Anything other than a JSON array of
// objects is an error.
func parsePlan(content string) ([]devhub.ToolCall, error) {
	body := stripCodeFence(content)
	if body == "" {
		return nil, errEmptyPlan
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("plan is not a JSON array: %w", err)
	}

	calls := make([]devhub.ToolCall, 0, len(items))
	for i, item := range items {
		if trimmed := strings.TrimSpace(string(item)); !strings.HasPrefix(trimmed, "{") {
			return nil, fmt.Errorf("plan item %d is not an object", i)
		}
		var call devhub.ToolCall
		if err := json.Unmarshal(item, &call); err != nil {
			return nil, fmt.Errorf("plan item %d: %w", i, err)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// stripCodeFence removes a surrounding ```lang ... ``` block, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	// Drop a language tag such as "json" on the opening line.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "[{") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
