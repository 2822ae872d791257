package devhub

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToolName identifies one of the tools the planner may call.
type ToolName string

// The closed set of tools. Every ToolName must have a handler in the registry.
const (
	ToolSearchDocs  ToolName = "search_docs"
	ToolFindOwner   ToolName = "find_owner"
	ToolCheckStatus ToolName = "check_status"
)

// AllTools returns every known tool in planning order.
func AllTools() []ToolName {
	return []ToolName{ToolSearchDocs, ToolFindOwner, ToolCheckStatus}
}

// ParseToolName reports whether s names a known tool.
func ParseToolName(s string) (ToolName, bool) {
	for _, name := range AllTools() {
		if string(name) == s {
			return name, true
		}
	}
	return ToolName(s), false
}

// ToolCall is one planned invocation. Order within a plan is significant.
type ToolCall struct {
	Tool      ToolName          `json:"tool"`
	Arguments map[string]string `json:"args"`
}

// NewToolCall creates a tool call with the given arguments as key/value pairs.
func NewToolCall(tool ToolName, kv ...string) ToolCall {
	args := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		args[kv[i]] = kv[i+1]
	}
	return ToolCall{Tool: tool, Arguments: args}
}

// Arg returns the named argument, or "" when it is absent.
func (c ToolCall) Arg(name string) string {
	if c.Arguments == nil {
		return ""
	}
	return c.Arguments[name]
}

// UnmarshalJSON accepts "args" or "arguments" and stringifies scalar values,
// since planners are free-form text generators.
func (c *ToolCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tool      string                     `json:"tool"`
		Args      map[string]json.RawMessage `json:"args"`
		Arguments map[string]json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	src := raw.Args
	if src == nil {
		src = raw.Arguments
	}
	c.Tool = ToolName(raw.Tool)
	c.Arguments = make(map[string]string, len(src))
	for key, value := range src {
		c.Arguments[key] = rawToString(value)
	}
	return nil
}

func rawToString(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(value, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return strconv.FormatBool(b)
	}
	if string(value) == "null" {
		return ""
	}
	return string(value)
}

// ErrorKind classifies a failed tool call.
type ErrorKind string

const (
	// ErrorUnavailable means the backend could not be reached.
	ErrorUnavailable ErrorKind = "unavailable"
	// ErrorTimeout means the backend exceeded its deadline.
	ErrorTimeout ErrorKind = "timeout"
	// ErrorUnknownTool means the plan named a tool that is not registered.
	ErrorUnknownTool ErrorKind = "unknown_tool"
	// ErrorInternal covers every other failure.
	ErrorInternal ErrorKind = "internal"
)

// ToolError describes why a tool call failed.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return e.Message
}

// ToolResult is the outcome of one executed ToolCall.
// Exactly one of Data and Error is set.
type ToolResult struct {
	Tool    ToolName    `json:"tool"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *ToolError  `json:"error"`
}

// NewToolResult creates a successful tool result.
func NewToolResult(tool ToolName, data interface{}) ToolResult {
	return ToolResult{
		Tool:    tool,
		Success: true,
		Data:    data,
	}
}

// NewToolError creates a tool result representing a failure.
func NewToolError(tool ToolName, kind ErrorKind, format string, args ...interface{}) ToolResult {
	return ToolResult{
		Tool:    tool,
		Success: false,
		Error: &ToolError{
			Kind:    kind,
			Message: fmt.Sprintf(format, args...),
		},
	}
}

// QueryResult is what a full plan/execute/synthesize pass returns.
type QueryResult struct {
	Response    string       `json:"response"`
	ToolsCalled []ToolName   `json:"tools_called"`
	ToolResults []ToolResult `json:"tool_results"`
}
