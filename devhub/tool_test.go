package devhub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolName(t *testing.T) {
	for _, name := range AllTools() {
		got, ok := ParseToolName(string(name))
		assert.True(t, ok, name)
		assert.Equal(t, name, got)
	}

	got, ok := ParseToolName("delete_everything")
	assert.False(t, ok)
	assert.Equal(t, ToolName("delete_everything"), got)
}

func TestToolCallUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ToolCall
	}{
		{
			name: "args",
			in:   `{"tool": "search_docs", "args": {"query": "rate limits"}}`,
			want: NewToolCall(ToolSearchDocs, "query", "rate limits"),
		},
		{
			name: "arguments alias",
			in:   `{"tool": "find_owner", "arguments": {"service": "billing"}}`,
			want: NewToolCall(ToolFindOwner, "service", "billing"),
		},
		{
			name: "scalar values are stringified",
			in:   `{"tool": "check_status", "args": {"service": "staging", "retries": 2, "verbose": true, "zone": null}}`,
			want: NewToolCall(ToolCheckStatus, "service", "staging", "retries", "2", "verbose", "true", "zone", ""),
		},
		{
			name: "missing args",
			in:   `{"tool": "check_status"}`,
			want: ToolCall{Tool: ToolCheckStatus, Arguments: map[string]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ToolCall
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolCallArg(t *testing.T) {
	var empty ToolCall
	assert.Equal(t, "", empty.Arg("query"))

	call := NewToolCall(ToolSearchDocs, "query", "sdk")
	assert.Equal(t, "sdk", call.Arg("query"))
	assert.Equal(t, "", call.Arg("service"))
}

func TestToolResultShape(t *testing.T) {
	ok := NewToolResult(ToolFindOwner, map[string]bool{"found": true})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)
	assert.NotNil(t, ok.Data)

	failed := NewToolError(ToolCheckStatus, ErrorTimeout, "Timeout: %s", "took too long")
	assert.False(t, failed.Success)
	assert.Nil(t, failed.Data)
	require.NotNil(t, failed.Error)
	assert.Equal(t, ErrorTimeout, failed.Error.Kind)
	assert.Equal(t, "Timeout: took too long", failed.Error.Message)

	data, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool":"check_status","success":false,"data":null,"error":{"kind":"timeout","message":"Timeout: took too long"}}`, string(data))
}

func TestBackendErrors(t *testing.T) {
	var err error = &TimeoutError{Backend: "StatusAPI", Target: "staging", After: 5 * time.Second}
	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "staging")

	err = &UnavailableError{Backend: "VectorDB", Reason: "ECONNREFUSED"}
	var unavailable *UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "VectorDB connection failed: ECONNREFUSED", err.Error())
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, NewMessage(RoleUser, "hello").Validate())
	assert.Error(t, NewMessage("", "hello").Validate())
	assert.Error(t, NewMessage("robot", "hello").Validate())

	msg := NewMessage(RoleSystem, "x").WithMetadata("phase", "plan")
	assert.Equal(t, "plan", msg.Metadata["phase"])
}
