package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhub/devhub-go/devhub"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []devhub.ToolCall
	}{
		{
			name:    "bare array",
			content: `[{"tool": "check_status", "args": {"service": "staging"}}]`,
			want:    []devhub.ToolCall{devhub.NewToolCall(devhub.ToolCheckStatus, "service", "staging")},
		},
		{
			name:    "fenced with language tag",
			content: "```json\n[{\"tool\": \"find_owner\", \"args\": {\"service\": \"billing\"}}]\n```",
			want:    []devhub.ToolCall{devhub.NewToolCall(devhub.ToolFindOwner, "service", "billing")},
		},
		{
			name:    "fenced without tag",
			content: "```\n[]\n```",
			want:    []devhub.ToolCall{},
		},
		{
			name:    "arguments alias and order kept",
			content: `[{"tool": "search_docs", "arguments": {"query": "sdk"}}, {"tool": "unknown_thing", "args": {}}]`,
			want: []devhub.ToolCall{
				devhub.NewToolCall(devhub.ToolSearchDocs, "query", "sdk"),
				{Tool: "unknown_thing", Arguments: map[string]string{}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePlan(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlanRejects(t *testing.T) {
	for _, content := range []string{
		"",
		"   ",
		"Sure! I'll check staging.",
		`{"tool": "check_status"}`,
		`["check_status"]`,
		`[{"tool": "check_status"`,
		"```json\n```",
	} {
		_, err := parsePlan(content)
		assert.Error(t, err, "%q", content)
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "[]", stripCodeFence("```json\n[]\n```"))
	assert.Equal(t, "[1]", stripCodeFence("```[1]```"))
	assert.Equal(t, `[{"a":1}]`, stripCodeFence("  ```JSON\n[{\"a\":1}]```  "))
	assert.Equal(t, "[]", stripCodeFence("[]"))
}
