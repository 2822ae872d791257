package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/data"
	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/faults"
	"github.com/devhub/devhub-go/services"
	"github.com/devhub/devhub-go/tools"
)

// scriptedLLM answers planning calls with a fixed response and synthesis
// calls with synthesizer, recording every call.
type scriptedLLM struct {
	mu          sync.Mutex
	plan        string
	planErr     error
	synthesizer func(prompt string) (string, error)
	calls       []recordedCall
}

type recordedCall struct {
	system string
	prompt string
	opts   *llm.CallOptions
}

func (s *scriptedLLM) Complete(_ context.Context, messages []*devhub.Message, opts ...llm.CallOption) (*devhub.Message, error) {
	call := recordedCall{
		system: messages[0].Content,
		prompt: messages[len(messages)-1].Content,
		opts:   llm.BuildCallOptions(opts...),
	}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	if call.system == planningSystemPrompt {
		if s.planErr != nil {
			return nil, s.planErr
		}
		return devhub.NewMessage(devhub.RoleAssistant, s.plan), nil
	}
	synth := s.synthesizer
	if synth == nil {
		synth = summarize
	}
	content, err := synth(call.prompt)
	if err != nil {
		return nil, err
	}
	return devhub.NewMessage(devhub.RoleAssistant, content), nil
}

func (s *scriptedLLM) Model() string { return "scripted" }

func (s *scriptedLLM) Unwrap() interface{} { return nil }

func (s *scriptedLLM) call(t *testing.T, system string) recordedCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.system == system {
			return c
		}
	}
	t.Fatalf("no call with system prompt %q", system)
	return recordedCall{}
}

// resultsFrom extracts the tool results payload embedded in a synthesis
// prompt.
func resultsFrom(prompt string) ([]map[string]any, error) {
	const head, tail = "Tool results (JSON):\n", "\n\nGuidelines:"
	start := strings.Index(prompt, head)
	end := strings.Index(prompt, tail)
	if start < 0 || end < start {
		return nil, errors.New("prompt has no tool results")
	}
	var results []map[string]any
	err := json.Unmarshal([]byte(prompt[start+len(head):end]), &results)
	return results, err
}

// summarize is a rule-based stand-in for the synthesis model that only uses
// what the prompt carries.
func summarize(prompt string) (string, error) {
	results, err := resultsFrom(prompt)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "I could not find anything relevant.", nil
	}

	var lines []string
	for _, r := range results {
		if r["success"] != true {
			e, _ := r["error"].(map[string]any)
			lines = append(lines, fmt.Sprintf("%v is unavailable right now (%v).", r["tool"], e["message"]))
			continue
		}
		d, _ := r["data"].(map[string]any)
		if svc, ok := d["service"].(map[string]any); ok {
			line := fmt.Sprintf("%v is %v.", svc["name"], svc["status"])
			if inc, ok := svc["incident"].(map[string]any); ok {
				line += fmt.Sprintf(" Incident: %v", inc["description"])
			}
			lines = append(lines, line)
		}
		if owner, ok := d["owner"].(map[string]any); ok {
			team, _ := d["team"].(map[string]any)
			if owner["is_active"] == false {
				lines = append(lines, fmt.Sprintf("%v is inactive; ask in %v instead.", owner["name"], team["slack_channel"]))
			} else {
				lines = append(lines, fmt.Sprintf("Contact %v (%v).", owner["name"], owner["slack_handle"]))
			}
		}
		if hits, ok := d["hits"].([]any); ok && len(hits) > 0 {
			top, _ := hits[0].(map[string]any)
			lines = append(lines, fmt.Sprintf("See %q.", top["title"]))
		}
	}
	return strings.Join(lines, " "), nil
}

func newBackends(t *testing.T, profiles faults.Profiles) *tools.Registry {
	t.Helper()
	ctx := context.Background()
	inj := faults.NewInjector(faults.WithSeed(5),
		faults.WithClock(faults.NewManualClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))))

	docs, err := services.ParseDocuments(data.Docs)
	require.NoError(t, err)
	fixture, err := services.ParseDirectory(data.Teams)
	require.NoError(t, err)
	statuses, err := services.ParseStatuses(data.Status)
	require.NoError(t, err)

	docSearch, err := services.NewDocSearch(ctx, docs, nil, profiles.DocSearch, inj)
	require.NoError(t, err)
	dir, err := services.NewDirectory(ctx, fixture, profiles.Directory, inj)
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })
	health := services.NewHealth(statuses, profiles.Health, inj)

	registry, err := tools.New(docSearch, dir, health)
	require.NoError(t, err)
	return registry
}

// stubRegistry serves every tool with handler.
func stubRegistry(t *testing.T, handler tools.Handler) *tools.Registry {
	t.Helper()
	m := make(map[devhub.ToolName]tools.Tool)
	for _, name := range devhub.AllTools() {
		m[name] = tools.Tool{Spec: tools.Spec{Name: name}, Handler: handler}
	}
	registry, err := tools.NewRegistry(m)
	require.NoError(t, err)
	return registry
}
