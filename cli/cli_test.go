package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	devhttp "github.com/devhub/devhub-go/adapter/http"
	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/app"
	"github.com/devhub/devhub-go/config"
	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/evaluation"
	"github.com/devhub/devhub-go/faults"
)

var envVars = []string{
	"DEVHUB_CONFIG", "DEVHUB_LLM_PROVIDER", "DEVHUB_LLM_MODEL",
	"OPENAI_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
	"DEVHUB_REDIS_URL", "DEVHUB_EMBEDDINGS", "DEVHUB_FAULTS", "DEVHUB_SEED",
	"DEVHUB_DOCS_PATH", "DEVHUB_TEAMS_PATH", "DEVHUB_STATUS_PATH", "DEVHUB_OTLP_ENDPOINT",
}

// statusLLM always plans a staging status check and answers with the
// prompt it was given.
type statusLLM struct{}

func (statusLLM) Complete(_ context.Context, messages []*devhub.Message, _ ...llm.CallOption) (*devhub.Message, error) {
	if strings.Contains(messages[0].Content, "planning") {
		return devhub.NewMessage(devhub.RoleAssistant, `[{"tool": "check_status", "args": {"service": "staging"}}]`), nil
	}
	return devhub.NewMessage(devhub.RoleAssistant, "Staging is degraded."), nil
}

func (statusLLM) Model() string { return "status" }

func (statusLLM) Unwrap() interface{} { return nil }

// setup isolates the package globals and returns the captured output.
func setup(t *testing.T, input string) *bytes.Buffer {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}

	out := &bytes.Buffer{}
	prevOut, prevIn, prevApp := stdout, stdin, newApp
	stdout, stdin = out, strings.NewReader(input)
	newApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		return app.Build(ctx, cfg,
			app.WithLLM(statusLLM{}),
			app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			app.WithClock(faults.NewManualClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))),
		)
	}
	t.Cleanup(func() { stdout, stdin, newApp = prevOut, prevIn, prevApp })
	return out
}

func TestQueryCmdFlags(t *testing.T) {
	cases := []struct {
		name   string
		args   []string
		expect QueryCmd
	}{
		{
			name:   "defaults",
			args:   []string{},
			expect: QueryCmd{},
		},
		{
			name: "all flags",
			args: []string{"-q", "who owns payments?", "--json", "--no-faults", "--seed", "9", "-s", "http://localhost:8080", "--session", "s-1", "-t", "5"},
			expect: QueryCmd{
				FaultFlags: FaultFlags{NoFaults: true, Seed: 9},
				Query:      "who owns payments?",
				Server:     "http://localhost:8080",
				Session:    "s-1",
				JSON:       true,
				Timeout:    5,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &QueryCmd{}
			parser := flags.NewParser(cmd, flags.HelpFlag|flags.PassDoubleDash)
			_, err := parser.ParseArgs(tc.args)
			assert.EqualValues(t, nil, err)
			assert.EqualValues(t, tc.expect, *cmd)
		})
	}
}

func TestServeCmdFlags(t *testing.T) {
	cmd := &ServeCmd{}
	parser := flags.NewParser(cmd, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs([]string{"--addr", "127.0.0.1:9000", "--seed", "3"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cmd.Addr)
	assert.Equal(t, uint64(3), cmd.Seed)
	assert.False(t, cmd.NoFaults)
}

func TestExtractConfigPath(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"query", "-q", "hi"}, ""},
		{[]string{"-f", "a.yaml", "query"}, "a.yaml"},
		{[]string{"query", "--config", "b.yaml"}, "b.yaml"},
		{[]string{"--config=c.yaml", "chat"}, "c.yaml"},
		{[]string{"query", "-f"}, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractConfigPath(tc.args), tc.args)
	}
}

func TestRunHelp(t *testing.T) {
	out := setup(t, "")
	require.NoError(t, Run([]string{"--help"}))
	assert.Contains(t, out.String(), "Usage")
	assert.Contains(t, out.String(), "query")
}

func TestRunUnknownCommand(t *testing.T) {
	setup(t, "")
	assert.Error(t, Run([]string{"deploy"}))
}

func TestQueryLocal(t *testing.T) {
	out := setup(t, "")
	require.NoError(t, Run([]string{"query", "--no-faults", "--seed", "5", "-q", "Is staging working?"}))

	assert.Contains(t, out.String(), "Staging is degraded.")
	assert.Contains(t, out.String(), "Tools called: check_status")
}

func TestQueryLocalPositionalJSON(t *testing.T) {
	out := setup(t, "")
	require.NoError(t, Run([]string{"query", "--no-faults", "--json", "Is", "staging", "working?"}))

	var result devhub.QueryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, []devhub.ToolName{devhub.ToolCheckStatus}, result.ToolsCalled)
	require.Len(t, result.ToolResults, 1)
	assert.True(t, result.ToolResults[0].Success)
}

func TestQueryRequiresQuestion(t *testing.T) {
	setup(t, "")
	err := Run([]string{"query", "--no-faults"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

type remoteQuerier struct{}

func (remoteQuerier) Query(_ context.Context, request string) (*devhub.QueryResult, error) {
	return &devhub.QueryResult{
		Response:    "remote: " + request,
		ToolsCalled: []devhub.ToolName{devhub.ToolCheckStatus},
		ToolResults: []devhub.ToolResult{
			devhub.NewToolError(devhub.ToolCheckStatus, devhub.ErrorTimeout, "Timeout: %s", "health check exceeded 5s"),
		},
	}, nil
}

func TestQueryRemote(t *testing.T) {
	out := setup(t, "")
	ts := httptest.NewServer(devhttp.NewServer(remoteQuerier{}, "unused").Handler())
	defer ts.Close()

	require.NoError(t, Run([]string{"query", "--server", ts.URL, "-q", "Is staging up?"}))
	assert.Contains(t, out.String(), "remote: Is staging up?")
	assert.Contains(t, out.String(), "check_status failed (timeout): Timeout: health check exceeded 5s")
}

func TestChatLocal(t *testing.T) {
	out := setup(t, strings.Join([]string{
		"Is staging working?",
		"/history",
		"/history x",
		"/faults",
		"/clear",
		"/history",
		"/bogus",
		"/quit",
		"never read",
	}, "\n"))

	require.NoError(t, Run([]string{"chat", "--no-faults", "--session", "chat-1"}))
	text := out.String()

	assert.Contains(t, text, "session chat-1")
	assert.Contains(t, text, "Staging is degraded.")
	assert.Contains(t, text, "Session history (2 messages):")
	assert.Contains(t, text, "1. [user] Is staging working?")
	assert.Contains(t, text, "usage: /history [n]")
	assert.Contains(t, text, "Health Timeout: 0%")
	assert.Contains(t, text, "started session")
	assert.Contains(t, text, "No messages in session.")
	assert.Contains(t, text, "unknown command /bogus")
	assert.NotContains(t, text, "never read")
}

func TestChatEndsAtEOF(t *testing.T) {
	setup(t, "/help\n")
	assert.NoError(t, Run([]string{"chat", "--no-faults"}))
}

func TestConfigCmd(t *testing.T) {
	out := setup(t, "")
	require.NoError(t, Run([]string{"config"}))

	assert.Contains(t, out.String(), "DevHub Configuration")
	assert.Contains(t, out.String(), "DocSearch Connection Failure: 5%")
	assert.Contains(t, out.String(), "Configuration Issues:")
	assert.Contains(t, out.String(), "  - OPENAI_API_KEY environment variable not set")

	err := Run([]string{"config", "--strict"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 issue(s)")

	t.Setenv("OPENAI_API_KEY", "sk-test-0123456789")
	out.Reset()
	require.NoError(t, Run([]string{"config", "--strict"}))
	assert.NotContains(t, out.String(), "Configuration Issues:")
	assert.NotContains(t, out.String(), "sk-test-0123456789")
}

func TestConfigCmdMissingFile(t *testing.T) {
	setup(t, "")
	err := Run([]string{"-f", "/nonexistent/devhub.yaml", "config"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestServeWiring(t *testing.T) {
	setup(t, "")
	cfg := config.Default()
	cfg.Faults = cfg.Faults.Quiet()
	a, err := newApp(context.Background(), &cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	srv := newServer(a)
	for _, path := range []string{"/ready", "/metrics", "/healthz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query": "Is staging working?"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Staging is degraded.")
}

func TestServeStopsOnCancel(t *testing.T) {
	setup(t, "")
	cfg := config.Default()
	cfg.Server.Address = "127.0.0.1:0"
	a, err := newApp(context.Background(), &cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, serve(ctx, a, newServer(a)))
}

func TestEvalCmd(t *testing.T) {
	out := setup(t, "")
	saved := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, Run([]string{"eval", "--no-faults", "--runs", "2", "--save", saved}))
	assert.Contains(t, out.String(), "12 runs")
	assert.Contains(t, out.String(), "staging-status")

	f, err := os.Open(saved)
	require.NoError(t, err)
	defer f.Close()
	result, err := evaluation.ReadResult(f)
	require.NoError(t, err)
	assert.Equal(t, 12, result.TotalRuns)
	assert.Equal(t, evaluation.CaseStats{Runs: 2, Passed: 2, SuccessRate: 1}, result.Cases["staging-status"])
}

func TestEvalCmdBaseline(t *testing.T) {
	out := setup(t, "")
	dir := t.TempDir()
	baseline := filepath.Join(dir, "baseline.json")
	require.NoError(t, os.WriteFile(baseline,
		[]byte(`{"evaluation_id": "base-1", "accuracy": 1, "tool_accuracy": 1, "latency": {"p95": 0}}`), 0o600))
	cases := filepath.Join(dir, "cases.yaml")
	require.NoError(t, os.WriteFile(cases, []byte(`
- name: staging
  query: Is staging working?
  expectTools: [check_status]
  expectContains: [degraded]
- name: owner
  query: Who owns billing?
  expectTools: [find_owner]
`), 0o600))

	err := Run([]string{"eval", "--no-faults", "--cases", cases, "--baseline", baseline, "--fail-on-regression"})
	require.Error(t, err)
	assert.Equal(t, "regressions found: accuracy, tool_accuracy", err.Error())
	assert.Contains(t, out.String(), "Regressions against base-1:")
	assert.Contains(t, out.String(), "accuracy [moderate]: 1.000 -> 0.500 (50.0% worse)")
}

func TestEvalCmdBadCases(t *testing.T) {
	setup(t, "")
	err := Run([]string{"eval", "--cases", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read cases")
}
