package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/memory"
)

type fakeQuerier struct {
	mu      sync.Mutex
	err     error
	queries []string
	spans   []trace.SpanContext
	ids     []string
}

func (f *fakeQuerier) Query(ctx context.Context, request string) (*devhub.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, request)
	f.spans = append(f.spans, trace.SpanContextFromContext(ctx))
	f.ids = append(f.ids, RequestID(ctx))
	if f.err != nil {
		return nil, f.err
	}
	return &devhub.QueryResult{
		Response:    "staging is degraded",
		ToolsCalled: []devhub.ToolName{devhub.ToolCheckStatus},
		ToolResults: []devhub.ToolResult{
			devhub.NewToolError(devhub.ToolCheckStatus, devhub.ErrorTimeout, "Timeout: %s", "health timeout"),
		},
	}, nil
}

func post(t *testing.T, h http.Handler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	q := &fakeQuerier{}
	srv := NewServer(q, "localhost:0")

	rec := post(t, srv.Handler(), `{"query": "  Is staging working?  "}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result devhub.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "staging is degraded", result.Response)
	assert.Equal(t, []devhub.ToolName{devhub.ToolCheckStatus}, result.ToolsCalled)
	require.Len(t, result.ToolResults, 1)
	assert.Equal(t, devhub.ErrorTimeout, result.ToolResults[0].Error.Kind)

	assert.Equal(t, []string{"Is staging working?"}, q.queries)
}

func TestQueryEndpointRequestID(t *testing.T) {
	q := &fakeQuerier{}
	srv := NewServer(q, "localhost:0")

	rec := post(t, srv.Handler(), `{"query": "hi"}`, map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = post(t, srv.Handler(), `{"query": "hi"}`, nil)
	generated := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	assert.Equal(t, []string{"req-42", generated}, q.ids)
}

func TestQueryEndpointJoinsCallerTrace(t *testing.T) {
	q := &fakeQuerier{}
	srv := NewServer(q, "localhost:0")

	post(t, srv.Handler(), `{"query": "hi"}`, map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})
	require.Len(t, q.spans, 1)
	assert.True(t, q.spans[0].IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", q.spans[0].TraceID().String())
}

func TestQueryEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"not json", `query=hi`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"empty query", `{"query": "   "}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing query", `{}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"too large", `{"query": "` + strings.Repeat("a", maxBodyBytes) + `"}`, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{}
			srv := NewServer(q, "localhost:0")

			rec := post(t, srv.Handler(), tt.body, map[string]string{RequestIDHeader: "bad-1"})
			require.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "bad-1", body.RequestID)
			assert.Empty(t, q.queries)
		})
	}
}

func TestQueryEndpointSynthesisFailure(t *testing.T) {
	srv := NewServer(&fakeQuerier{err: errors.New("synthesis failed: model overloaded")}, "localhost:0")

	rec := post(t, srv.Handler(), `{"query": "hi"}`, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "QUERY_FAILED", body.Error.Code)
	assert.Contains(t, body.Error.Message, "model overloaded")
}

func TestQueryEndpointMethod(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "localhost:0")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionHistory(t *testing.T) {
	mem := memory.NewInMemoryMemory(50)
	srv := NewServer(&fakeQuerier{}, "localhost:0", WithMemory(mem))

	post(t, srv.Handler(), `{"query": "Is staging working?", "session_id": "s-1"}`, nil)
	post(t, srv.Handler(), `{"query": "no session"}`, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SessionID string            `json:"session_id"`
		Messages  []*devhub.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "s-1", body.SessionID)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, devhub.RoleAssistant, body.Messages[0].Role)
	assert.Equal(t, "Is staging working?", body.Messages[1].Content)
	assert.Equal(t, 1, mem.SessionCount())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/history?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHistoryDisabled(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "localhost:0")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1/history", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "devhub_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Add(3)

	srv := NewServer(&fakeQuerier{}, "localhost:0", WithMetrics(registry))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "devhub_test_total 3")

	noMetrics := NewServer(&fakeQuerier{}, "localhost:0")
	rec = httptest.NewRecorder()
	noMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "127.0.0.1:0")
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
