package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "localhost:0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, Version, data["version"])
	assert.Contains(t, data, "uptime")
}

func TestHealthEndpointMethods(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "localhost:0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyEndpoint(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "localhost:0",
		WithReadinessCheck("backends", func(context.Context) error { return nil }),
	)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, true, data["ready"])
	assert.Equal(t, map[string]interface{}{"backends": "ok"}, data["checks"])

	srv.AddCheck("session", func(context.Context) error { return errors.New("redis unreachable") })

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	assert.Equal(t, false, data["ready"])
	assert.Equal(t, "redis unreachable", data["checks"].(map[string]interface{})["session"])
}

func TestLiveEndpoint(t *testing.T) {
	srv := NewServer(&fakeQuerier{}, "localhost:0")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"alive": true}`, rec.Body.String())
}
