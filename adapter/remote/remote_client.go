// Package remote provides the client side of the DevHub HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/devhub/devhub-go/devhub"
)

// DefaultTimeout bounds a single request when the caller gives none.
const DefaultTimeout = 30 * time.Second

const requestIDHeader = "X-Request-ID"

// Error is a non-2xx answer from the server.
type Error struct {
	Status    int
	RequestID string
	Code      string
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("devhub server returned %d %s: %s (request %s)", e.Status, e.Code, e.Message, e.RequestID)
}

// Client queries a DevHub server over HTTP. It forwards the caller's trace
// context so server spans join the client trace.
type Client struct {
	endpoint   string
	timeout    time.Duration
	client     *http.Client
	propagator propagation.TextMapPropagator
}

// NewClient creates a client for the server at endpoint, e.g.
// "http://localhost:8080". A zero timeout uses DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint must be provided")
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q", endpoint)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		timeout:    timeout,
		client:     &http.Client{},
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}, nil
}

// Endpoint returns the server base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Query runs one request without session history.
func (c *Client) Query(ctx context.Context, request string) (*devhub.QueryResult, error) {
	return c.QueryInSession(ctx, "", request)
}

// QueryInSession runs one request and records it under sessionID.
func (c *Client) QueryInSession(ctx context.Context, sessionID, request string) (*devhub.QueryResult, error) {
	body, err := json.Marshal(map[string]string{"query": request, "session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	var result devhub.QueryResult
	if err := c.do(ctx, http.MethodPost, "/v1/query", body, &result); err != nil {
		return nil, err
	}
	if result.ToolsCalled == nil {
		result.ToolsCalled = []devhub.ToolName{}
	}
	return &result, nil
}

// History returns up to limit messages of a session, most recent first.
func (c *Client) History(ctx context.Context, sessionID string, limit int) ([]*devhub.Message, error) {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var body struct {
		Messages []*devhub.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// Ping checks that the server answers /healthz.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("request to %s timed out after %v: %w", c.endpoint, c.timeout, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	remoteErr := &Error{
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get(requestIDHeader),
		Code:      http.StatusText(resp.StatusCode),
	}
	var envelope struct {
		RequestID string `json:"request_id"`
		Error     struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Code != "" {
		remoteErr.Code = envelope.Error.Code
		remoteErr.Message = envelope.Error.Message
		if envelope.RequestID != "" {
			remoteErr.RequestID = envelope.RequestID
		}
		return remoteErr
	}
	remoteErr.Message = strings.TrimSpace(string(data))
	return remoteErr
}
