// Package orchestrator answers developer questions in three phases: an LLM
// plans which tools to call, the calls run sequentially against the
// backends with every failure captured, and a second LLM call synthesizes
// the answer from the results.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/faults"
	"github.com/devhub/devhub-go/observability"
	"github.com/devhub/devhub-go/services"
	"github.com/devhub/devhub-go/tools"
)

// MaxToolCalls caps the number of calls executed from one plan.
const MaxToolCalls = 3

const (
	planTemperature      = 0.1
	planMaxTokens        = 256
	synthesisTemperature = 0.3
	synthesisMaxTokens   = 1024
)

// Orchestrator runs plan, execute and synthesize for one request at a time.
// It holds no per-request state and is safe for concurrent use when the LLM
// and backends are.
type Orchestrator struct {
	llm       llm.LLM
	registry  *tools.Registry
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.Instruments
	threshold float64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer used for phase spans. The default resolves the
// global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithInstruments records tool, completion and query metrics.
func WithInstruments(in *observability.Instruments) Option {
	return func(o *Orchestrator) {
		o.metrics = in
	}
}

// WithSimilarityThreshold sets the search distance above which the
// synthesizer flags documentation matches as low confidence.
func WithSimilarityThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		o.threshold = threshold
	}
}

// New creates an orchestrator over completion and registry.
func New(completion llm.LLM, registry *tools.Registry, opts ...Option) (*Orchestrator, error) {
	if completion == nil {
		return nil, errors.New("orchestrator requires an LLM")
	}
	if registry == nil {
		return nil, errors.New("orchestrator requires a tool registry")
	}

	o := &Orchestrator{
		llm:       completion,
		registry:  registry,
		logger:    slog.Default(),
		tracer:    observability.GetTracer(),
		threshold: faults.DefaultLowSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Threshold returns the low-confidence distance threshold.
func (o *Orchestrator) Threshold() float64 {
	return o.threshold
}

// Query answers request. Only a synthesis failure is returned as an error;
// planning and tool failures are absorbed into the result.
func (o *Orchestrator) Query(ctx context.Context, request string) (result *devhub.QueryResult, err error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "devhub.query",
		trace.WithAttributes(attribute.Int("devhub.request.length", len(request))))
	defer func() {
		o.metrics.RecordQuery(ctx, err, msSince(start))
		observability.EndSpan(span, err)
	}()

	calls := o.Plan(ctx, request)
	results := o.Execute(ctx, calls)

	response, err := o.Synthesize(ctx, request, results)
	if err != nil {
		o.logger.ErrorContext(ctx, "query failed", "error", err)
		return nil, err
	}

	called := make([]devhub.ToolName, len(calls))
	for i, call := range calls {
		called[i] = call.Tool
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	span.SetAttributes(
		attribute.Int("devhub.tools.called", len(calls)),
		attribute.Int("devhub.tools.failed", failed),
	)
	o.logger.InfoContext(ctx, "query answered",
		"tools", called, "failed", failed, "duration_ms", msSince(start))

	return &devhub.QueryResult{
		Response:    response,
		ToolsCalled: called,
		ToolResults: results,
	}, nil
}

// Plan asks the LLM which tools to call. It never fails: a completion error
// or an unparseable response yields an empty plan. Plans longer than
// MaxToolCalls are truncated.
func (o *Orchestrator) Plan(ctx context.Context, request string) []devhub.ToolCall {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "devhub.plan")
	defer span.End()

	messages := []*devhub.Message{
		devhub.NewMessage(devhub.RoleSystem, planningSystemPrompt),
		devhub.NewMessage(devhub.RoleUser, planningPrompt(o.registry.Describe(), request)),
	}
	response, err := o.llm.Complete(ctx, messages,
		llm.WithTemperature(planTemperature),
		llm.WithMaxTokens(planMaxTokens),
	)
	o.metrics.RecordLLM(ctx, "plan", o.llm.Model(), err, msSince(start))
	if err != nil {
		o.logger.WarnContext(ctx, "planning call failed, continuing without tools", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return []devhub.ToolCall{}
	}

	calls, err := parsePlan(response.Content)
	if err != nil {
		o.logger.WarnContext(ctx, "could not parse plan, continuing without tools",
			"error", err, "response", response.Content)
		span.SetAttributes(attribute.Bool("devhub.plan.parse_failed", true))
		return []devhub.ToolCall{}
	}

	if len(calls) > MaxToolCalls {
		o.logger.WarnContext(ctx, "plan truncated", "planned", len(calls), "max", MaxToolCalls)
		calls = calls[:MaxToolCalls]
	}

	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = string(call.Tool)
	}
	span.SetAttributes(
		attribute.Int("devhub.plan.size", len(calls)),
		attribute.StringSlice("devhub.plan.tools", names),
	)
	o.logger.DebugContext(ctx, "plan ready", "tools", names)
	return calls
}

// Execute runs calls in order and returns one result per call in the same
// order. It never fails; errors become failed results.
func (o *Orchestrator) Execute(ctx context.Context, calls []devhub.ToolCall) []devhub.ToolResult {
	results := make([]devhub.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, o.execute(ctx, call))
	}
	return results
}

func (o *Orchestrator) execute(ctx context.Context, call devhub.ToolCall) (result devhub.ToolResult) {
	start := time.Now()
	spanName := "devhub.tool.unknown"
	if _, known := devhub.ParseToolName(string(call.Tool)); known {
		spanName = "devhub.tool." + string(call.Tool)
	}
	ctx, span := o.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("devhub.tool.name", string(call.Tool)),
	))

	defer func() {
		latency := msSince(start)
		kind := ""
		if result.Error != nil {
			kind = string(result.Error.Kind)
			span.SetAttributes(attribute.String("devhub.tool.error_kind", kind))
			span.SetStatus(codes.Error, result.Error.Message)
			o.logger.WarnContext(ctx, "tool call failed",
				"tool", call.Tool, "kind", kind, "error", result.Error.Message)
		} else {
			span.SetStatus(codes.Ok, "")
			o.logger.DebugContext(ctx, "tool call succeeded", "tool", call.Tool, "duration_ms", latency)
		}
		span.SetAttributes(attribute.Bool("devhub.tool.success", result.Success))
		o.metrics.RecordTool(ctx, string(call.Tool), kind, latency)
		span.End()
	}()

	tool, ok := o.registry.Lookup(call.Tool)
	if !ok {
		return devhub.NewToolError(call.Tool, devhub.ErrorUnknownTool, "Unknown tool: %s", call.Tool)
	}

	data, err := invoke(ctx, tool, call)
	if err != nil {
		return toolFailure(call.Tool, err)
	}
	annotate(span, data)
	return devhub.NewToolResult(call.Tool, data)
}

// invoke runs the handler, turning a panic into an error.
func invoke(ctx context.Context, tool tools.Tool, call devhub.ToolCall) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", call.Tool, r)
		}
	}()
	return tool.Handler(ctx, call)
}

func toolFailure(name devhub.ToolName, err error) devhub.ToolResult {
	var (
		unavailable *devhub.UnavailableError
		timeout     *devhub.TimeoutError
	)
	switch {
	case errors.As(err, &unavailable):
		return devhub.NewToolError(name, devhub.ErrorUnavailable, "Connection failed: %v", err)
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return devhub.NewToolError(name, devhub.ErrorTimeout, "Timeout: %v", err)
	default:
		return devhub.NewToolError(name, devhub.ErrorInternal, "Error: %v", err)
	}
}

// annotate records what a tool observed, never how it was perturbed.
func annotate(span trace.Span, data any) {
	switch v := data.(type) {
	case *services.SearchResult:
		span.SetAttributes(
			attribute.Int("devhub.search.hits", len(v.Hits)),
			attribute.Int64("devhub.backend.latency_ms", v.ElapsedMS),
		)
		if len(v.Hits) > 0 {
			span.SetAttributes(attribute.Float64("devhub.search.best_distance", v.Hits[0].Distance))
		}
	case *services.OwnerLookup:
		span.SetAttributes(
			attribute.Bool("devhub.owner.found", v.Found),
			attribute.Int64("devhub.backend.latency_ms", v.ElapsedMS),
		)
		if v.Owner != nil {
			span.SetAttributes(attribute.Bool("devhub.owner.active", v.Owner.IsActive))
		}
	case *services.StatusLookup:
		span.SetAttributes(
			attribute.Bool("devhub.status.found", v.Found),
			attribute.Int64("devhub.backend.latency_ms", v.ElapsedMS),
		)
		if v.Service != nil {
			span.SetAttributes(attribute.String("devhub.status.value", string(v.Service.Status)))
		}
	}
}

// Synthesize asks the LLM for the final answer given every tool result,
// failures included.
func (o *Orchestrator) Synthesize(ctx context.Context, request string, results []devhub.ToolResult) (string, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "devhub.synthesize",
		trace.WithAttributes(attribute.Int("devhub.synthesize.results", len(results))))

	response, err := o.synthesize(ctx, request, results)
	o.metrics.RecordLLM(ctx, "synthesize", o.llm.Model(), err, msSince(start))
	observability.EndSpan(span, err)
	return response, err
}

func (o *Orchestrator) synthesize(ctx context.Context, request string, results []devhub.ToolResult) (string, error) {
	if results == nil {
		results = []devhub.ToolResult{}
	}
	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tool results: %w", err)
	}

	messages := []*devhub.Message{
		devhub.NewMessage(devhub.RoleSystem, synthesisSystemPrompt),
		devhub.NewMessage(devhub.RoleUser, synthesisPrompt(request, string(encoded), o.threshold)),
	}
	response, err := o.llm.Complete(ctx, messages,
		llm.WithTemperature(synthesisTemperature),
		llm.WithMaxTokens(synthesisMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	return response.Content, nil
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
