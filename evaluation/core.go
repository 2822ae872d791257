// Package evaluation replays scenario questions against DevHub and scores
// the answers, so the effect of a fault profile can be measured and compared
// between runs.
//
// Example:
//
//	evaluator := evaluation.NewEvaluator(orch)
//	result, _ := evaluator.Evaluate(ctx, evaluation.DefaultCases(), 20)
//	fmt.Printf("Accuracy: %.2f\n", result.Accuracy)
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/devhub/devhub-go/devhub"
)

// Querier answers one natural-language request.
type Querier interface {
	Query(ctx context.Context, request string) (*devhub.QueryResult, error)
}

// Case is one scenario question with the evidence a good answer shows.
type Case struct {
	Name  string `yaml:"name" json:"name"`
	Query string `yaml:"query" json:"query"`

	// ExpectTools must all be called, in any order.
	ExpectTools []devhub.ToolName `yaml:"expectTools" json:"expect_tools"`

	// ExpectContains must all appear in the response, ignoring case.
	ExpectContains []string `yaml:"expectContains" json:"expect_contains"`
}

// DefaultCases returns the scenarios built around the embedded fixtures.
func DefaultCases() []Case {
	return []Case{
		{
			Name:           "staging-status",
			Query:          "Is staging working right now?",
			ExpectTools:    []devhub.ToolName{devhub.ToolCheckStatus},
			ExpectContains: []string{"degraded"},
		},
		{
			Name:           "payments-auth-docs",
			Query:          "How do I authenticate to the Payments API?",
			ExpectTools:    []devhub.ToolName{devhub.ToolSearchDocs},
			ExpectContains: []string{"payments"},
		},
		{
			Name:           "python-sdk-install",
			Query:          "How do I install the Python SDK?",
			ExpectTools:    []devhub.ToolName{devhub.ToolSearchDocs},
			ExpectContains: []string{"pip install"},
		},
		{
			Name:           "billing-owner",
			Query:          "Who should I contact about billing?",
			ExpectTools:    []devhub.ToolName{devhub.ToolFindOwner},
			ExpectContains: []string{"Sarah Chen"},
		},
		{
			Name:           "inactive-owner",
			Query:          "Who owns vector-search?",
			ExpectTools:    []devhub.ToolName{devhub.ToolFindOwner},
			ExpectContains: []string{"#ml-infra"},
		},
		{
			Name:           "staging-outage-contact",
			Query:          "Staging looks broken. Is it down and who can help?",
			ExpectTools:    []devhub.ToolName{devhub.ToolCheckStatus, devhub.ToolFindOwner},
			ExpectContains: []string{"Marcus Johnson"},
		},
	}
}

// LoadCases decodes a YAML (or JSON) list of cases.
func LoadCases(data []byte) ([]Case, error) {
	var cases []Case
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("case %d (%s) has no query", i, c.Name)
		}
		for _, tool := range c.ExpectTools {
			if _, ok := devhub.ParseToolName(string(tool)); !ok {
				return nil, fmt.Errorf("case %s expects unknown tool %q", c.Name, tool)
			}
		}
		if c.Name == "" {
			cases[i].Name = fmt.Sprintf("case-%d", i+1)
		}
	}
	return cases, nil
}

// RunResult is the outcome of one case execution.
type RunResult struct {
	Case          string             `json:"case"`
	Passed        bool               `json:"passed"`
	ToolsMatched  bool               `json:"tools_matched"`
	AnswerMatched bool               `json:"answer_matched"`
	ToolsCalled   []devhub.ToolName  `json:"tools_called"`
	ToolFailures  []devhub.ErrorKind `json:"tool_failures,omitempty"`
	LatencyMS     float64            `json:"latency_ms"`
	Error         string             `json:"error,omitempty"`
}

// Evaluator runs cases against a Querier.
type Evaluator struct {
	querier Querier
	logger  *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for per-run debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// NewEvaluator creates an evaluator for querier.
func NewEvaluator(querier Querier, opts ...Option) *Evaluator {
	e := &Evaluator{querier: querier, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every case repeat times, case by case within a round, and
// aggregates the runs. It stops early only when ctx ends.
func (e *Evaluator) Evaluate(ctx context.Context, cases []Case, repeat int) (*Result, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases to evaluate")
	}
	if repeat <= 0 {
		repeat = 1
	}

	runs := make([]RunResult, 0, len(cases)*repeat)
	for round := 0; round < repeat; round++ {
		for _, c := range cases {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			run := e.run(ctx, c)
			e.logger.DebugContext(ctx, "evaluation run",
				"case", c.Name, "round", round+1, "passed", run.Passed, "latency_ms", run.LatencyMS)
			runs = append(runs, run)
		}
	}

	result := Aggregate(runs)
	result.EvaluationID = uuid.NewString()
	result.Timestamp = time.Now().UTC()
	return result, nil
}

func (e *Evaluator) run(ctx context.Context, c Case) RunResult {
	run := RunResult{Case: c.Name}

	start := time.Now()
	result, err := e.querier.Query(ctx, c.Query)
	run.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		run.Error = err.Error()
		return run
	}

	run.ToolsCalled = result.ToolsCalled
	for _, r := range result.ToolResults {
		if !r.Success && r.Error != nil {
			run.ToolFailures = append(run.ToolFailures, r.Error.Kind)
		}
	}

	run.ToolsMatched = true
	for _, tool := range c.ExpectTools {
		if !slices.Contains(result.ToolsCalled, tool) {
			run.ToolsMatched = false
			break
		}
	}

	response := strings.ToLower(result.Response)
	run.AnswerMatched = true
	for _, want := range c.ExpectContains {
		if !strings.Contains(response, strings.ToLower(want)) {
			run.AnswerMatched = false
			break
		}
	}

	run.Passed = run.ToolsMatched && run.AnswerMatched
	return run
}
