package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/devhub/devhub-go/devhub"
)

// LatencyStats summarizes end-to-end query latency in milliseconds.
type LatencyStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// CaseStats aggregates the runs of one case.
type CaseStats struct {
	Runs        int     `json:"runs"`
	Passed      int     `json:"passed"`
	SuccessRate float64 `json:"success_rate"`
}

// Result contains results from an evaluation run.
type Result struct {
	EvaluationID string    `json:"evaluation_id"`
	Timestamp    time.Time `json:"timestamp"`

	TotalRuns int `json:"total_runs"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`

	// Accuracy is the share of runs that passed.
	Accuracy float64 `json:"accuracy"`
	// ToolAccuracy is the share of runs that called every expected tool.
	ToolAccuracy float64 `json:"tool_accuracy"`

	FailureKinds map[devhub.ErrorKind]int `json:"failure_kinds"`
	Latency      LatencyStats             `json:"latency"`
	Cases        map[string]CaseStats     `json:"cases"`
	Runs         []RunResult              `json:"runs"`
}

// Aggregate computes a Result from individual runs.
func Aggregate(runs []RunResult) *Result {
	r := &Result{
		TotalRuns:    len(runs),
		FailureKinds: make(map[devhub.ErrorKind]int),
		Cases:        make(map[string]CaseStats),
		Runs:         runs,
	}
	if len(runs) == 0 {
		return r
	}

	toolsMatched := 0
	latencies := make([]float64, len(runs))
	for i, run := range runs {
		cs := r.Cases[run.Case]
		cs.Runs++
		if run.Passed {
			r.Passed++
			cs.Passed++
		} else {
			r.Failed++
		}
		if run.Error != "" {
			r.Errors++
		}
		if run.ToolsMatched {
			toolsMatched++
		}
		for _, kind := range run.ToolFailures {
			r.FailureKinds[kind]++
		}
		cs.SuccessRate = float64(cs.Passed) / float64(cs.Runs)
		r.Cases[run.Case] = cs
		latencies[i] = run.LatencyMS
	}

	r.Accuracy = float64(r.Passed) / float64(len(runs))
	r.ToolAccuracy = float64(toolsMatched) / float64(len(runs))
	r.Latency = latencyStats(latencies)
	return r
}

func latencyStats(samples []float64) LatencyStats {
	sorted := slices.Clone(samples)
	sort.Float64s(sorted)

	stats := LatencyStats{
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:  sorted[len(sorted)-1],
	}
	if len(sorted) > 1 {
		stats.StdDev = stat.StdDev(sorted, nil)
	}
	return stats
}

// Latencies returns the latency of every run, in run order.
func (r *Result) Latencies() []float64 {
	out := make([]float64, len(r.Runs))
	for i, run := range r.Runs {
		out[i] = run.LatencyMS
	}
	return out
}

// WriteJSON stores the result so it can serve as a later baseline.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ReadResult loads a result written by WriteJSON.
func ReadResult(rd io.Reader) (*Result, error) {
	var r Result
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode evaluation result: %w", err)
	}
	if r.FailureKinds == nil {
		r.FailureKinds = make(map[devhub.ErrorKind]int)
	}
	return &r, nil
}

// Print writes a human-readable report.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Evaluation %s: %d runs\n", r.EvaluationID, r.TotalRuns)
	fmt.Fprintf(w, "  Accuracy: %.1f%% (%d passed, %d failed, %d errors)\n", r.Accuracy*100, r.Passed, r.Failed, r.Errors)
	fmt.Fprintf(w, "  Tool accuracy: %.1f%%\n", r.ToolAccuracy*100)
	fmt.Fprintf(w, "  Latency ms: mean %.1f, p50 %.1f, p95 %.1f, max %.1f\n",
		r.Latency.Mean, r.Latency.P50, r.Latency.P95, r.Latency.Max)

	if len(r.FailureKinds) > 0 {
		kinds := make([]string, 0, len(r.FailureKinds))
		for kind := range r.FailureKinds {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "  Tool failures:")
		for _, kind := range kinds {
			fmt.Fprintf(w, "    %s: %d\n", kind, r.FailureKinds[devhub.ErrorKind(kind)])
		}
	}

	names := make([]string, 0, len(r.Cases))
	for name := range r.Cases {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "  Cases:")
	for _, name := range names {
		cs := r.Cases[name]
		fmt.Fprintf(w, "    %-24s %3.0f%% (%d/%d)\n", name, math.Round(cs.SuccessRate*100), cs.Passed, cs.Runs)
	}
}
