package evaluation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Severity represents regression severity levels.
type Severity string

const (
	SeverityMinor    Severity = "minor"    // <20% degradation
	SeverityModerate Severity = "moderate" // 20-50% degradation
	SeverityMajor    Severity = "major"    // 50-100% degradation
	SeverityCritical Severity = "critical" // >100% degradation
)

// Regression is one metric that got worse than its threshold allows.
type Regression struct {
	Metric             string   `json:"metric"`
	BaselineValue      float64  `json:"baseline_value"`
	CurrentValue       float64  `json:"current_value"`
	DegradationPercent float64  `json:"degradation_percent"`
	Severity           Severity `json:"severity"`

	// PValue is set for latency: the chance a shift this large is noise.
	PValue *float64 `json:"p_value,omitempty"`
}

// DefaultThresholds are the acceptable relative degradations per metric.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		"accuracy":      0.10,
		"tool_accuracy": 0.10,
		"latency_p95":   0.20,
	}
}

// SignificanceLevel is the p-value under which a latency shift counts as real.
const SignificanceLevel = 0.05

// RegressionDetector compares results against a baseline.
//
// Example:
//
//	detector := NewRegressionDetector(nil, baseline)
//	for _, r := range detector.Detect(current) {
//	    fmt.Printf("  %s: %.1f%% worse\n", r.Metric, r.DegradationPercent)
//	}
type RegressionDetector struct {
	thresholds map[string]float64
	baseline   *Result
}

// NewRegressionDetector creates a detector. Nil thresholds use
// DefaultThresholds.
func NewRegressionDetector(thresholds map[string]float64, baseline *Result) *RegressionDetector {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &RegressionDetector{thresholds: thresholds, baseline: baseline}
}

// Detect returns every metric of current that degraded past its threshold,
// worst first. Without a baseline nothing is reported.
func (d *RegressionDetector) Detect(current *Result) []*Regression {
	if d.baseline == nil || current == nil {
		return nil
	}

	var regressions []*Regression
	if reg := d.check("accuracy", d.baseline.Accuracy, current.Accuracy, true); reg != nil {
		regressions = append(regressions, reg)
	}
	if reg := d.check("tool_accuracy", d.baseline.ToolAccuracy, current.ToolAccuracy, true); reg != nil {
		regressions = append(regressions, reg)
	}
	if reg := d.check("latency_p95", d.baseline.Latency.P95, current.Latency.P95, false); reg != nil {
		// A latency shift that could be noise is not reported.
		if p, ok := WelchPValue(d.baseline.Latencies(), current.Latencies()); ok {
			reg.PValue = &p
			if p >= SignificanceLevel {
				reg = nil
			}
		}
		if reg != nil {
			regressions = append(regressions, reg)
		}
	}

	sort.SliceStable(regressions, func(i, j int) bool {
		return regressions[i].DegradationPercent > regressions[j].DegradationPercent
	})
	return regressions
}

func (d *RegressionDetector) check(metric string, baseline, current float64, higherIsBetter bool) *Regression {
	threshold, ok := d.thresholds[metric]
	if !ok || baseline == 0 {
		return nil
	}

	var degradation float64
	if higherIsBetter {
		degradation = (baseline - current) / baseline
	} else {
		degradation = (current - baseline) / baseline
	}
	if degradation <= threshold {
		return nil
	}

	percent := degradation * 100
	return &Regression{
		Metric:             metric,
		BaselineValue:      baseline,
		CurrentValue:       current,
		DegradationPercent: percent,
		Severity:           severityOf(percent),
	}
}

func severityOf(percent float64) Severity {
	switch {
	case percent > 100:
		return SeverityCritical
	case percent > 50:
		return SeverityMajor
	case percent > 20:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// WelchPValue runs a two-sided Welch t-test. ok is false when either sample
// is too small or has no variance to test.
func WelchPValue(a, b []float64) (p float64, ok bool) {
	if len(a) < 2 || len(b) < 2 {
		return 0, false
	}
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	seA, seB := varA/na, varB/nb
	se := seA + seB
	if se == 0 {
		return 0, false
	}
	t := (meanB - meanA) / math.Sqrt(se)
	df := se * se / (seA*seA/(na-1) + seB*seB/(nb-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t)), true
}
