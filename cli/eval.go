package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/devhub/devhub-go/adapter/remote"
	"github.com/devhub/devhub-go/evaluation"
)

// EvalCmd replays scenario cases and reports accuracy under the configured
// faults, optionally against a saved baseline.
// Usage: devhub eval --runs 20 --save baseline.json
type EvalCmd struct {
	FaultFlags
	Runs     int    `short:"n" long:"runs" description:"rounds over the case list" default:"1"`
	Cases    string `long:"cases" description:"YAML file of cases (defaults to the built-in scenarios)"`
	Server   string `short:"s" long:"server" description:"DevHub server URL; runs in process when empty"`
	Baseline string `long:"baseline" description:"earlier result to compare against"`
	Save     string `long:"save" description:"write the result as JSON to this file"`
	JSON     bool   `long:"json" description:"print the full result as JSON"`
	Strict   bool   `long:"fail-on-regression" description:"exit non-zero when a regression is found"`
}

func (c *EvalCmd) Execute(_ []string) error {
	ctx := context.Background()

	cases := evaluation.DefaultCases()
	if c.Cases != "" {
		data, err := os.ReadFile(c.Cases)
		if err != nil {
			return fmt.Errorf("read cases: %w", err)
		}
		if cases, err = evaluation.LoadCases(data); err != nil {
			return err
		}
	}

	var baseline *evaluation.Result
	if c.Baseline != "" {
		f, err := os.Open(c.Baseline)
		if err != nil {
			return fmt.Errorf("read baseline: %w", err)
		}
		baseline, err = evaluation.ReadResult(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	var querier evaluation.Querier
	if c.Server != "" {
		client, err := remote.NewClient(c.Server, 0)
		if err != nil {
			return err
		}
		querier = client
	} else {
		cfg, err := c.FaultFlags.load()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		querier = a.Orchestrator
	}

	result, err := evaluation.NewEvaluator(querier).Evaluate(ctx, cases, c.Runs)
	if err != nil {
		return err
	}

	if c.Save != "" {
		f, err := os.Create(c.Save)
		if err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		werr := result.WriteJSON(f)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return fmt.Errorf("save result: %w", werr)
		}
	}

	if c.JSON {
		if err := result.WriteJSON(stdout); err != nil {
			return err
		}
	} else {
		result.Print(stdout)
	}

	regressions := evaluation.NewRegressionDetector(nil, baseline).Detect(result)
	if baseline != nil && !c.JSON {
		if len(regressions) == 0 {
			fmt.Fprintf(stdout, "No regressions against %s.\n", baseline.EvaluationID)
		} else {
			fmt.Fprintf(stdout, "Regressions against %s:\n", baseline.EvaluationID)
			for _, r := range regressions {
				fmt.Fprintf(stdout, "  %s [%s]: %.3f -> %.3f (%.1f%% worse)\n",
					r.Metric, r.Severity, r.BaselineValue, r.CurrentValue, r.DegradationPercent)
			}
		}
	}
	if c.Strict && len(regressions) > 0 {
		names := make([]string, len(regressions))
		for i, r := range regressions {
			names[i] = r.Metric
		}
		return fmt.Errorf("regressions found: %s", strings.Join(names, ", "))
	}
	return nil
}
