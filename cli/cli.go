// Package cli implements the devhub command line: one-shot queries, an
// interactive chat, the HTTP server and a configuration report.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/devhub/devhub-go/app"
	"github.com/devhub/devhub-go/config"
)

var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin

	configPath string

	// newApp builds the local DevHub. Tests replace it.
	newApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		return app.Build(ctx, cfg)
	}
)

// Run parses args and executes the selected command.
func Run(args []string) error {
	configPath = extractConfigPath(args)

	opts := &Options{}
	var first string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && arg != configPath {
			first = arg
			break
		}
	}
	opts.Init(first)

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return nil
		}
		return err
	}
	return nil
}

// extractConfigPath scans raw args for -f/--config before full parsing so
// that sub-command Execute can load the same file.
func extractConfigPath(args []string) string {
	for i, a := range args {
		switch a {
		case "-f", "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		default:
			if strings.HasPrefix(a, "--config=") {
				return strings.TrimPrefix(a, "--config=")
			}
		}
	}
	return ""
}

// FaultFlags are shared by the commands that run DevHub in process.
type FaultFlags struct {
	NoFaults bool   `long:"no-faults" description:"disable every injected fault"`
	Seed     uint64 `long:"seed" description:"fault injection seed (0 = random)"`
}

func (f FaultFlags) load() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if f.NoFaults {
		cfg.Faults = cfg.Faults.Quiet()
	}
	if f.Seed != 0 {
		cfg.Seed = f.Seed
	}
	return cfg, nil
}
