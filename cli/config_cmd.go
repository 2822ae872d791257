package cli

import (
	"fmt"
)

// ConfigCmd prints the effective configuration with secrets masked.
type ConfigCmd struct {
	Strict bool `long:"strict" description:"exit non-zero when the configuration has issues"`
}

func (c *ConfigCmd) Execute(_ []string) error {
	cfg, err := FaultFlags{}.load()
	if err != nil {
		return err
	}
	cfg.Print(stdout)

	issues := cfg.Validate()
	if len(issues) == 0 {
		return nil
	}
	fmt.Fprintln(stdout, "\nConfiguration Issues:")
	for _, issue := range issues {
		fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	if c.Strict {
		return fmt.Errorf("configuration has %d issue(s)", len(issues))
	}
	return nil
}
