package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/devhub/devhub-go/devhub"
)

func printResult(w io.Writer, result *devhub.QueryResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(w, result.Response)
	fmt.Fprintln(w)
	if len(result.ToolsCalled) == 0 {
		fmt.Fprintln(w, "Tools called: none")
		return nil
	}
	names := make([]string, len(result.ToolsCalled))
	for i, name := range result.ToolsCalled {
		names[i] = string(name)
	}
	fmt.Fprintf(w, "Tools called: %s\n", strings.Join(names, ", "))
	for _, r := range result.ToolResults {
		if !r.Success && r.Error != nil {
			fmt.Fprintf(w, "  %s failed (%s): %s\n", r.Tool, r.Error.Kind, r.Error.Message)
		}
	}
	return nil
}
