// Command devhub is the DevHub developer assistant.
package main

import (
	"fmt"
	"os"

	"github.com/devhub/devhub-go/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
