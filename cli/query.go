package cli

import (
	"context"
	"errors"
	"strings"
	"time"
)

// QueryCmd asks a single question.
// Usage: devhub query -q "Is staging working?"
type QueryCmd struct {
	FaultFlags
	Query   string `short:"q" long:"query" description:"question to ask (or pass it as arguments)"`
	Server  string `short:"s" long:"server" description:"DevHub server URL; runs in process when empty"`
	Session string `long:"session" description:"session id to record the exchange under"`
	JSON    bool   `long:"json" description:"print the full result as JSON"`
	Timeout int    `short:"t" long:"timeout" description:"timeout in seconds (0 = none)"`
}

func (c *QueryCmd) Execute(args []string) error {
	question := strings.TrimSpace(c.Query)
	if question == "" {
		question = strings.TrimSpace(strings.Join(args, " "))
	}
	if question == "" {
		return errors.New("query is required: use -q or pass the question as arguments")
	}

	ctx := context.Background()
	timeout := time.Duration(c.Timeout) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sess, err := openSession(ctx, c.Server, c.Session, timeout, c.FaultFlags)
	if err != nil {
		return err
	}
	defer sess.Close()

	result, err := sess.Ask(ctx, question)
	if err != nil {
		return err
	}
	return printResult(stdout, result, c.JSON)
}
