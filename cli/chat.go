package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devhub/devhub-go/memory"
)

// ChatCmd runs an interactive session. Lines starting with / are commands.
type ChatCmd struct {
	FaultFlags
	Server  string `short:"s" long:"server" description:"DevHub server URL; runs in process when empty"`
	Session string `long:"session" description:"resume this session id"`
	Timeout int    `short:"t" long:"timeout" description:"per-question timeout in seconds (0 = none)"`
}

const chatHelp = `Commands:
  /history [n]  show the last n messages of this session
  /faults       show the configured failure rates
  /clear        forget this session and start a new one
  /quit         leave`

func (c *ChatCmd) Execute(_ []string) error {
	ctx := context.Background()
	timeout := time.Duration(c.Timeout) * time.Second

	sess, err := openSession(ctx, c.Server, c.Session, timeout, c.FaultFlags)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Fprintf(stdout, "DevHub chat (session %s). Type /help for commands.\n", sess.ID())
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := c.command(ctx, sess, line); done {
				return nil
			}
			continue
		}

		askCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			askCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		result, err := sess.Ask(askCtx, line)
		cancel()
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			continue
		}
		printResult(stdout, result, false)
	}
}

// command handles one slash command and reports whether the chat should end.
func (c *ChatCmd) command(ctx context.Context, sess session, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(stdout, chatHelp)
	case "/history":
		limit := memory.DefaultLimit
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n <= 0 {
				fmt.Fprintln(stdout, "usage: /history [n]")
				return false
			}
			limit = n
		}
		summary, err := sess.History(ctx, limit)
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			return false
		}
		fmt.Fprintln(stdout, summary)
	case "/faults":
		if c.Server != "" {
			fmt.Fprintln(stdout, "fault rates are configured on the server")
			return false
		}
		cfg, err := c.FaultFlags.load()
		if err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			return false
		}
		cfg.Print(stdout)
	case "/clear":
		if err := sess.Reset(ctx); err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(stdout, "started session %s\n", sess.ID())
	default:
		fmt.Fprintf(stdout, "unknown command %s\n%s\n", fields[0], chatHelp)
	}
	return false
}
