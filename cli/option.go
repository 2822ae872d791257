package cli

// Options is the root command that groups sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config string     `short:"f" long:"config" description:"config YAML path (defaults to $DEVHUB_CONFIG)"`
	Query  *QueryCmd  `command:"query"  description:"Ask DevHub one question"`
	Chat   *ChatCmd   `command:"chat"   description:"Interactive session with history"`
	Serve  *ServeCmd  `command:"serve"  description:"Start the HTTP API"`
	Eval   *EvalCmd   `command:"eval"   description:"Score scenario questions under injected faults"`
	Show   *ConfigCmd `command:"config" description:"Print the effective configuration and any issues"`
}

// Init instantiates the sub-command referenced by the first argument so that
// flags.Parse can populate its fields.
func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "query":
		o.Query = &QueryCmd{}
	case "chat":
		o.Chat = &ChatCmd{}
	case "serve":
		o.Serve = &ServeCmd{}
	case "eval":
		o.Eval = &EvalCmd{}
	case "config":
		o.Show = &ConfigCmd{}
	}
}
