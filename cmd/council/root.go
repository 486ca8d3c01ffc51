package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ErikCohenDev/consensus-council/internal/app"
	"github.com/ErikCohenDev/consensus-council/internal/config"
)

// errGateFailed marks a completed audit or run whose gate did not pass.
var errGateFailed = errors.New("quality gate not passed")

type cli struct {
	v       *viper.Viper
	out     io.Writer
	errOut  io.Writer
	cfgFile string
	appOpts []app.Option
}

func newCLI(out, errOut io.Writer, opts ...app.Option) *cli {
	return &cli{v: config.NewViper(), out: out, errOut: errOut, appOpts: opts}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "council",
		Short: "Consensus review of planning documents by a panel of LLM auditors",
		Long: `council sends each stage document to a panel of auditor roles, combines
their scores with a trimmed mean, approval ratio and severity gates, and
reports PASS or FAIL per stage. The run command iterates over the whole
stage chain, checking alignment between consecutive documents.

Configuration comes from council.yaml, COUNCIL_* environment variables
and flags, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default ./council.yaml if present)")
	pf.Bool("json", false, "output JSON")
	pf.String("model", "", "default auditor model")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	_ = c.v.BindPFlag("json", pf.Lookup("json"))
	_ = c.v.BindPFlag("llm.model", pf.Lookup("model"))
	_ = c.v.BindPFlag("log.level", pf.Lookup("log-level"))

	root.AddCommand(c.auditCmd(), c.runCmd(), c.historyCmd(), c.showCmd(), c.workerCmd())
	return root
}

// loadConfig resolves configuration after flags are parsed. Unchanged flags
// fall back to file, environment and defaults.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.Load(c.v, c.cfgFile)
}

// withApp loads configuration, builds the app and closes it after fn.
func (c *cli) withApp(ctx context.Context, fn func(context.Context, *app.App) error) (err error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log, c.errOut)
	opts := append([]app.Option{app.WithLogger(logger)}, c.appOpts...)

	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(ctx, a)
}

func (c *cli) jsonOutput() bool { return c.v.GetBool("json") }
