// Package cli implements the mcspice command line on top of internal/app.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/edp1096/mcspice/internal/app"
	"github.com/edp1096/mcspice/internal/config"
	"github.com/edp1096/mcspice/internal/logging"
)

const (
	ExitRuntime = 1
	ExitUsage   = 2
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error(), Err: err}
}

func runtimeError(err error) error {
	return &ExitError{Code: ExitRuntime, Message: err.Error(), Err: err}
}

// Execute runs the command line in args. Every returned error is an
// *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Errors cobra raises itself are about arguments or commands.
	return usageError(err)
}

type rootOptions struct {
	v          *viper.Viper
	configFile string
	outW       io.Writer
	errW       io.Writer

	// newApp builds the pipeline; tests swap it to inject a solver.
	newApp func(cfg *config.Config, outW io.Writer, logger *slog.Logger) *app.App
}

// NewRootCommand builds the mcspice command tree. Summaries go to outW and
// logs to errW.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	return newRootCommand(&rootOptions{
		v:    config.New(),
		outW: outW,
		errW: errW,
		newApp: func(cfg *config.Config, outW io.Writer, logger *slog.Logger) *app.App {
			return app.New(cfg, outW, logger)
		},
	})
}

var rootKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

func newRootCommand(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcspice",
		Short: "Monte Carlo tolerance analysis for SPICE netlists",
		Long: `mcspice perturbs the R, L and C values of a SPICE netlist, simulates every
variant and aggregates the chosen output channel into a per-timestep
distribution, a density map and a quantile band.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(o.outW)
	root.SetErr(o.errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	pf := root.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "config file (default ./mcspice.{toml,yaml,json})")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")
	// Unique keys, so binding once on the root is enough.
	if err := bindFlags(o.v, pf, rootKeys); err != nil {
		panic(fmt.Sprintf("cli: binding root flags: %v", err))
	}

	root.AddCommand(
		newParseCommand(o),
		newGenerateCommand(o),
		newSimulateCommand(o),
		newAnalyzeCommand(o),
		newRunCommand(o),
	)
	return root
}

// setup binds the flags of the running command to their config keys, loads
// the configuration and builds the App.
func (o *rootOptions) setup(cmd *cobra.Command, keys map[string]string) (*app.App, error) {
	if err := bindFlags(o.v, cmd.Flags(), keys); err != nil {
		return nil, usageError(err)
	}

	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, usageError(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, o.errW)
	if err != nil {
		return nil, usageError(err)
	}
	logger.Debug("configuration loaded", "file", o.v.ConfigFileUsed())
	return o.newApp(cfg, o.outW, logger), nil
}

// bindFlags binds each named flag to a config key. Several commands share
// keys, so binding happens only for the command that runs.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("flag --%s is not defined", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// argOr returns the single positional argument or fallback. An empty result
// is a usage error naming what is missing.
func argOr(args []string, fallback, what string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if fallback == "" {
		return "", usageError(fmt.Errorf("missing %s", what))
	}
	return fallback, nil
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
