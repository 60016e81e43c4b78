package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edp1096/mcspice/internal/app"
	"github.com/edp1096/mcspice/pkg/util"
)

func newParseCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [netlist]",
		Short: "List the perturbable components of a netlist",
		Args:  maxArgs(1),
	}
	cmd.Flags().String("marker", "", "directive that opens the component section")
	cmd.Flags().Float64("scale", 0, "default relative scale for unannotated components")
	cmd.Flags().String("dist", "", "default distribution: uniform or normal")
	keys := map[string]string{
		"marker": "input.marker",
		"scale":  "perturb.default_scale",
		"dist":   "perturb.default_distribution",
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := o.setup(cmd, keys)
		if err != nil {
			return err
		}
		path, err := argOr(args, a.Config().Input.Netlist, "netlist path")
		if err != nil {
			return err
		}
		report, err := a.Parse(cmd.Context(), path)
		if err != nil {
			return runtimeError(err)
		}
		if _, err := report.WriteTo(o.outW); err != nil {
			return runtimeError(err)
		}
		return nil
	}
	return cmd
}

var generateKeys = map[string]string{
	"marker":  "input.marker",
	"count":   "perturb.count",
	"seed":    "perturb.seed",
	"scale":   "perturb.default_scale",
	"dist":    "perturb.default_distribution",
	"out":     "output.dir",
	"prefix":  "output.prefix",
	"workers": "perturb.workers",
}

func addGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("marker", "", "directive that opens the component section")
	f.IntP("count", "n", 0, "number of Monte Carlo trials")
	f.Uint64("seed", 0, "random seed")
	f.Float64("scale", 0, "default relative scale for unannotated components")
	f.String("dist", "", "default distribution: uniform or normal")
	f.StringP("out", "o", "", "output directory")
	f.String("prefix", "", "variant file name prefix")
	f.Int("workers", 0, "parallel perturbation workers (0 = all CPUs)")
}

func newGenerateCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [netlist]",
		Short: "Write perturbed variants of a netlist",
		Args:  maxArgs(1),
	}
	addGenerateFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := o.setup(cmd, generateKeys)
		if err != nil {
			return err
		}
		path, err := argOr(args, a.Config().Input.Netlist, "netlist path")
		if err != nil {
			return err
		}
		res, err := a.Generate(cmd.Context(), path)
		if err != nil {
			return runtimeError(err)
		}
		printGenerate(o.outW, res)
		return nil
	}
	return cmd
}

var simulateKeys = map[string]string{
	"solver":  "simulate.solver",
	"ngspice": "simulate.ngspice_binary",
	"method":  "simulate.method",
	"timeout": "simulate.timeout",
	"jobs":    "simulate.workers",
}

func addSimulateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("solver", "", "solver: builtin or ngspice")
	f.String("ngspice", "", "ngspice binary")
	f.String("method", "", "builtin integration method: gear or euler")
	f.Duration("timeout", 0, "per-run timeout (0 = none)")
	f.IntP("jobs", "j", 0, "parallel solver runs (0 = all CPUs)")
}

func newSimulateCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [dir]",
		Short: "Simulate every variant in a directory",
		Args:  maxArgs(1),
	}
	addSimulateFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := o.setup(cmd, simulateKeys)
		if err != nil {
			return err
		}
		dir, err := argOr(args, a.Config().Output.Dir, "directory")
		if err != nil {
			return err
		}
		res, err := a.Simulate(cmd.Context(), dir)
		if err != nil {
			return runtimeError(err)
		}
		printSimulate(o.outW, res)
		return nil
	}
	return cmd
}

var analyzeKeys = map[string]string{
	"channel":       "simulate.channel",
	"timesteps":     "analyze.timesteps",
	"interpolation": "analyze.interpolation",
	"family":        "analyze.family",
	"bins":          "analyze.bins",
	"format":        "output.trace_format",
	"plots":         "output.plots",
	"html":          "output.html",
}

func addAnalyzeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("channel", "c", "", "output channel to aggregate, e.g. V(out)")
	f.Int("timesteps", 0, "points of the common time grid")
	f.String("interpolation", "", "linear, nearest, previous, next or cubic")
	f.String("family", "", "fitted distribution: normal or uniform")
	f.Int("bins", 0, "density bins per axis")
	f.String("format", "", "trace format: csv or yaml")
	f.Bool("plots", true, "write PNG plots")
	f.Bool("html", false, "write an interactive HTML band chart")
}

func newAnalyzeCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [dir]",
		Short: "Aggregate the simulated series of a directory",
		Args:  maxArgs(1),
	}
	addAnalyzeFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := o.setup(cmd, analyzeKeys)
		if err != nil {
			return err
		}
		dir, err := argOr(args, a.Config().Output.Dir, "directory")
		if err != nil {
			return err
		}
		res, err := a.Analyze(cmd.Context(), dir)
		if err != nil {
			return runtimeError(err)
		}
		printAnalyze(o.outW, res)
		return nil
	}
	return cmd
}

func newRunCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [netlist]",
		Short: "Generate, simulate and analyze in one go",
		Args:  maxArgs(1),
	}
	addGenerateFlags(cmd)
	addSimulateFlags(cmd)
	addAnalyzeFlags(cmd)

	keys := make(map[string]string, len(generateKeys)+len(simulateKeys)+len(analyzeKeys))
	for _, m := range []map[string]string{generateKeys, simulateKeys, analyzeKeys} {
		for flag, key := range m {
			keys[flag] = key
		}
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := o.setup(cmd, keys)
		if err != nil {
			return err
		}
		path, err := argOr(args, a.Config().Input.Netlist, "netlist path")
		if err != nil {
			return err
		}
		res, err := a.Run(cmd.Context(), path)
		if err != nil {
			return runtimeError(err)
		}
		printGenerate(o.outW, res.Generate)
		printSimulate(o.outW, res.Simulate)
		printAnalyze(o.outW, res.Analyze)
		fmt.Fprintf(o.outW, "finished in %s\n", res.Elapsed.Round(time.Millisecond))
		return nil
	}
	return cmd
}

func printGenerate(w io.Writer, res *app.GenerateResult) {
	fmt.Fprintf(w, "batch %s: wrote %d variants to %s\n", res.Manifest.BatchID, len(res.Paths), res.Dir)
	if res.Removed > 0 {
		fmt.Fprintf(w, "removed %d stale variants\n", res.Removed)
	}
	for _, t := range res.Failed {
		fmt.Fprintf(w, "trial %d failed: %v\n", t.Index, t.Err)
	}
}

func printSimulate(w io.Writer, res *app.SimulateResult) {
	fmt.Fprintf(w, "batch %s: %d succeeded, %d failed\n", res.BatchID, res.Succeeded, res.Failed)
	for _, r := range res.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "  %s: %v\n", r.Name, r.Err)
		}
	}
}

func printAnalyze(w io.Writer, res *app.AnalyzeResult) {
	fmt.Fprintf(w, "channel %s over %d runs", res.Channel, len(res.Aligned.Runs))
	if n := len(res.Excluded); n > 0 {
		fmt.Fprintf(w, " (%d excluded)", n)
	}
	fmt.Fprintln(w)
	for _, ex := range res.Excluded {
		fmt.Fprintf(w, "  excluded %v\n", ex)
	}

	env := res.Envelope
	if last := len(env.Time) - 1; last >= 0 {
		unit := channelUnit(res.Channel)
		fmt.Fprintf(w, "at t=%s: median %s, band [%s, %s]\n",
			util.FormatValueFactor(env.Time[last], "s"),
			util.FormatValueFactor(env.Median[last], unit),
			util.FormatValueFactor(env.Lower[last], unit),
			util.FormatValueFactor(env.Upper[last], unit))
	}
	for _, f := range res.Files {
		fmt.Fprintf(w, "wrote %s\n", f)
	}
}

func channelUnit(channel string) string {
	switch {
	case strings.HasPrefix(strings.ToUpper(channel), "V("):
		return "V"
	case strings.HasPrefix(strings.ToUpper(channel), "I("):
		return "A"
	}
	return ""
}
