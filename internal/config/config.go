// Package config loads mcspice settings from defaults, an optional config
// file, MCSPICE_* environment variables and command-line flags, in rising
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/edp1096/mcspice/internal/logging"
	"github.com/edp1096/mcspice/pkg/aggregate"
	"github.com/edp1096/mcspice/pkg/netlist"
	"github.com/edp1096/mcspice/pkg/report"
)

// EnvPrefix prefixes every environment override, e.g. MCSPICE_PERTURB_SEED.
const EnvPrefix = "MCSPICE"

type Config struct {
	Input    InputConfig    `mapstructure:"input"`
	Perturb  PerturbConfig  `mapstructure:"perturb"`
	Simulate SimulateConfig `mapstructure:"simulate"`
	Analyze  AnalyzeConfig  `mapstructure:"analyze"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

type InputConfig struct {
	Netlist string `mapstructure:"netlist"`
	Marker  string `mapstructure:"marker"`
}

type PerturbConfig struct {
	Count               int                        `mapstructure:"count"`
	Seed                uint64                     `mapstructure:"seed"`
	Workers             int                        `mapstructure:"workers"`
	MaxRetries          int                        `mapstructure:"max_retries"`
	DefaultDistribution string                     `mapstructure:"default_distribution"`
	DefaultScale        float64                    `mapstructure:"default_scale"`
	Components          map[string]ComponentConfig `mapstructure:"components"`
}

// ComponentConfig overrides the perturbation of one component by name.
type ComponentConfig struct {
	Distribution string   `mapstructure:"distribution"`
	Scale        *float64 `mapstructure:"scale"` // nil keeps the annotated or default scale
}

type SimulateConfig struct {
	Solver        string        `mapstructure:"solver"`
	Method        string        `mapstructure:"method"`
	MaxPoints     int           `mapstructure:"max_points"`
	NgspiceBinary string        `mapstructure:"ngspice_binary"`
	NgspiceASCII  bool          `mapstructure:"ngspice_ascii"`
	Workers       int           `mapstructure:"workers"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Channel       string        `mapstructure:"channel"`
}

type AnalyzeConfig struct {
	Timesteps     int     `mapstructure:"timesteps"`
	Interpolation string  `mapstructure:"interpolation"`
	Family        string  `mapstructure:"family"`
	Bins          int     `mapstructure:"bins"`
	LogFloor      float64 `mapstructure:"log_floor"`
	BandLower     float64 `mapstructure:"band_lower"`
	BandUpper     float64 `mapstructure:"band_upper"`
}

type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Prefix      string `mapstructure:"prefix"`
	Plots       bool   `mapstructure:"plots"`
	HTML        bool   `mapstructure:"html"`
	TraceFormat string `mapstructure:"trace_format"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with every default registered and
// environment lookup enabled.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input.netlist", "")
	v.SetDefault("input.marker", netlist.MarkerDirective)

	v.SetDefault("perturb.count", 100)
	v.SetDefault("perturb.seed", 1)
	v.SetDefault("perturb.workers", 0)
	v.SetDefault("perturb.max_retries", 1000)
	v.SetDefault("perturb.default_distribution", string(netlist.Uniform))
	v.SetDefault("perturb.default_scale", 0.0)

	v.SetDefault("simulate.solver", "builtin")
	v.SetDefault("simulate.method", "gear")
	v.SetDefault("simulate.max_points", 1_000_000)
	v.SetDefault("simulate.ngspice_binary", "ngspice")
	v.SetDefault("simulate.ngspice_ascii", false)
	v.SetDefault("simulate.workers", 0)
	v.SetDefault("simulate.timeout", "0s")
	v.SetDefault("simulate.channel", "")

	v.SetDefault("analyze.timesteps", 500)
	v.SetDefault("analyze.interpolation", string(aggregate.Linear))
	v.SetDefault("analyze.family", string(aggregate.FamilyNormal))
	v.SetDefault("analyze.bins", 100)
	v.SetDefault("analyze.log_floor", 1e-6)
	v.SetDefault("analyze.band_lower", 0.05)
	v.SetDefault("analyze.band_upper", 0.95)

	v.SetDefault("output.dir", "mcspice-out")
	v.SetDefault("output.prefix", "mc")
	v.SetDefault("output.plots", true)
	v.SetDefault("output.html", false)
	v.SetDefault("output.trace_format", string(report.FormatCSV))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads file into v, or mcspice.{toml,yaml,json} from the working
// directory when file is empty, then decodes and validates the result.
// A missing default file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("mcspice")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return &cfg
}

// ConfigError reports one invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Input.Marker == "" {
		bad("input.marker", "must not be empty")
	}

	p := c.Perturb
	if p.Count < 0 {
		bad("perturb.count", "must not be negative, got %d", p.Count)
	}
	if p.Workers < 0 {
		bad("perturb.workers", "must not be negative, got %d", p.Workers)
	}
	if p.MaxRetries < 0 {
		bad("perturb.max_retries", "must not be negative, got %d", p.MaxRetries)
	}
	if !netlist.Distribution(strings.ToLower(p.DefaultDistribution)).Known() {
		bad("perturb.default_distribution", "unknown distribution %q", p.DefaultDistribution)
	}
	if !validScale(p.DefaultScale) {
		bad("perturb.default_scale", "must be a finite non-negative number, got %v", p.DefaultScale)
	}
	for name, comp := range p.Components {
		field := "perturb.components." + name
		if comp.Distribution != "" && !netlist.Distribution(strings.ToLower(comp.Distribution)).Known() {
			bad(field+".distribution", "unknown distribution %q", comp.Distribution)
		}
		if comp.Scale != nil && !validScale(*comp.Scale) {
			bad(field+".scale", "must be a finite non-negative number, got %v", *comp.Scale)
		}
	}

	s := c.Simulate
	switch s.Solver {
	case "builtin", "ngspice":
	default:
		bad("simulate.solver", "must be builtin or ngspice, got %q", s.Solver)
	}
	switch s.Method {
	case "gear", "euler":
	default:
		bad("simulate.method", "must be gear or euler, got %q", s.Method)
	}
	if s.MaxPoints < 0 {
		bad("simulate.max_points", "must not be negative, got %d", s.MaxPoints)
	}
	if s.Workers < 0 {
		bad("simulate.workers", "must not be negative, got %d", s.Workers)
	}
	if s.Timeout < 0 {
		bad("simulate.timeout", "must not be negative, got %s", s.Timeout)
	}

	a := c.Analyze
	if a.Timesteps < 2 {
		bad("analyze.timesteps", "must be at least 2, got %d", a.Timesteps)
	}
	if _, err := aggregate.ParseInterpolation(a.Interpolation); err != nil {
		bad("analyze.interpolation", "%v", err)
	}
	if _, err := aggregate.ParseFamily(a.Family); err != nil {
		bad("analyze.family", "%v", err)
	}
	if a.Bins <= 0 {
		bad("analyze.bins", "must be positive, got %d", a.Bins)
	}
	if !(a.LogFloor > 0) {
		bad("analyze.log_floor", "must be positive, got %v", a.LogFloor)
	}
	if !(a.BandLower >= 0 && a.BandLower < a.BandUpper && a.BandUpper <= 1) {
		bad("analyze.band_lower", "band [%v, %v] must satisfy 0 <= lower < upper <= 1", a.BandLower, a.BandUpper)
	}

	o := c.Output
	if o.Dir == "" {
		bad("output.dir", "must not be empty")
	}
	if o.Prefix == "" || strings.ContainsAny(o.Prefix, `/\`) {
		bad("output.prefix", "must be a non-empty file name prefix, got %q", o.Prefix)
	}
	if _, err := report.ParseTraceFormat(o.TraceFormat); err != nil {
		bad("output.trace_format", "%v", err)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		bad("log.level", "%v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		bad("log.format", "must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

func validScale(s float64) bool {
	return s >= 0 && !math.IsInf(s, 0)
}
