// Package config loads benchmark settings from a YAML file, MARKERS_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hekzam/markers-eval-25-sub000/internal/bench"
	"github.com/hekzam/markers-eval-25-sub000/internal/degrade"
	"github.com/hekzam/markers-eval-25-sub000/internal/generator"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/internal/parser"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MARKERS_OUTPUT_CSV.
const EnvPrefix = "MARKERS"

// DefaultMarkers is used by sweeps that name no marker config.
const DefaultMarkers = "(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,none)"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Output selects where results go.
type Output struct {
	CSV           string `mapstructure:"csv"`
	Mode          string `mapstructure:"mode"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	MetricsFile   string `mapstructure:"metrics_file"`
	SaveDir       string `mapstructure:"save_dir"`
}

// Generator selects the page compositor.
type Generator struct {
	Kind    string `mapstructure:"kind"` // builtin or external
	Command string `mapstructure:"command"`
	WorkDir string `mapstructure:"workdir"`
}

// Precision holds evaluator settings.
type Precision struct {
	Margin float64 `mapstructure:"margin"`
}

// Sweep is one parser and marker combination. Preset and Degradation
// override the run-wide degradation settings.
type Sweep struct {
	Parser      string         `mapstructure:"parser"`
	Markers     string         `mapstructure:"markers"`
	Preset      string         `mapstructure:"preset"`
	Degradation map[string]any `mapstructure:"degradation"`
}

// Config is the decoded benchmark configuration.
type Config struct {
	Copies    int    `mapstructure:"copies"`
	Seed      int64  `mapstructure:"seed"`
	Jobs      int    `mapstructure:"jobs"`
	Name      string `mapstructure:"name"`
	Signature string `mapstructure:"signature"`
	LogLevel  string `mapstructure:"log_level"`

	Output    Output             `mapstructure:"output"`
	Generator Generator          `mapstructure:"generator"`
	Page      generator.PageSpec `mapstructure:"page"`
	Precision Precision          `mapstructure:"precision"`

	// Preset names the base degradation; Degradation overrides its fields.
	Preset      string         `mapstructure:"preset"`
	Degradation map[string]any `mapstructure:"degradation"`

	Sweeps []Sweep `mapstructure:"sweeps"`
}

func setDefaults(v *viper.Viper) {
	a4 := generator.A4()
	v.SetDefault("copies", 10)
	v.SetDefault("seed", 1)
	v.SetDefault("jobs", 1)
	v.SetDefault("name", "bench")
	v.SetDefault("signature", parser.DefaultSignature)
	v.SetDefault("log_level", "info")
	v.SetDefault("output.csv", "benchmark.csv")
	v.SetDefault("output.mode", string(bench.ModeOverwrite))
	v.SetDefault("output.postgres_table", bench.DefaultTable)
	v.SetDefault("generator.kind", "builtin")
	v.SetDefault("page.width_mm", a4.WidthMM)
	v.SetDefault("page.height_mm", a4.HeightMM)
	v.SetDefault("page.dpi", a4.DPI)
	v.SetDefault("page.marker_mm", a4.MarkerMM)
	v.SetDefault("page.margin_mm", a4.MarginMM)
	v.SetDefault("precision.margin", 0.0)
	v.SetDefault("preset", "default")
}

// Flags returns the benchmark flag set. Flag values win over the file and
// the environment.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("benchmark", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "YAML configuration file")
	fs.IntP("copies", "n", 10, "copies per sweep")
	fs.Int64("seed", 1, "master seed")
	fs.IntP("jobs", "j", 1, "copies processed concurrently")
	fs.StringP("output", "o", "benchmark.csv", "CSV output file")
	fs.String("mode", string(bench.ModeOverwrite), "CSV mode: overwrite or append")
	fs.String("preset", "default", "degradation preset: "+strings.Join(degrade.PresetNames(), ", "))
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("save-dir", "", "directory receiving generated, degraded and rectified images")
	return fs
}

var flagKeys = map[string]string{
	"copies":    "copies",
	"seed":      "seed",
	"jobs":      "jobs",
	"output":    "output.csv",
	"mode":      "output.mode",
	"preset":    "preset",
	"log-level": "log_level",
	"save-dir":  "output.save_dir",
}

// Load reads path (optional), the environment and fs (optional) into a
// validated Config.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks everything that can be checked without touching images.
func (c Config) Validate() error {
	if c.Copies < 1 {
		return fmt.Errorf("%w: copies must be at least 1, got %d", ErrInvalidConfig, c.Copies)
	}
	if _, err := bench.ParseMode(c.Output.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Output.CSV == "" {
		return fmt.Errorf("%w: output.csv is required", ErrInvalidConfig)
	}
	switch c.Generator.Kind {
	case "builtin":
	case "external":
		if strings.TrimSpace(c.Generator.Command) == "" {
			return fmt.Errorf("%w: generator.command is required for the external generator", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown generator kind %q", ErrInvalidConfig, c.Generator.Kind)
	}
	if err := c.Page.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Bench(nil); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, err
	}
	return l, nil
}

// Logger returns a text logger on w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Bench converts the configuration into harness settings. Unknown parser
// tags are replaced by the default strategy with a warning.
func (c Config) Bench(logger *slog.Logger) (bench.Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	out := bench.Config{
		Copies:    c.Copies,
		Seed:      c.Seed,
		Name:      c.Name,
		Page:      c.Page,
		Signature: c.Signature,
		Margin:    c.Precision.Margin,
		Jobs:      c.Jobs,
		SaveDir:   c.Output.SaveDir,
	}

	sweeps := c.Sweeps
	if len(sweeps) == 0 {
		sweeps = []Sweep{{}}
	}
	for i, s := range sweeps {
		bs, err := c.sweep(s, logger)
		if err != nil {
			return bench.Config{}, fmt.Errorf("%w: sweep %d: %w", ErrInvalidConfig, i, err)
		}
		out.Sweeps = append(out.Sweeps, bs)
	}
	return out, nil
}

func (c Config) sweep(s Sweep, logger *slog.Logger) (bench.Sweep, error) {
	markers := s.Markers
	if markers == "" {
		markers = DefaultMarkers
	}
	cfg, err := marker.ParseConfig(markers)
	if err != nil {
		return bench.Sweep{}, err
	}

	tag := s.Parser
	switch {
	case tag == "":
		tag = cfg.SuggestParser()
	case !parser.Known(tag):
		logger.Warn("unknown parser, using default", "parser", tag, "default", parser.DefaultStrategy)
		tag = parser.DefaultStrategy
	}

	preset := c.Preset
	if s.Preset != "" {
		preset = s.Preset
	}
	params, err := degrade.Preset(preset)
	if err != nil {
		return bench.Sweep{}, err
	}
	if err := overlay(&params, c.Degradation); err != nil {
		return bench.Sweep{}, err
	}
	if err := overlay(&params, s.Degradation); err != nil {
		return bench.Sweep{}, err
	}
	if err := params.Validate(); err != nil {
		return bench.Sweep{}, err
	}
	return bench.Sweep{Parser: tag, Markers: cfg, Degradation: params}, nil
}

// overlay decodes the keys present in fields onto p.
func overlay(p *degrade.Params, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("degradation: %w", err)
	}
	return nil
}

// NewGenerator builds the configured page compositor.
func (c Config) NewGenerator(logger *slog.Logger) (generator.Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Generator.Kind == "external" {
		return generator.NewExternal(c.Generator.Command, c.Generator.WorkDir, logger)
	}
	return generator.NewBuiltin(c.Page, generator.WithLogger(logger))
}
