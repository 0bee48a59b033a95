package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hekzam/markers-eval-25-sub000/internal/degrade"
	"github.com/hekzam/markers-eval-25-sub000/internal/generator"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/internal/parser"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benchmark.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 10, c.Copies)
	assert.Equal(t, "overwrite", c.Output.Mode)
	assert.Equal(t, parser.DefaultSignature, c.Signature)
	assert.Equal(t, generator.A4(), c.Page)

	b, err := c.Bench(nil)
	require.NoError(t, err)
	require.Len(t, b.Sweeps, 1)
	assert.Equal(t, marker.StrategyQRCode, b.Sweeps[0].Parser)
	assert.Equal(t, degrade.Default(), b.Sweeps[0].Degradation)
}

func TestLoadFileWithSweeps(t *testing.T) {
	path := writeConfig(t, `
copies: 4
seed: 12
jobs: 2
signature: secret
output:
  csv: out.csv
  mode: append
preset: light
degradation:
  gaussian_sigma: 1.5
precision:
  margin: 2
sweeps:
  - markers: "(circle,circle,circle,qrcode:encoded,qrcode)"
  - parser: shape
    markers: "(square,square,square,qrcode:encoded,qrcode)"
    preset: harsh
    degradation:
      jpeg_max_quality: 0
`)
	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "append", c.Output.Mode)
	assert.Equal(t, "secret", c.Signature)

	b, err := c.Bench(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Copies)
	assert.Equal(t, int64(12), b.Seed)
	assert.Equal(t, 2.0, b.Margin)
	require.Len(t, b.Sweeps, 2)

	first := b.Sweeps[0]
	assert.Equal(t, marker.StrategyCircle, first.Parser, "suggested from the markers")
	light, _ := degrade.Preset("light")
	light.GaussianSigma = 1.5
	assert.Equal(t, light, first.Degradation)

	second := b.Sweeps[1]
	assert.Equal(t, marker.StrategyShape, second.Parser)
	assert.Equal(t, 0, second.Degradation.JPEGMaxQuality)
	assert.Equal(t, 1.5, second.Degradation.GaussianSigma, "run-wide overrides apply before the sweep's")
}

func TestFlagsOverrideFileAndEnv(t *testing.T) {
	path := writeConfig(t, "copies: 4\noutput:\n  csv: file.csv\n")
	t.Setenv("MARKERS_OUTPUT_CSV", "env.csv")
	t.Setenv("MARKERS_SEED", "77")

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--copies", "9"}))

	c, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Copies)
	assert.Equal(t, "env.csv", c.Output.CSV)
	assert.Equal(t, int64(77), c.Seed)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"malformed markers": "sweeps:\n  - markers: bad\n",
		"bad mode":          "output:\n  mode: replace\n",
		"zero copies":       "copies: 0\n",
		"unknown preset":    "preset: gentle\n",
		"unknown field":     "degradation:\n  sparkle: 3\n",
		"out of range":      "degradation:\n  salt_pepper: 4\n",
		"external no cmd":   "generator:\n  kind: external\n",
		"unknown generator": "generator:\n  kind: printer\n",
		"bad level":         "log_level: loud\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestUnknownParserFallsBack(t *testing.T) {
	path := writeConfig(t, "sweeps:\n  - parser: hologram\n")
	c, err := Load(path, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	b, err := c.Bench(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	assert.Equal(t, parser.DefaultStrategy, b.Sweeps[0].Parser)
	assert.Contains(t, buf.String(), "unknown parser")
}

func TestNewGenerator(t *testing.T) {
	c, err := Load("", nil)
	require.NoError(t, err)
	gen, err := c.NewGenerator(c.Logger(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.IsType(t, &generator.Builtin{}, gen)

	c.Generator = Generator{Kind: "external", Command: "compose {out}"}
	gen, err = c.NewGenerator(nil)
	require.NoError(t, err)
	assert.IsType(t, &generator.External{}, gen)
}
