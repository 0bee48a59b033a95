// Package parser runs a complete detect, correspond and calibrate pipeline on
// one capture. Pipelines are registered under a strategy tag and selected at
// run time.
package parser

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/hekzam/markers-eval-25-sub000/internal/calibration"
	"github.com/hekzam/markers-eval-25-sub000/internal/corner"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// DefaultSignature is the bottom-right payload content used when none is
// configured.
const DefaultSignature = "hzsig"

// DefaultStrategy replaces unknown strategy tags.
const DefaultStrategy = marker.StrategyQRCode

// Input is one capture together with what the page should look like.
type Input struct {
	Image gocv.Mat // grayscale capture

	// Expected corner centers in theoretical page pixels and the mask of
	// corners that exist on the page.
	Expected     [marker.NumCorners]geometry.Point2D
	ExpectedMask uint8

	Markers      marker.CopyMarkerConfig
	MarkerSizePx float64 // expected marker side in capture pixels
}

// Result is a successful calibration.
type Result struct {
	Transform  geometry.AffineTransform // theoretical page pixels to capture pixels
	Resolution corner.Resolution
	Found      [marker.NumCorners]geometry.Point2D
	Metadata   Metadata
}

// Pipeline turns a capture into a calibration.
type Pipeline interface {
	Parse(in Input) (Result, error)
}

// Env carries what pipelines share.
type Env struct {
	Signature   string
	Calibration calibration.Options
	Logger      *slog.Logger
}

// Factory builds a pipeline.
type Factory func(env Env) Pipeline

// registry is filled at init and read-only afterwards.
var registry = map[string]Factory{
	marker.StrategyQRCode: newPayloadPipeline,
	marker.StrategyCircle: newCirclePipeline,
	marker.StrategyShape:  newShapePipeline,
	marker.StrategyAruco:  newArucoPipeline,
}

// Strategies lists the registered strategy tags in sorted order.
func Strategies() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Known reports whether tag names a registered pipeline.
func Known(tag string) bool {
	_, ok := registry[tag]
	return ok
}

// Dispatcher selects and runs pipelines.
type Dispatcher struct {
	env Env
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.env.Logger = logger
	}
}

// WithSignature sets the bottom-right payload content to accept.
func WithSignature(sig string) Option {
	return func(d *Dispatcher) {
		d.env.Signature = sig
	}
}

// WithCalibration sets the fitting options.
func WithCalibration(opts calibration.Options) Option {
	return func(d *Dispatcher) {
		d.env.Calibration = opts
	}
}

// New returns a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{env: Env{Signature: DefaultSignature}}
	for _, opt := range opts {
		opt(d)
	}
	if d.env.Logger == nil {
		d.env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// Resolve returns tag if it is registered. Unknown tags are logged and
// replaced by DefaultStrategy.
func (d *Dispatcher) Resolve(tag string) string {
	if Known(tag) {
		return tag
	}
	d.env.Logger.Warn("unknown parser, using default", "parser", tag, "default", DefaultStrategy)
	return DefaultStrategy
}

// Pipeline returns the pipeline for tag, resolving unknown tags first.
func (d *Dispatcher) Pipeline(tag string) Pipeline {
	return registry[d.Resolve(tag)](d.env)
}

// Parse runs the pipeline registered under tag on in.
func (d *Dispatcher) Parse(tag string, in Input) (Result, error) {
	return d.Pipeline(tag).Parse(in)
}

// calibrate fits the transform from a resolution. Corners missing from the
// page layout are dropped from the mask first.
func calibrate(env Env, in Input, res corner.Resolution) (Result, error) {
	mask := res.Mask & in.ExpectedMask
	t, err := calibration.Fit(mask, in.Expected, res.Centers, env.Calibration)
	if err != nil {
		return Result{}, fmt.Errorf("calibrate: %w", err)
	}
	return Result{
		Transform:  t,
		Resolution: res,
		Found:      res.Centers,
		Metadata:   DefaultMetadata(),
	}, nil
}

// payloadReader reads the symbol formats printed on the page.
func (e Env) payloadReader(in Input) *detect.PayloadReader {
	return detect.NewPayloadReader(in.Markers.DetectionFlags(),
		detect.WithLogger(e.Logger), detect.WithSymbolSize(in.MarkerSizePx))
}

// detectAll runs a detector and wraps its error with the family name.
func detectAll(d detect.Detector, img gocv.Mat) ([]detect.Feature, error) {
	features, err := d.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect %s: %w", d.Kind(), err)
	}
	return features, nil
}
