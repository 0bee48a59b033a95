package bench

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/hekzam/markers-eval-25-sub000/internal/calibration"
	"github.com/hekzam/markers-eval-25-sub000/internal/degrade"
	"github.com/hekzam/markers-eval-25-sub000/internal/generator"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/internal/parser"
	"github.com/hekzam/markers-eval-25-sub000/internal/precision"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Sweep is one parser and marker combination measured over every copy.
type Sweep struct {
	Parser      string
	Markers     marker.CopyMarkerConfig
	Degradation degrade.Params
}

// Config drives a run.
type Config struct {
	Copies    int // per sweep
	Seed      int64
	Name      string // identity name printed on every copy
	Page      generator.PageSpec
	Signature string
	Margin    float64
	Jobs      int
	Sweeps    []Sweep

	// SaveDir, when set, receives each copy's generated, degraded and
	// rectified images.
	SaveDir string
}

// Validate checks the configuration before any image work.
func (c Config) Validate() error {
	if c.Copies < 1 {
		return fmt.Errorf("copies must be at least 1, got %d", c.Copies)
	}
	if len(c.Sweeps) == 0 {
		return errors.New("no sweep configured")
	}
	if err := c.Page.Validate(); err != nil {
		return err
	}
	for i, s := range c.Sweeps {
		if err := s.Degradation.Validate(); err != nil {
			return fmt.Errorf("sweep %d: %w", i, err)
		}
	}
	return nil
}

// Seeds draws n per-copy seeds from the master seed in copy order.
func Seeds(master int64, n int) []int64 {
	rng := rand.New(rand.NewSource(master))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	return seeds
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Parser  string
	Markers string
	Summary precision.Summary
}

// Report is the outcome of a run.
type Report struct {
	RunID  string
	Sweeps []SweepReport
}

// Harness runs benchmark sweeps.
type Harness struct {
	cfg        Config
	gen        generator.Generator
	dispatcher *parser.Dispatcher
	sink       Sink
	metrics    *Metrics
	logger     *slog.Logger
	runID      uuid.UUID
	clock      func() time.Time
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithSinks sets where rows go. The harness does not close them.
func WithSinks(sinks ...Sink) Option {
	return func(h *Harness) {
		h.sink = MultiSink(sinks)
	}
}

// WithMetrics records every row in m.
func WithMetrics(m *Metrics) Option {
	return func(h *Harness) {
		h.metrics = m
	}
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *parser.Dispatcher) Option {
	return func(h *Harness) {
		h.dispatcher = d
	}
}

// WithRunID fixes the run id.
func WithRunID(id uuid.UUID) Option {
	return func(h *Harness) {
		h.runID = id
	}
}

// New validates cfg and returns a harness using gen for every copy.
func New(cfg Config, gen generator.Generator, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Signature == "" {
		cfg.Signature = parser.DefaultSignature
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = 1
	}

	h := &Harness{
		cfg:    cfg,
		gen:    gen,
		sink:   MultiSink(nil),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		runID:  uuid.New(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.dispatcher == nil {
		h.dispatcher = parser.New(parser.WithLogger(h.logger), parser.WithSignature(cfg.Signature))
	}
	return h, nil
}

// RunID identifies the rows of this run.
func (h *Harness) RunID() string {
	return h.runID.String()
}

type task struct {
	copy  int // 1-based over the whole run
	seed  int64
	sweep int
}

// Run processes every copy of every sweep. Copies may run concurrently but
// rows reach the sinks in copy order. A generator failure aborts the run;
// any other failure is recorded as a failed row.
func (h *Harness) Run(ctx context.Context) (Report, error) {
	total := h.cfg.Copies * len(h.cfg.Sweeps)
	seeds := Seeds(h.cfg.Seed, total)
	tasks := make([]task, total)
	for i := range tasks {
		tasks[i] = task{copy: i + 1, seed: seeds[i], sweep: i / h.cfg.Copies}
	}

	h.logger.Info("benchmark started",
		"run_id", h.RunID(), "copies", total, "sweeps", len(h.cfg.Sweeps), "jobs", h.cfg.Jobs, "seed", h.cfg.Seed)

	results := make([]chan Row, total)
	for i := range results {
		results[i] = make(chan Row, 1)
	}
	averages := make([][]float64, len(h.cfg.Sweeps))

	g, gctx := errgroup.WithContext(ctx)
	// One slot is the committer
	g.SetLimit(h.cfg.Jobs + 1)
	g.Go(func() error {
		for i, ch := range results {
			var row Row
			select {
			case row = <-ch:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := h.sink.Write(gctx, row); err != nil {
				return err
			}
			if h.metrics != nil {
				h.metrics.Observe(row)
			}
			s := tasks[i].sweep
			averages[s] = append(averages[s], row.Errors.Average)
		}
		return nil
	})

	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := h.runCopy(gctx, t)
			if err != nil {
				return err
			}
			results[i] <- row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("benchmark aborted: %w", err)
	}

	report := Report{RunID: h.RunID()}
	for i, s := range h.cfg.Sweeps {
		sr := SweepReport{
			Parser:  h.dispatcher.Resolve(s.Parser),
			Markers: s.Markers.String(),
			Summary: precision.Summarize(averages[i]),
		}
		report.Sweeps = append(report.Sweeps, sr)
		h.logger.Info("sweep finished",
			"parser", sr.Parser, "markers", sr.Markers,
			"successes", sr.Summary.Successes, "copies", sr.Summary.Copies,
			"mean_error", sr.Summary.MeanError, "max_error", sr.Summary.MaxError)
	}
	return report, nil
}

// runCopy returns an error only when the run must stop.
func (h *Harness) runCopy(ctx context.Context, t task) (Row, error) {
	sweep := h.cfg.Sweeps[t.sweep]
	row := Row{
		RunID:   h.RunID(),
		Copy:    t.copy,
		File:    fmt.Sprintf("copy-%04d", t.copy),
		Parser:  h.dispatcher.Resolve(sweep.Parser),
		Markers: sweep.Markers.String(),
		Seed:    t.seed,
		Errors:  precision.Failed(),
	}
	logger := h.logger.With("copy", t.copy, "seed", t.seed, "parser", row.Parser, "markers", row.Markers)

	req := generator.Request{
		Copy:      t.copy,
		Name:      h.cfg.Name,
		Page:      1,
		Markers:   sweep.Markers,
		Signature: h.cfg.Signature,
		OutDir:    h.copyDir(),
	}
	start := h.clock()
	art, err := h.gen.Generate(ctx, req)
	row.GenerationMS = milliseconds(h.clock().Sub(start))
	if err != nil {
		return Row{}, fmt.Errorf("copy %d: %w", t.copy, err)
	}
	defer art.Close()
	if dir := h.copyDir(); dir != "" {
		if err := art.Save(dir, t.copy); err != nil {
			logger.Warn("cannot save generated page", "error", err)
		}
	}
	if art.ImagePath != "" {
		row.File = art.ImagePath
	}

	if err := art.Load(); err != nil {
		logger.Warn("copy skipped", "error", err)
		return row, nil
	}

	layout := groundtruth.Split(art.Boxes)
	centers, mask := layout.CornerCenters()
	scaler := geometry.NewScaler(h.cfg.Page.Size(), art.Image.Cols(), art.Image.Rows())
	in := parser.Input{
		ExpectedMask: mask,
		Markers:      sweep.Markers,
		MarkerSizePx: h.cfg.Page.MarkerMM * scaler.Raster.Width / scaler.Page.Width,
	}
	for i, c := range centers {
		in.Expected[i] = scaler.ToPixel(c)
	}

	rng := rand.New(rand.NewSource(t.seed))
	degraded, truth, err := degrade.Apply(art.Image, rng, sweep.Degradation)
	if err != nil {
		logger.Warn("degradation failed", "error", err)
		return row, nil
	}
	defer degraded.Close()
	in.Image = degraded

	start = h.clock()
	res, err := h.dispatcher.Parse(sweep.Parser, in)
	row.DetectionMS = milliseconds(h.clock().Sub(start))
	if err != nil {
		logger.Info("copy failed", "error", err)
		h.save(logger, t.copy, degraded, nil, layout, scaler)
		return row, nil
	}

	errs, err := precision.Evaluate(in.Expected, truth, res.Transform, h.cfg.Margin)
	if err != nil {
		logger.Info("copy failed", "error", err)
		return row, nil
	}
	row.Success = true
	row.Errors = errs
	logger.Info("copy passed", "corners", res.Resolution.Count(), "err_avg", errs.Average, "detection_ms", row.DetectionMS)

	h.save(logger, t.copy, degraded, &res, layout, scaler)
	return row, nil
}

func (h *Harness) copyDir() string {
	if h.cfg.SaveDir == "" {
		return ""
	}
	return filepath.Join(h.cfg.SaveDir, "generated")
}

// save writes the degraded capture and, when calibrated, the rectified page
// with its user boxes drawn. Failures are logged only.
func (h *Harness) save(logger *slog.Logger, copyID int, degraded gocv.Mat, res *parser.Result, layout groundtruth.Layout, scaler geometry.Scaler) {
	if h.cfg.SaveDir == "" {
		return
	}
	dir := filepath.Join(h.cfg.SaveDir, "degraded")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("cannot save images", "error", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("copy-%04d.png", copyID))
	if !gocv.IMWrite(path, degraded) {
		logger.Warn("cannot write image", "path", path)
	}
	if res == nil {
		return
	}

	size := image.Pt(int(scaler.Raster.Width), int(scaler.Raster.Height))
	rectified, err := calibration.Redress(degraded, res.Transform, size)
	if err != nil {
		logger.Warn("cannot rectify", "error", err)
		return
	}
	defer rectified.Close()

	page := max(res.Metadata.Page, 1)
	calibration.Annotate(&rectified, layout.Pages[page], scaler)

	dir = filepath.Join(h.cfg.SaveDir, "rectified")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("cannot save images", "error", err)
		return
	}
	path = filepath.Join(dir, fmt.Sprintf("copy-%04d.png", copyID))
	if !gocv.IMWrite(path, rectified) {
		logger.Warn("cannot write image", "path", path)
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
