// Package extract cuts the user boxes out of a calibrated capture.
package extract

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/hekzam/markers-eval-25-sub000/internal/calibration"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Box is one extracted user box.
type Box struct {
	ID     string
	Page   int
	Bounds image.Rectangle // in rectified page pixels
	Image  image.Image
	Path   string // set when saved
	Text   string // set when recognized
}

// Extractor crops boxes out of captures.
type Extractor struct {
	scaler     geometry.Scaler
	outDir     string
	recognizer Recognizer
	logger     *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOutputDir saves every crop as <dir>/<page>/<id>.png.
func WithOutputDir(dir string) Option {
	return func(e *Extractor) {
		e.outDir = dir
	}
}

// WithRecognizer reads every crop.
func WithRecognizer(r Recognizer) Option {
	return func(e *Extractor) {
		e.recognizer = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New returns an extractor for pages mapped to pixels by scaler.
func New(scaler geometry.Scaler, opts ...Option) *Extractor {
	e := &Extractor{scaler: scaler, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rectify warps capture into page pixels with t and returns it as a Go
// image.
func (e *Extractor) Rectify(capture gocv.Mat, t geometry.AffineTransform) (image.Image, error) {
	size := image.Pt(int(e.scaler.Raster.Width), int(e.scaler.Raster.Height))
	rectified, err := calibration.Redress(capture, t, size)
	if err != nil {
		return nil, err
	}
	defer rectified.Close()
	return rectified.ToImage()
}

// Extract rectifies capture and crops every box. Boxes falling outside the
// page are skipped.
func (e *Extractor) Extract(capture gocv.Mat, t geometry.AffineTransform, boxes []groundtruth.AtomicBox) ([]Box, error) {
	page, err := e.Rectify(capture, t)
	if err != nil {
		return nil, err
	}
	return e.Crop(page, boxes)
}

// Crop cuts boxes out of an already rectified page.
func (e *Extractor) Crop(page image.Image, boxes []groundtruth.AtomicBox) ([]Box, error) {
	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		rect := e.pixelRect(b).Intersect(page.Bounds())
		if rect.Empty() {
			e.logger.Warn("box outside page", "id", b.ID)
			continue
		}
		box := Box{ID: b.ID, Page: b.Page, Bounds: rect, Image: imaging.Crop(page, rect)}

		if e.outDir != "" {
			dir := filepath.Join(e.outDir, fmt.Sprint(b.Page))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			box.Path = filepath.Join(dir, b.ID+".png")
			if err := imaging.Save(box.Image, box.Path); err != nil {
				return nil, fmt.Errorf("save %s: %w", b.ID, err)
			}
		}
		if e.recognizer != nil {
			text, err := e.recognizer.Recognize(box.Image)
			if err != nil {
				e.logger.Warn("recognition failed", "id", b.ID, "error", err)
			}
			box.Text = text
		}
		out = append(out, box)
	}
	return out, nil
}

// pixelRect converts a box to pixels, shrunk by its stroke so the printed
// outline stays out of the crop.
func (e *Extractor) pixelRect(b groundtruth.AtomicBox) image.Rectangle {
	r := e.scaler.RectToPixel(b.Rect())
	inset := 0
	if b.StrokeWidth > 0 {
		sx := e.scaler.Raster.Width / e.scaler.Page.Width
		inset = int(math.Ceil(b.StrokeWidth * sx))
	}
	return image.Rect(
		int(math.Round(r.X)), int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)), int(math.Round(r.Y+r.Height)),
	).Inset(inset)
}
