// Package generator produces the synthetic pages the benchmark degrades and
// parses back, together with their ground-truth box positions.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/hekzam/markers-eval-25-sub000/internal/corner"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrGeneratorFailed aborts a benchmark run.
var ErrGeneratorFailed = errors.New("page generation failed")

// MMPerInch converts DPI figures.
const MMPerInch = 25.4

// PageSpec describes the printed page.
type PageSpec struct {
	WidthMM  float64 `mapstructure:"width_mm"`
	HeightMM float64 `mapstructure:"height_mm"`
	DPI      float64 `mapstructure:"dpi"`
	MarkerMM float64 `mapstructure:"marker_mm"` // corner marker side
	MarginMM float64 `mapstructure:"margin_mm"` // page edge to marker
}

// A4 returns an A4 page at 150 dpi with 15 mm markers.
func A4() PageSpec {
	return PageSpec{WidthMM: 210, HeightMM: 297, DPI: 150, MarkerMM: 15, MarginMM: 10}
}

// Validate checks the page geometry.
func (s PageSpec) Validate() error {
	if s.WidthMM <= 0 || s.HeightMM <= 0 || s.DPI <= 0 || s.MarkerMM <= 0 || s.MarginMM < 0 {
		return fmt.Errorf("invalid page spec %+v", s)
	}
	if 2*(s.MarginMM+s.MarkerMM) >= math.Min(s.WidthMM, s.HeightMM) {
		return fmt.Errorf("markers do not fit on a %vx%v mm page", s.WidthMM, s.HeightMM)
	}
	return nil
}

// Size returns the page size in millimetres.
func (s PageSpec) Size() geometry.Size {
	return geometry.Size{Width: s.WidthMM, Height: s.HeightMM}
}

// RasterSize returns the pixel size of the page at s.DPI.
func (s PageSpec) RasterSize() (width, height int) {
	return s.ToPixels(s.WidthMM), s.ToPixels(s.HeightMM)
}

// Scaler maps page millimetres onto the raster of s.
func (s PageSpec) Scaler() geometry.Scaler {
	w, h := s.RasterSize()
	return geometry.NewScaler(s.Size(), w, h)
}

// ToPixels converts millimetres to whole pixels at s.DPI.
func (s PageSpec) ToPixels(mm float64) int {
	return int(math.Round(mm * s.DPI / MMPerInch))
}

// MarkerPixels returns the marker side in pixels.
func (s PageSpec) MarkerPixels() float64 {
	return s.MarkerMM * s.DPI / MMPerInch
}

// MarkerBoxes returns the ground-truth boxes of the five marker slots.
func (s PageSpec) MarkerBoxes(page int) [marker.NumCorners + 1]groundtruth.AtomicBox {
	m, size := s.MarginMM, s.MarkerMM
	right, bottom := s.WidthMM-m-size, s.HeightMM-m-size
	pos := [marker.NumCorners + 1]geometry.Point2D{
		marker.TopLeft:     {X: m, Y: m},
		marker.TopRight:    {X: right, Y: m},
		marker.BottomLeft:  {X: m, Y: bottom},
		marker.BottomRight: {X: right, Y: bottom},
		marker.Header:      {X: (s.WidthMM - size) / 2, Y: m},
	}
	var boxes [marker.NumCorners + 1]groundtruth.AtomicBox
	for i, p := range pos {
		boxes[i] = groundtruth.AtomicBox{
			ID:     groundtruth.IDForSlot(marker.Slot(i)),
			Page:   page,
			X:      p.X,
			Y:      p.Y,
			Width:  size,
			Height: size,
		}
	}
	return boxes
}

// UserBoxes lays out a grid of answer boxes between the marker rows.
func (s PageSpec) UserBoxes(page int) []groundtruth.AtomicBox {
	const (
		cols, rows = 4, 5
		boxW, boxH = 30.0, 12.0
	)
	top := s.MarginMM + s.MarkerMM + 15
	bottom := s.HeightMM - s.MarginMM - s.MarkerMM - 15
	left := s.MarginMM + s.MarkerMM
	right := s.WidthMM - s.MarginMM - s.MarkerMM
	dx := (right - left - boxW) / float64(cols-1)
	dy := (bottom - top - boxH) / float64(rows-1)

	boxes := make([]groundtruth.AtomicBox, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			boxes = append(boxes, groundtruth.AtomicBox{
				ID:          fmt.Sprintf("q%d-%d", r+1, c+1),
				Page:        page,
				X:           left + float64(c)*dx,
				Y:           top + float64(r)*dy,
				Width:       boxW,
				Height:      boxH,
				StrokeWidth: 0.5,
			})
		}
	}
	return boxes
}

// Request describes one copy to generate.
type Request struct {
	Copy      int
	Name      string
	Page      int
	Markers   marker.CopyMarkerConfig
	Signature string
	OutDir    string // where file-based generators write; Builtin ignores it
}

// Identity returns the "name,copy-id,page" identity payload.
func (r Request) Identity() string {
	page := r.Page
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("%s,%d,%d", r.Name, r.Copy, page)
}

// Payload returns the text encoded in the symbol printed at slot.
func (r Request) Payload(s marker.Slot) string {
	tag := corner.Tag(s)
	if s == marker.BottomRight {
		return tag + r.Signature
	}
	if r.Markers[s].Encoded || s == marker.Header {
		return tag + r.Identity()
	}
	return tag
}

// Artifact is a generated page. Image and Boxes are filled either by the
// generator directly or by Load from the paths.
type Artifact struct {
	ImagePath string
	BoxesPath string

	Image    gocv.Mat
	Boxes    []groundtruth.AtomicBox
	hasImage bool
}

// Load reads whatever the generator left on disk.
func (a *Artifact) Load() error {
	if !a.hasImage {
		img, err := detect.Load(a.ImagePath)
		if err != nil {
			return err
		}
		a.Image, a.hasImage = img, true
	}
	if a.Boxes == nil {
		boxes, err := groundtruth.Load(a.BoxesPath)
		if err != nil {
			return err
		}
		a.Boxes = boxes
	}
	return nil
}

// Save writes an in-memory page and its ground truth to dir as
// copy-NNNN.png and copy-NNNN.json. Artifacts already on disk are left
// where the generator put them.
func (a *Artifact) Save(dir string, copyID int) error {
	if a.ImagePath != "" || !a.hasImage {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	imagePath := filepath.Join(dir, fmt.Sprintf("copy-%04d.png", copyID))
	boxesPath := filepath.Join(dir, fmt.Sprintf("copy-%04d.json", copyID))
	if !gocv.IMWrite(imagePath, a.Image) {
		return fmt.Errorf("write %s", imagePath)
	}
	f, err := os.Create(boxesPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := groundtruth.Encode(f, a.Boxes); err != nil {
		return err
	}
	a.ImagePath, a.BoxesPath = imagePath, boxesPath
	return nil
}

// Close releases the image.
func (a *Artifact) Close() error {
	if !a.hasImage {
		return nil
	}
	a.hasImage = false
	return a.Image.Close()
}

// Generator renders a page for a request. Only Generate is timed by the
// benchmark; Artifact.Load is not.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Artifact, error)
}
