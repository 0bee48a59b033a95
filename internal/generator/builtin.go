package generator

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/hekzam/markers-eval-25-sub000/internal/corner"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	dmencoder "github.com/makiuchi-d/gozxing/datamatrix/encoder"
	qrcode "github.com/skip2/go-qrcode"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

var (
	ink   = color.RGBA{A: 255}
	paper = color.Gray{Y: 255}
)

// HeaderFiducialID is the dictionary id printed when the header slot holds a
// fiducial. It is outside the corner table.
const HeaderFiducialID = 4

// Builtin composes pages in process. It supports QR and Data Matrix payload
// symbols, dictionary fiducials and the plain shape families.
type Builtin struct {
	spec   PageSpec
	logger *slog.Logger
}

// BuiltinOption configures a Builtin.
type BuiltinOption func(*Builtin)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuiltinOption {
	return func(b *Builtin) {
		b.logger = logger
	}
}

// NewBuiltin returns a compositor for pages described by spec.
func NewBuiltin(spec PageSpec, opts ...BuiltinOption) (*Builtin, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	b := &Builtin{spec: spec, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Supports reports whether the compositor can draw t.
func Supports(t marker.Type) bool {
	switch t {
	case marker.TypeNone, marker.TypeQRCode, marker.TypeDataMatrix, marker.TypeAruco,
		marker.TypeCircle, marker.TypeSquare, marker.TypeTriangle, marker.TypeCross, marker.TypeCustom:
		return true
	}
	return false
}

// Generate implements Generator. The page stays in memory and req.OutDir is
// ignored; Artifact.Save writes it.
func (b *Builtin) Generate(ctx context.Context, req Request) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, m := range req.Markers {
		if !Supports(m.Type) {
			return nil, fmt.Errorf("%w: %s marker %q has no built-in renderer", ErrGeneratorFailed, marker.Slot(i), m.Type)
		}
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	markerBoxes := b.spec.MarkerBoxes(page)
	userBoxes := b.spec.UserBoxes(page)

	w, h := b.spec.RasterSize()
	canvas := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(paper), image.Point{}, draw.Src)

	// Raster symbols go onto the Go canvas, vector shapes onto the Mat
	for i, m := range req.Markers {
		slot := marker.Slot(i)
		rect := b.pixelRect(markerBoxes[slot])
		switch m.Type {
		case marker.TypeQRCode:
			if err := drawQR(canvas, rect, req.Payload(slot)); err != nil {
				return nil, fmt.Errorf("%w: %s symbol: %w", ErrGeneratorFailed, slot, err)
			}
		case marker.TypeDataMatrix:
			if err := drawDataMatrix(canvas, rect, req.Payload(slot)); err != nil {
				return nil, fmt.Errorf("%w: %s symbol: %w", ErrGeneratorFailed, slot, err)
			}
		case marker.TypeAruco:
			id, ok := corner.FiducialID(slot)
			if !ok {
				id = HeaderFiducialID
			}
			if err := drawFiducial(canvas, rect, id); err != nil {
				return nil, fmt.Errorf("%w: %s fiducial: %w", ErrGeneratorFailed, slot, err)
			}
		}
	}

	mat, err := gocv.ImageGrayToMatGray(canvas)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneratorFailed, err)
	}

	stroke := max(1, b.spec.ToPixels(0.5))
	for i, m := range req.Markers {
		slot := marker.Slot(i)
		rect := b.pixelRect(markerBoxes[slot])
		switch {
		case m.Type.IsShape() || m.Type == marker.TypeCircle:
			drawShape(&mat, m, rect, stroke)
		case m.Type == marker.TypeQRCode && m.Outlined:
			gocv.Rectangle(&mat, rect.Inset(-stroke*3), ink, stroke)
		}
	}
	for _, box := range userBoxes {
		gocv.Rectangle(&mat, b.pixelRect(box), ink, stroke)
	}

	boxes := make([]groundtruth.AtomicBox, 0, len(markerBoxes)+len(userBoxes))
	for i, m := range req.Markers {
		if !m.IsNone() {
			boxes = append(boxes, markerBoxes[i])
		}
	}
	boxes = append(boxes, userBoxes...)

	b.logger.Debug("page generated", "copy", req.Copy, "markers", req.Markers.String(), "width", w, "height", h)
	return &Artifact{Image: mat, Boxes: boxes, hasImage: true}, nil
}

// pixelRect converts a page box to the pixel rectangle it covers.
func (b *Builtin) pixelRect(box groundtruth.AtomicBox) image.Rectangle {
	x0, y0 := b.spec.ToPixels(box.X), b.spec.ToPixels(box.Y)
	return image.Rect(x0, y0, x0+b.spec.ToPixels(box.Width), y0+b.spec.ToPixels(box.Height))
}

// drawQR renders content as a borderless QR symbol scaled into rect.
func drawQR(dst *image.Gray, rect image.Rectangle, content string) error {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return err
	}
	qr.DisableBorder = true
	bitmap := qr.Bitmap()

	n := len(bitmap)
	modules := image.NewGray(image.Rect(0, 0, n, n))
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				modules.SetGray(x, y, color.Gray{Y: 0})
			} else {
				modules.SetGray(x, y, paper)
			}
		}
	}
	draw.NearestNeighbor.Scale(dst, rect, modules, modules.Bounds(), draw.Src, nil)
	return nil
}

var dataMatrixHints = map[gozxing.EncodeHintType]interface{}{
	gozxing.EncodeHintType_DATA_MATRIX_SHAPE: dmencoder.SymbolShapeHint_FORCE_SQUARE,
}

// drawDataMatrix renders content as a square Data Matrix symbol centred in
// rect, scaled by the largest whole module size that fits.
func drawDataMatrix(dst *image.Gray, rect image.Rectangle, content string) error {
	bits, err := datamatrix.NewDataMatrixWriter().Encode(content, gozxing.BarcodeFormat_DATA_MATRIX, rect.Dx(), rect.Dy(), dataMatrixHints)
	if err != nil {
		return err
	}
	origin := rect.Min.Add(image.Point{
		X: (rect.Dx() - bits.GetWidth()) / 2,
		Y: (rect.Dy() - bits.GetHeight()) / 2,
	})
	for y := 0; y < bits.GetHeight(); y++ {
		for x := 0; x < bits.GetWidth(); x++ {
			if bits.Get(x, y) {
				dst.SetGray(origin.X+x, origin.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return nil
}

// drawFiducial renders dictionary marker id scaled into rect.
func drawFiducial(dst *image.Gray, rect image.Rectangle, id int) error {
	tile := gocv.NewMat()
	defer tile.Close()
	gocv.ArucoGenerateImageMarker(detect.ArucoDictionary, id, rect.Dx(), tile, 1)
	if tile.Empty() {
		return fmt.Errorf("no marker image for id %d", id)
	}
	src, err := detect.MatToGray(tile)
	if err != nil {
		return err
	}
	draw.NearestNeighbor.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	return nil
}

// drawShape draws a plain mark filling rect, outlined or solid.
func drawShape(img *gocv.Mat, m marker.Marker, rect image.Rectangle, stroke int) {
	thickness := -1
	if m.Outlined {
		thickness = max(2, stroke*2)
	}
	center := image.Point{X: (rect.Min.X + rect.Max.X) / 2, Y: (rect.Min.Y + rect.Max.Y) / 2}
	side := rect.Dx()

	switch m.Type {
	case marker.TypeCircle:
		gocv.Circle(img, center, side/2, ink, thickness)
	case marker.TypeSquare:
		gocv.Rectangle(img, rect, ink, thickness)
	default:
		polygon(img, shapeVertices(m.Type, center, float64(side)), thickness)
	}
}

func polygon(img *gocv.Mat, pts []image.Point, thickness int) {
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	if thickness < 0 {
		gocv.FillPoly(img, pv, ink)
		return
	}
	gocv.Polylines(img, pv, true, ink, thickness)
}

// shapeVertices returns the outline of a triangle, cross or custom mark
// inscribed in a square of the given side.
func shapeVertices(t marker.Type, c image.Point, side float64) []image.Point {
	h := side / 2
	pt := func(dx, dy float64) image.Point {
		return image.Point{X: c.X + int(math.Round(dx)), Y: c.Y + int(math.Round(dy))}
	}
	switch t {
	case marker.TypeTriangle:
		return []image.Point{pt(0, -h), pt(h, h), pt(-h, h)}
	case marker.TypeCross:
		a := side / 6
		return []image.Point{
			pt(-a, -h), pt(a, -h), pt(a, -a), pt(h, -a), pt(h, a), pt(a, a),
			pt(a, h), pt(-a, h), pt(-a, a), pt(-h, a), pt(-h, -a), pt(-a, -a),
		}
	default:
		// Custom marks are drawn as a diamond
		return []image.Point{pt(0, -h), pt(h, 0), pt(0, h), pt(-h, 0)}
	}
}
