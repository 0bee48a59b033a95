package calibration

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

// Redress warps a capture back into page-aligned pixel space. t maps
// theoretical page pixels to capture pixels and size is the theoretical
// raster size. The result always has 3 channels so it can be annotated.
func Redress(img gocv.Mat, t geometry.AffineTransform, size image.Point) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty input image")
	}
	if size.X <= 0 || size.Y <= 0 {
		return gocv.NewMat(), fmt.Errorf("invalid output size %v", size)
	}

	m := toMat(t)
	defer m.Close()

	warped := gocv.NewMat()
	// t goes from destination to source, hence the inverse map flag
	gocv.WarpAffineWithParams(img, &warped, m, size,
		gocv.InterpolationLinear+gocv.WarpInverseMap, gocv.BorderConstant, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	if warped.Channels() == 3 {
		return warped, nil
	}
	defer warped.Close()

	out := gocv.NewMat()
	switch warped.Channels() {
	case 1:
		gocv.CvtColor(warped, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(warped, &out, gocv.ColorBGRAToBGR)
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", warped.Channels())
	}
	return out, nil
}

func toMat(t geometry.AffineTransform) gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, t.A)
	m.SetDoubleAt(0, 1, t.B)
	m.SetDoubleAt(0, 2, t.TX)
	m.SetDoubleAt(1, 0, t.C)
	m.SetDoubleAt(1, 1, t.D)
	m.SetDoubleAt(1, 2, t.TY)
	return m
}

// Palette returns n visually distinct colors, stable for a given n.
func Palette(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	hue := 0.0
	for i := range out {
		r, g, b := colorful.Hsv(hue, 0.85, 0.9).RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
		// Golden angle keeps neighbours apart
		hue = math.Mod(hue+137.508, 360)
	}
	return out
}

// Annotate outlines every user box on a rectified page, one color per box.
// Boxes are in page units and scaler maps them to the rectified raster.
func Annotate(img *gocv.Mat, boxes []groundtruth.AtomicBox, scaler geometry.Scaler) {
	colors := Palette(len(boxes))
	for i, b := range boxes {
		r := scaler.RectToPixel(b.Rect())
		rect := image.Rect(
			int(math.Round(r.X)), int(math.Round(r.Y)),
			int(math.Round(r.X+r.Width)), int(math.Round(r.Y+r.Height)),
		)
		gocv.Rectangle(img, rect, colors[i], 2)
		gocv.PutText(img, b.ID, image.Point{X: rect.Min.X, Y: rect.Min.Y - 4},
			gocv.FontHersheySimplex, 0.4, colors[i], 1)
	}
}

// MarkCorners draws a cross on each found corner of a capture.
func MarkCorners(img *gocv.Mat, mask uint8, corners []geometry.Point2D) {
	colors := Palette(len(corners))
	for i, c := range corners {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		p := image.Point{X: int(math.Round(c.X)), Y: int(math.Round(c.Y))}
		gocv.Line(img, p.Add(image.Point{X: -8}), p.Add(image.Point{X: 8}), colors[i], 2)
		gocv.Line(img, p.Add(image.Point{Y: -8}), p.Add(image.Point{Y: 8}), colors[i], 2)
	}
}
