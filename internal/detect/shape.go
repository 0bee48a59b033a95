package detect

import (
	"image"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// ShapeParams controls the contour-based outline search.
type ShapeParams struct {
	Shape marker.Type

	MinSizeRatio float64 // bounding box side relative to the expected marker
	MaxSizeRatio float64
	MinAspect    float64 // min(w,h)/max(w,h)
	ApproxEps    float64 // ApproxPolyDP epsilon as a fraction of the perimeter

	MinSize float64 // pixel bounds, derived by WithMarkerSize
	MaxSize float64
}

// DefaultShapeParams returns parameters for square marks.
func DefaultShapeParams() ShapeParams {
	return ShapeParams{
		Shape:        marker.TypeSquare,
		MinSizeRatio: 0.6,
		MaxSizeRatio: 1.6,
		MinAspect:    0.6,
		ApproxEps:    0.04,
		MinSize:      8,
		MaxSize:      200,
	}
}

// WithMarkerSize returns a copy with pixel size bounds for the expected
// marker side length.
func (p ShapeParams) WithMarkerSize(sidePx float64) ShapeParams {
	if sidePx <= 0 {
		return p
	}
	p.MinSize = sidePx * p.MinSizeRatio
	p.MaxSize = sidePx * p.MaxSizeRatio
	return p
}

// WithShape returns a copy looking for the given outline family.
func (p ShapeParams) WithShape(t marker.Type) ShapeParams {
	if t.IsShape() {
		p.Shape = t
	}
	return p
}

// vertexRange returns the accepted ApproxPolyDP vertex counts for a family.
// Custom marks accept any contour of plausible size.
func vertexRange(t marker.Type) (lo, hi int) {
	switch t {
	case marker.TypeSquare:
		return 4, 4
	case marker.TypeTriangle:
		return 3, 3
	case marker.TypeCross:
		return 10, 14
	default:
		return 3, 1 << 30
	}
}

// ShapeDetector finds dark outlines of a given family after binarization.
type ShapeDetector struct {
	params ShapeParams
}

// NewShapeDetector returns a detector using params.
func NewShapeDetector(params ShapeParams) *ShapeDetector {
	return &ShapeDetector{params: params}
}

// Kind implements Detector.
func (d *ShapeDetector) Kind() Kind { return KindShape }

// Detect implements Detector.
func (d *ShapeDetector) Detect(img gocv.Mat) ([]Feature, error) {
	ok, err := checkInput(img)
	if !ok {
		return nil, err
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(img, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)

	// Dark ink becomes foreground
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(blurred, &mask, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	lo, hi := vertexRange(d.params.Shape)
	var features []Feature
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		rect := gocv.BoundingRect(contour)
		w, h := float64(rect.Dx()), float64(rect.Dy())
		if w < d.params.MinSize || h < d.params.MinSize || w > d.params.MaxSize || h > d.params.MaxSize {
			continue
		}
		if min(w, h)/max(w, h) < d.params.MinAspect {
			continue
		}

		epsilon := d.params.ApproxEps * gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, epsilon, true)
		poly := toPoints(approx.ToPoints())
		approx.Close()

		if len(poly) < lo || len(poly) > hi {
			continue
		}
		if d.params.Shape == marker.TypeSquare && !geometry.IsConvex(poly) {
			continue
		}

		switch {
		case len(poly) == 3:
			poly = triangleSquare(poly)
		case d.params.Shape == marker.TypeCross:
			// Arm tips span the marker box; dropped inner vertices would bias the mean
			poly = toPoints(gocv.MinAreaRect(contour).Points)
		}
		features = append(features, Feature{
			Kind:    KindShape,
			ID:      NoID,
			Polygon: poly,
		})
	}
	return features, nil
}

// triangleSquare returns the square a marker triangle is inscribed in: its
// base is the shortest side and the apex touches the opposite edge. The
// square's centre is the centre of the printed marker box.
func triangleSquare(tri []geometry.Point2D) []geometry.Point2D {
	base := 0
	for i := 1; i < 3; i++ {
		if tri[i].Distance(tri[(i+1)%3]) < tri[base].Distance(tri[(base+1)%3]) {
			base = i
		}
	}
	p, q, apex := tri[base], tri[(base+1)%3], tri[(base+2)%3]
	mid := p.Add(q).Scale(0.5)
	up := apex.Add(mid.Scale(-1))
	return []geometry.Point2D{p, q, q.Add(up), p.Add(up)}
}

func toPoints(pts []image.Point) []geometry.Point2D {
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point2D{X: float64(p.X), Y: float64(p.Y)}
	}
	return out
}
