package detect

import (
	"image"
	"math"

	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// CircleParams tunes the Hough circle search.
type CircleParams struct {
	// Size bounds relative to the expected marker radius
	MinRadiusRatio float64
	MaxRadiusRatio float64
	MinDistRatio   float64 // minimum center separation, in marker diameters

	HoughDP     float64 // inverse accumulator resolution
	HoughParam1 float64 // Canny high threshold
	HoughParam2 float64 // accumulator threshold
	BlurSize    int     // odd Gaussian kernel size, 0 disables

	// Pixel bounds, derived by WithMarkerSize
	MinRadius int
	MaxRadius int
	MinDist   float64
}

// DefaultCircleParams returns parameters tuned for filled or outlined print
// circles on a white page.
func DefaultCircleParams() CircleParams {
	return CircleParams{
		MinRadiusRatio: 0.7,
		MaxRadiusRatio: 1.3,
		MinDistRatio:   1.5,
		HoughDP:        1.2,
		HoughParam1:    100,
		HoughParam2:    30,
		BlurSize:       5,
		MinRadius:      5,
		MaxRadius:      60,
		MinDist:        30,
	}
}

// WithMarkerSize returns a copy of params with pixel bounds computed from the
// expected marker diameter.
func (p CircleParams) WithMarkerSize(diameterPx float64) CircleParams {
	if diameterPx <= 0 {
		return p
	}
	r := diameterPx / 2
	p.MinRadius = max(3, int(r*p.MinRadiusRatio))
	p.MaxRadius = max(p.MinRadius+1, int(math.Ceil(r*p.MaxRadiusRatio)))
	p.MinDist = math.Max(10, diameterPx*p.MinDistRatio)
	return p
}

// CircleDetector finds circular marks with the Hough gradient method.
type CircleDetector struct {
	params CircleParams
}

// NewCircleDetector returns a detector using params.
func NewCircleDetector(params CircleParams) *CircleDetector {
	return &CircleDetector{params: params}
}

// Kind implements Detector.
func (d *CircleDetector) Kind() Kind { return KindCircle }

// Detect implements Detector.
func (d *CircleDetector) Detect(img gocv.Mat) ([]Feature, error) {
	ok, err := checkInput(img)
	if !ok {
		return nil, err
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	if d.params.BlurSize > 1 {
		k := d.params.BlurSize | 1
		gocv.GaussianBlur(img, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
	} else {
		img.CopyTo(&blurred)
	}

	circles := gocv.NewMat()
	defer circles.Close()
	gocv.HoughCirclesWithParams(blurred, &circles, gocv.HoughGradient, d.params.HoughDP, d.params.MinDist,
		d.params.HoughParam1, d.params.HoughParam2, d.params.MinRadius, d.params.MaxRadius)

	if circles.Empty() || circles.Cols() == 0 {
		return nil, nil
	}

	features := make([]Feature, 0, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		cx := circles.GetFloatAt(0, i*3)
		cy := circles.GetFloatAt(0, i*3+1)
		r := circles.GetFloatAt(0, i*3+2)
		center := geometry.Point2D{X: float64(cx), Y: float64(cy)}
		features = append(features, Feature{
			Kind:    KindCircle,
			ID:      NoID,
			Polygon: circlePolygon(center, float64(r), 8),
		})
	}
	return features, nil
}
