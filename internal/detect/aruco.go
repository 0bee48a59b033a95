package detect

import (
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// ArucoDictionary is the predefined dictionary printed markers are drawn from.
const ArucoDictionary = gocv.ArucoDict4x4_50

// ArucoDetector reads dictionary fiducials and reports their ids.
type ArucoDetector struct{}

// NewArucoDetector returns a detector for ArucoDictionary.
func NewArucoDetector() *ArucoDetector {
	return &ArucoDetector{}
}

// Kind implements Detector.
func (d *ArucoDetector) Kind() Kind { return KindAruco }

// Detect implements Detector.
func (d *ArucoDetector) Detect(img gocv.Mat) ([]Feature, error) {
	ok, err := checkInput(img)
	if !ok {
		return nil, err
	}

	dict := gocv.GetPredefinedDictionary(ArucoDictionary)
	params := gocv.NewArucoDetectorParameters()
	detector := gocv.NewArucoDetectorWithParams(dict, params)
	defer detector.Close()

	corners, ids, _ := detector.DetectMarkers(img)

	features := make([]Feature, 0, len(ids))
	for i, id := range ids {
		if i >= len(corners) || len(corners[i]) < 4 {
			continue
		}
		poly := make([]geometry.Point2D, len(corners[i]))
		for j, c := range corners[i] {
			poly[j] = geometry.Point2D{X: float64(c.X), Y: float64(c.Y)}
		}
		features = append(features, Feature{
			Kind:    KindAruco,
			ID:      id,
			Polygon: poly,
		})
	}
	return features, nil
}
