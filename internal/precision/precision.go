// Package precision measures how far a calibration lands from the true
// corner positions.
package precision

import (
	"errors"
	"math"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gonum.org/v1/gonum/stat"
)

// ErrSingularCalibration is returned when the calibration cannot be inverted.
var ErrSingularCalibration = errors.New("calibration transform is not invertible")

// Errors holds per-corner pixel errors in TL, TR, BL, BR order and their mean.
type Errors struct {
	Corners [marker.NumCorners]float64
	Average float64
}

// Failed returns Errors filled with NaN, recorded for copies that could not
// be calibrated.
func Failed() Errors {
	nan := math.NaN()
	return Errors{Corners: [marker.NumCorners]float64{nan, nan, nan, nan}, Average: nan}
}

// outward gives the diagonal direction pointing away from the page for each
// corner, in image coordinates.
var outward = [marker.NumCorners]geometry.Point2D{
	{X: -1, Y: -1},
	{X: 1, Y: -1},
	{X: -1, Y: 1},
	{X: 1, Y: 1},
}

// Inflate moves each corner outward by margin on both axes.
func Inflate(corners [marker.NumCorners]geometry.Point2D, margin float64) [marker.NumCorners]geometry.Point2D {
	var out [marker.NumCorners]geometry.Point2D
	for i, c := range corners {
		out[i] = c.Add(outward[i].Scale(margin))
	}
	return out
}

// Evaluate maps each theoretical corner through the degradation and back
// through the inverse calibration, then measures its distance to the corner
// inflated by margin. A perfect calibration gives margin*sqrt(2) everywhere.
func Evaluate(expected [marker.NumCorners]geometry.Point2D, degradation, calibration geometry.AffineTransform, margin float64) (Errors, error) {
	inverse, ok := calibration.Inverse()
	if !ok {
		return Failed(), ErrSingularCalibration
	}

	target := Inflate(expected, margin)
	var e Errors
	for i, c := range expected {
		computed := inverse.Apply(degradation.Apply(c))
		e.Corners[i] = computed.Distance(target[i])
		e.Average += e.Corners[i]
	}
	e.Average /= marker.NumCorners
	return e, nil
}

// Summary aggregates the outcome of many copies.
type Summary struct {
	Copies       int
	Successes    int
	SuccessRatio float64
	MeanError    float64 // over successful copies, NaN when there are none
	StdDevError  float64
	MaxError     float64
}

// Summarize aggregates average errors. NaN entries count as failures.
func Summarize(averages []float64) Summary {
	s := Summary{Copies: len(averages), MeanError: math.NaN(), StdDevError: math.NaN(), MaxError: math.NaN()}
	ok := make([]float64, 0, len(averages))
	for _, v := range averages {
		if !math.IsNaN(v) {
			ok = append(ok, v)
		}
	}
	s.Successes = len(ok)
	if s.Copies > 0 {
		s.SuccessRatio = float64(s.Successes) / float64(s.Copies)
	}
	if len(ok) == 0 {
		return s
	}

	s.MeanError, s.StdDevError = stat.MeanStdDev(ok, nil)
	if len(ok) == 1 {
		s.StdDevError = 0
	}
	s.MaxError = ok[0]
	for _, v := range ok[1:] {
		s.MaxError = math.Max(s.MaxError, v)
	}
	return s
}
