// Package detect finds candidate corner markers in a grayscale capture. Each
// marker family has its own Detector; all of them return the same Feature
// shape so the correspondence stage never depends on how a mark was found.
package detect

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// ErrInvalidImage is returned for input that is not single-channel 8-bit.
var ErrInvalidImage = errors.New("detector input must be single-channel 8-bit")

// NoID marks a feature that carries no numeric fiducial id.
const NoID = -1

// Feature is one detected mark. Polygon is in capture pixels and has at
// least four points.
type Feature struct {
	Kind    Kind
	Payload string // decoded text, payload readers only
	ID      int    // fiducial id, NoID otherwise
	Polygon []geometry.Point2D
}

// Center returns the mean of the polygon vertices.
func (f Feature) Center() geometry.Point2D {
	return geometry.Centroid(f.Polygon)
}

// Kind identifies a detector family.
type Kind int

const (
	KindPayload Kind = iota
	KindCircle
	KindShape
	KindAruco
)

func (k Kind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindCircle:
		return "circle"
	case KindShape:
		return "shape"
	case KindAruco:
		return "aruco"
	default:
		return "unknown"
	}
}

// Detector maps a grayscale image to the marks it contains.
type Detector interface {
	Kind() Kind
	Detect(img gocv.Mat) ([]Feature, error)
}

// Params sizes a detector to the expected marker.
type Params struct {
	MarkerSizePx float64               // expected marker side/diameter in capture pixels
	Flags        marker.DetectionFlags // payload formats to read
	Shape        marker.Type           // outline family for the shape detector
	Logger       *slog.Logger
}

// New builds the detector of the given kind.
func New(kind Kind, p Params) (Detector, error) {
	switch kind {
	case KindPayload:
		return NewPayloadReader(p.Flags, WithLogger(p.Logger), WithSymbolSize(p.MarkerSizePx)), nil
	case KindCircle:
		return NewCircleDetector(DefaultCircleParams().WithMarkerSize(p.MarkerSizePx)), nil
	case KindShape:
		return NewShapeDetector(DefaultShapeParams().WithMarkerSize(p.MarkerSizePx).WithShape(p.Shape)), nil
	case KindAruco:
		return NewArucoDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector kind %d", int(kind))
	}
}

// checkInput validates the detector input. ok is false for images too small
// to hold any mark; those yield no features rather than an error.
func checkInput(img gocv.Mat) (ok bool, err error) {
	if img.Empty() {
		return false, nil
	}
	if img.Type() != gocv.MatTypeCV8UC1 {
		return false, fmt.Errorf("%w: got type %v", ErrInvalidImage, img.Type())
	}
	if img.Rows() < 2 || img.Cols() < 2 {
		return false, nil
	}
	return true, nil
}

// circlePolygon approximates a circle by n vertices.
func circlePolygon(center geometry.Point2D, radius float64, n int) []geometry.Point2D {
	points := make([]geometry.Point2D, n)
	for i := 0; i < n; i++ {
		angle := float64(i) * 2.0 * math.Pi / float64(n)
		points[i] = geometry.Point2D{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	return points
}
