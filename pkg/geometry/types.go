// Package geometry provides the point, rectangle and affine types shared by
// the detection, calibration and evaluation packages. Coordinates follow
// image conventions: X grows rightwards and Y grows downwards.
package geometry

import (
	"math"
)

// Point2D is a position in page units or pixels.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point2D) Distance(q Point2D) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Add returns p+q.
func (p Point2D) Add(q Point2D) Point2D {
	return Point2D{p.X + q.X, p.Y + q.Y}
}

// Scale returns p*k.
func (p Point2D) Scale(k float64) Point2D {
	return Point2D{p.X * k, p.Y * k}
}

// Rect is an axis-aligned box given by its top-left corner and size.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of r.
func (r Rect) Center() Point2D {
	return Point2D{r.X + r.Width/2, r.Y + r.Height/2}
}

// Size is a page or raster extent.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AffineTransform maps (x, y) to (A*x + B*y + TX, C*x + D*y + TY).
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity leaves every point in place.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation shifts by (tx, ty).
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, TX: tx, D: 1, TY: ty}
}

// RotationAbout turns by radians around center. With Y pointing down a
// positive angle turns clockwise on screen.
func RotationAbout(center Point2D, radians float64) AffineTransform {
	sin, cos := math.Sincos(radians)
	// Rotating about the origin leaves center at R*center; shift it back
	return AffineTransform{
		A: cos, B: -sin, TX: center.X - (cos*center.X - sin*center.Y),
		C: sin, D: cos, TY: center.Y - (sin*center.X + cos*center.Y),
	}
}

// Apply maps p.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns the transform applying u first, then t.
func (t AffineTransform) Compose(u AffineTransform) AffineTransform {
	origin := t.Apply(Point2D{u.TX, u.TY})
	return AffineTransform{
		A: t.A*u.A + t.B*u.C, B: t.A*u.B + t.B*u.D, TX: origin.X,
		C: t.C*u.A + t.D*u.C, D: t.C*u.B + t.D*u.D, TY: origin.Y,
	}
}

// singularDet is the determinant below which a transform is treated as
// degenerate.
const singularDet = 1e-10

// Inverse returns the transform undoing t. ok is false when t collapses the
// plane.
func (t AffineTransform) Inverse() (inv AffineTransform, ok bool) {
	det := t.A*t.D - t.B*t.C
	if math.Abs(det) < singularDet {
		return AffineTransform{}, false
	}
	inv.A, inv.B = t.D/det, -t.B/det
	inv.C, inv.D = -t.C/det, t.A/det
	// The inverse sends t's image of the origin back to the origin
	inv.TX = -(inv.A*t.TX + inv.B*t.TY)
	inv.TY = -(inv.C*t.TX + inv.D*t.TY)
	return inv, true
}

// ToMatrix returns the rows of t, the layout OpenCV expects.
func (t AffineTransform) ToMatrix() [2][3]float64 {
	return [2][3]float64{{t.A, t.B, t.TX}, {t.C, t.D, t.TY}}
}

// Centroid is the mean of points, or the origin for none.
func Centroid(points []Point2D) Point2D {
	var c Point2D
	if len(points) == 0 {
		return c
	}
	for _, p := range points {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(points)))
}
