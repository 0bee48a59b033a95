// Package calibration fits the affine transform from theoretical page pixels
// to capture pixels and rectifies captures with it.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInsufficientCorners is returned when the mask has fewer than 3 bits.
	ErrInsufficientCorners = errors.New("calibration needs 3 corners")
	// ErrPrecondition signals inconsistent input, an upstream logic error.
	ErrPrecondition = errors.New("calibration precondition violated")
)

// Options selects the fitting mode.
type Options struct {
	// UseAllCorners fits every found corner by least squares instead of
	// the exact transform through the first three.
	UseAllCorners bool
}

// FitAffine returns the transform mapping expected corners onto found ones.
// Corners are taken in scan order TL, TR, BL, BR and only the first three
// set bits of mask are used, so the fit is exact on them.
func FitAffine(mask uint8, expected, found [marker.NumCorners]geometry.Point2D) (geometry.AffineTransform, error) {
	return Fit(mask, expected, found, Options{})
}

// Fit is FitAffine with options.
func Fit(mask uint8, expected, found [marker.NumCorners]geometry.Point2D, opts Options) (geometry.AffineTransform, error) {
	if mask>>marker.NumCorners != 0 {
		return geometry.AffineTransform{}, fmt.Errorf("%w: mask %#b has bits beyond the 4 corners", ErrPrecondition, mask)
	}
	if n := bits.OnesCount8(mask); n < 3 {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %d found", ErrInsufficientCorners, n)
	}

	var src, dst []geometry.Point2D
	for i := 0; i < marker.NumCorners; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		src = append(src, expected[i])
		dst = append(dst, found[i])
		if len(src) == 3 && !opts.UseAllCorners {
			break
		}
	}

	var (
		t   geometry.AffineTransform
		err error
	)
	if len(src) == 3 {
		t, err = solveExact(src, dst)
	} else {
		t, err = solveLeastSquares(src, dst)
	}
	if err != nil {
		return geometry.AffineTransform{}, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	return t, nil
}

// solveExact solves the 6x6 system given by exactly 3 point pairs.
func solveExact(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	if len(src) != 3 || len(dst) != 3 {
		return geometry.AffineTransform{}, fmt.Errorf("need exactly 3 points")
	}
	if collinear(src[0], src[1], src[2]) {
		return geometry.AffineTransform{}, fmt.Errorf("expected corners are collinear")
	}

	// [x', y'] = [a, b, tx; c, d, ty] * [x, y, 1]
	A := mat.NewDense(6, 6, nil)
	B := mat.NewVecDense(6, nil)
	fillSystem(A, B, src, dst)

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return geometry.AffineTransform{}, err
	}
	return fromParams(&params), nil
}

// solveLeastSquares fits an overdetermined system through QR.
func solveLeastSquares(src, dst []geometry.Point2D) (geometry.AffineTransform, error) {
	n := len(src)
	if n < 3 {
		return geometry.AffineTransform{}, fmt.Errorf("need at least 3 points")
	}

	A := mat.NewDense(n*2, 6, nil)
	B := mat.NewVecDense(n*2, nil)
	fillSystem(A, B, src, dst)

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return geometry.AffineTransform{}, err
	}
	return fromParams(&params), nil
}

func fillSystem(A *mat.Dense, B *mat.VecDense, src, dst []geometry.Point2D) {
	for i := range src {
		x, y := src[i].X, src[i].Y

		// x' = a*x + b*y + tx
		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i].X)

		// y' = c*x + d*y + ty
		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i].Y)
	}
}

func fromParams(p *mat.VecDense) geometry.AffineTransform {
	return geometry.AffineTransform{
		A:  p.AtVec(0),
		B:  p.AtVec(1),
		TX: p.AtVec(2),
		C:  p.AtVec(3),
		D:  p.AtVec(4),
		TY: p.AtVec(5),
	}
}

func collinear(a, b, c geometry.Point2D) bool {
	area := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	scale := a.Distance(b)*a.Distance(c) + 1e-12
	return math.Abs(area)/scale < 1e-9
}

// Residual returns the mean distance between t(expected) and found over the
// corners set in mask.
func Residual(t geometry.AffineTransform, mask uint8, expected, found [marker.NumCorners]geometry.Point2D) float64 {
	var total float64
	n := 0
	for i := 0; i < marker.NumCorners; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		total += t.Apply(expected[i]).Distance(found[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
