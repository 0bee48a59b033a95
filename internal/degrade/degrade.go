package degrade

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Defect names one of the final damage effects.
type Defect string

const (
	DefectNone      Defect = ""
	DefectScanLines Defect = "scan_lines"
	DefectBlur      Defect = "blur"
	DefectErode     Defect = "erode"
	DefectDilate    Defect = "dilate"
)

var defects = [...]Defect{DefectScanLines, DefectBlur, DefectErode, DefectDilate}

// Trace records the values drawn for one application.
type Trace struct {
	Rotation    float64 `json:"rotation"` // degrees
	Flipped     bool    `json:"flipped"`
	TranslateX  float64 `json:"translate_x"`
	TranslateY  float64 `json:"translate_y"`
	Contrast    float64 `json:"contrast"`
	Brightness  float64 `json:"brightness"`
	InkStains   int     `json:"ink_stains"`
	Defect      Defect  `json:"defect,omitempty"`
	JPEGQuality int     `json:"jpeg_quality,omitempty"`
}

// Apply degrades img and returns the damaged grayscale image together with
// the affine transform taking undegraded pixels to degraded ones. Every
// random draw comes from rng, so the same seed gives the same output.
func Apply(img gocv.Mat, rng *rand.Rand, p Params) (gocv.Mat, geometry.AffineTransform, error) {
	out, t, _, err := ApplyTraced(img, rng, p)
	return out, t, err
}

// ApplyTraced is Apply that also reports the drawn values.
func ApplyTraced(img gocv.Mat, rng *rand.Rand, p Params) (gocv.Mat, geometry.AffineTransform, Trace, error) {
	var trace Trace
	if err := p.Validate(); err != nil {
		return gocv.NewMat(), geometry.AffineTransform{}, trace, err
	}
	cur, err := detect.Grayscale(img)
	if err != nil {
		return gocv.NewMat(), geometry.AffineTransform{}, trace, fmt.Errorf("degrade: %w", err)
	}

	// Each stage consumes cur and returns its replacement
	step := func(next gocv.Mat, err error) error {
		if err != nil {
			next.Close()
			return err
		}
		cur.Close()
		cur = next
		return nil
	}
	fail := func(err error) (gocv.Mat, geometry.AffineTransform, Trace, error) {
		cur.Close()
		return gocv.NewMat(), geometry.AffineTransform{}, trace, fmt.Errorf("degrade: %w", err)
	}

	truth := geometry.Identity()
	if p.Padding > 0 {
		padded := gocv.NewMat()
		gocv.CopyMakeBorder(cur, &padded, p.Padding, p.Padding, p.Padding, p.Padding, gocv.BorderConstant, white)
		_ = step(padded, nil)
		truth = geometry.Translation(float64(p.Padding), float64(p.Padding))
	}

	motion := drawMotion(rng, p, &trace, cur.Cols(), cur.Rows())
	if motion != geometry.Identity() {
		if err := step(warp(cur, motion)); err != nil {
			return fail(err)
		}
		truth = motion.Compose(truth)
	}

	buf, err := cur.DataPtrUint8()
	if err != nil {
		return fail(err)
	}
	saltPepper(buf, rng, p.SaltPepper)
	gaussianNoise(buf, rng, p.GaussianSigma)

	trace.Contrast = symmetric(rng, p.ContrastRange)
	trace.Brightness = symmetric(rng, p.BrightnessRange)
	if trace.Contrast != 0 || trace.Brightness != 0 {
		if err := step(viaImage(cur, func(src image.Image) image.Image {
			return adjust.Brightness(adjust.Contrast(src, trace.Contrast), trace.Brightness)
		})); err != nil {
			return fail(err)
		}
	}

	trace.InkStains = inkStains(&cur, rng, p)

	if buf, err = cur.DataPtrUint8(); err != nil {
		return fail(err)
	}
	dither(buf, cur.Cols(), p.DitherStrength)

	trace.Defect = drawDefect(rng, p.DefectProbability)
	if trace.Defect != DefectNone {
		if err := step(applyDefect(cur, rng, trace.Defect)); err != nil {
			return fail(err)
		}
	}

	if p.JPEGMaxQuality > 0 {
		trace.JPEGQuality = p.JPEGMinQuality + rng.Intn(p.JPEGMaxQuality-p.JPEGMinQuality+1)
		if err := step(recompress(cur, trace.JPEGQuality)); err != nil {
			return fail(err)
		}
	}

	return cur, truth, trace, nil
}

// drawMotion draws the rotation about the image center followed by the
// translation.
func drawMotion(rng *rand.Rand, p Params, trace *Trace, w, h int) geometry.AffineTransform {
	trace.Rotation = symmetric(rng, p.MaxRotation)
	if p.FlipProbability > 0 && rng.Float64() < p.FlipProbability {
		trace.Flipped = true
		trace.Rotation = 180 + symmetric(rng, p.FlipJitter)
	}
	trace.TranslateX = symmetric(rng, p.MaxTranslation)
	trace.TranslateY = symmetric(rng, p.MaxTranslation)

	center := geometry.Point2D{X: float64(w) / 2, Y: float64(h) / 2}
	rotation := geometry.RotationAbout(center, trace.Rotation*math.Pi/180)
	return geometry.Translation(trace.TranslateX, trace.TranslateY).Compose(rotation)
}

// symmetric draws uniformly from [-r, r]. A zero range still consumes a
// draw so later stages see the same sequence.
func symmetric(rng *rand.Rand, r float64) float64 {
	u := rng.Float64()
	if r == 0 {
		return 0
	}
	return (2*u - 1) * r
}

func warp(src gocv.Mat, t geometry.AffineTransform) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	m.SetDoubleAt(0, 0, t.A)
	m.SetDoubleAt(0, 1, t.B)
	m.SetDoubleAt(0, 2, t.TX)
	m.SetDoubleAt(1, 0, t.C)
	m.SetDoubleAt(1, 1, t.D)
	m.SetDoubleAt(1, 2, t.TY)

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, m, image.Point{X: src.Cols(), Y: src.Rows()},
		gocv.InterpolationLinear, gocv.BorderConstant, white)
	if dst.Empty() {
		return dst, fmt.Errorf("warp produced an empty image")
	}
	return dst, nil
}

// viaImage runs a Go image filter on a grayscale Mat.
func viaImage(src gocv.Mat, filter func(image.Image) image.Image) (gocv.Mat, error) {
	gray, err := detect.MatToGray(src)
	if err != nil {
		return gocv.NewMat(), err
	}
	return detect.ImageToGrayMat(filter(gray))
}

func inkStains(img *gocv.Mat, rng *rand.Rand, p Params) int {
	if p.InkStains == 0 {
		return 0
	}
	n := rng.Intn(p.InkStains + 1)
	for i := 0; i < n; i++ {
		center := image.Point{X: rng.Intn(img.Cols()), Y: rng.Intn(img.Rows())}
		radius := p.InkStainMinRadius + rng.Intn(p.InkStainMaxRadius-p.InkStainMinRadius+1)
		v := uint8(30 + rng.Intn(120))
		gocv.Circle(img, center, radius, color.RGBA{R: v, G: v, B: v, A: 255}, -1)
	}
	return n
}

// drawDefect picks the one defect effect of a pass with a single draw.
// DefectNone takes the share of the draw not given to prob; the damaging
// effects split prob evenly.
func drawDefect(rng *rand.Rand, prob float64) Defect {
	u := rng.Float64()
	if u >= prob {
		return DefectNone
	}
	return defects[min(int(u/prob*float64(len(defects))), len(defects)-1)]
}

func applyDefect(src gocv.Mat, rng *rand.Rand, d Defect) (gocv.Mat, error) {
	switch d {
	case DefectScanLines:
		out := src.Clone()
		lines := 1 + rng.Intn(6)
		for i := 0; i < lines; i++ {
			y := rng.Intn(out.Rows())
			thickness := 1 + rng.Intn(2)
			gocv.Rectangle(&out, image.Rect(0, y, out.Cols(), y+thickness-1), white, -1)
		}
		return out, nil
	case DefectBlur:
		radius := 0.5 + rng.Float64()*1.5
		return viaImage(src, func(img image.Image) image.Image { return blur.Gaussian(img, radius) })
	case DefectErode:
		return viaImage(src, func(img image.Image) image.Image { return effect.Erode(img, 1) })
	case DefectDilate:
		return viaImage(src, func(img image.Image) image.Image { return effect.Dilate(img, 1) })
	default:
		return gocv.NewMat(), fmt.Errorf("unknown defect %q", d)
	}
}

func recompress(src gocv.Mat, quality int) (gocv.Mat, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, src, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return gocv.NewMat(), err
	}
	defer buf.Close()
	return gocv.IMDecode(buf.GetBytes(), gocv.IMReadGrayScale)
}
