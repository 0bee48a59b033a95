package degrade

import (
	"math"
	"math/rand"
)

// bayer4 is the 4x4 ordered dithering matrix.
var bayer4 = [4][4]float64{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// saltPepper sets a fraction of the pixels to black or white.
func saltPepper(pix []uint8, rng *rand.Rand, fraction float64) {
	if fraction <= 0 || len(pix) == 0 {
		return
	}
	n := int(fraction * float64(len(pix)))
	for i := 0; i < n; i++ {
		idx := rng.Intn(len(pix))
		if rng.Intn(2) == 0 {
			pix[idx] = 0
		} else {
			pix[idx] = 255
		}
	}
}

// gaussianNoise adds zero-mean noise of the given standard deviation.
func gaussianNoise(pix []uint8, rng *rand.Rand, sigma float64) {
	if sigma <= 0 {
		return
	}
	for i, v := range pix {
		pix[i] = clamp(float64(v) + rng.NormFloat64()*sigma)
	}
}

// dither modulates intensities with the ordered pattern, imitating the
// halftone screen of a laser printer.
func dither(pix []uint8, width int, strength float64) {
	if strength <= 0 || width <= 0 {
		return
	}
	amplitude := strength * 255
	for i, v := range pix {
		x, y := i%width, i/width
		offset := (bayer4[y%4][x%4]/15 - 0.5) * amplitude
		pix[i] = clamp(float64(v) + offset)
	}
}

func clamp(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
