// Package degrade simulates print-and-scan damage on a generated page and
// reports the exact geometric transform it applied.
package degrade

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidParams is returned for out-of-range parameters.
var ErrInvalidParams = errors.New("invalid degradation parameters")

// Params controls every stage. Ranges are symmetric: a value r draws
// uniformly from [-r, r].
type Params struct {
	Padding int `mapstructure:"padding" json:"padding"` // white border on every side, px

	MaxRotation     float64 `mapstructure:"max_rotation" json:"max_rotation"` // degrees
	FlipProbability float64 `mapstructure:"flip_probability" json:"flip_probability"`
	FlipJitter      float64 `mapstructure:"flip_jitter" json:"flip_jitter"` // degrees around 180
	MaxTranslation  float64 `mapstructure:"max_translation" json:"max_translation"`

	SaltPepper    float64 `mapstructure:"salt_pepper" json:"salt_pepper"` // fraction of pixels
	GaussianSigma float64 `mapstructure:"gaussian_sigma" json:"gaussian_sigma"`

	ContrastRange   float64 `mapstructure:"contrast_range" json:"contrast_range"`     // bild change, -1..1
	BrightnessRange float64 `mapstructure:"brightness_range" json:"brightness_range"` // bild change, -1..1

	InkStains         int `mapstructure:"ink_stains" json:"ink_stains"` // max count
	InkStainMinRadius int `mapstructure:"ink_stain_min_radius" json:"ink_stain_min_radius"`
	InkStainMaxRadius int `mapstructure:"ink_stain_max_radius" json:"ink_stain_max_radius"`

	DitherStrength float64 `mapstructure:"dither_strength" json:"dither_strength"` // 0..1 of full range

	DefectProbability float64 `mapstructure:"defect_probability" json:"defect_probability"`

	JPEGMinQuality int `mapstructure:"jpeg_min_quality" json:"jpeg_min_quality"`
	JPEGMaxQuality int `mapstructure:"jpeg_max_quality" json:"jpeg_max_quality"` // 0 disables recompression
}

var presets = map[string]Params{
	"none": {},
	"light": {
		Padding:         20,
		MaxRotation:     2,
		MaxTranslation:  10,
		SaltPepper:      0.0005,
		GaussianSigma:   4,
		ContrastRange:   0.1,
		BrightnessRange: 0.05,
		JPEGMinQuality:  80,
		JPEGMaxQuality:  95,
	},
	"default": {
		Padding:           40,
		MaxRotation:       8,
		FlipProbability:   0.1,
		FlipJitter:        5,
		MaxTranslation:    30,
		SaltPepper:        0.002,
		GaussianSigma:     8,
		ContrastRange:     0.25,
		BrightnessRange:   0.1,
		InkStains:         3,
		InkStainMinRadius: 4,
		InkStainMaxRadius: 14,
		DitherStrength:    0.04,
		DefectProbability: 0.5,
		JPEGMinQuality:    50,
		JPEGMaxQuality:    90,
	},
	"harsh": {
		Padding:           60,
		MaxRotation:       20,
		FlipProbability:   0.3,
		FlipJitter:        10,
		MaxTranslation:    60,
		SaltPepper:        0.01,
		GaussianSigma:     16,
		ContrastRange:     0.4,
		BrightnessRange:   0.2,
		InkStains:         8,
		InkStainMinRadius: 6,
		InkStainMaxRadius: 24,
		DitherStrength:    0.1,
		DefectProbability: 1,
		JPEGMinQuality:    20,
		JPEGMaxQuality:    60,
	},
}

// Preset returns a named parameter set.
func Preset(name string) (Params, error) {
	p, ok := presets[name]
	if !ok {
		return Params{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidParams, name)
	}
	return p, nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the "default" preset.
func Default() Params {
	return presets["default"]
}

// Validate reports the first out-of-range field.
func (p Params) Validate() error {
	switch {
	case p.Padding < 0:
		return fmt.Errorf("%w: padding %d", ErrInvalidParams, p.Padding)
	case p.MaxRotation < 0 || p.FlipJitter < 0 || p.MaxTranslation < 0:
		return fmt.Errorf("%w: negative geometric range", ErrInvalidParams)
	case !unit(p.FlipProbability) || !unit(p.DefectProbability) || !unit(p.SaltPepper) || !unit(p.DitherStrength):
		return fmt.Errorf("%w: probability or fraction outside [0,1]", ErrInvalidParams)
	case p.GaussianSigma < 0:
		return fmt.Errorf("%w: gaussian sigma %v", ErrInvalidParams, p.GaussianSigma)
	case !unit(p.ContrastRange) || !unit(p.BrightnessRange):
		return fmt.Errorf("%w: photometric range outside [0,1]", ErrInvalidParams)
	case p.InkStains < 0 || p.InkStainMinRadius < 0 || p.InkStainMaxRadius < p.InkStainMinRadius:
		return fmt.Errorf("%w: ink stain bounds", ErrInvalidParams)
	case p.JPEGMaxQuality != 0 && (p.JPEGMinQuality < 1 || p.JPEGMaxQuality > 100 || p.JPEGMinQuality > p.JPEGMaxQuality):
		return fmt.Errorf("%w: jpeg quality %d..%d", ErrInvalidParams, p.JPEGMinQuality, p.JPEGMaxQuality)
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
