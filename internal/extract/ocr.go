package extract

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// minOCRHeight is the crop height Tesseract reads reliably.
const minOCRHeight = 64

// Recognizer reads the text in one box crop.
type Recognizer interface {
	Recognize(img image.Image) (string, error)
}

// Engine recognizes handwritten or printed box content with Tesseract.
type Engine struct {
	client *gosseract.Client
}

// NewEngine returns an engine for lang, e.g. "eng" or "fra". whitelist
// restricts the accepted characters when not empty.
func NewEngine(lang, whitelist string) (*Engine, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	// Box content is rarely dictionary words
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	return &Engine{client: client}, nil
}

// Close releases the Tesseract handle.
func (e *Engine) Close() error {
	return e.client.Close()
}

// Recognize implements Recognizer.
func (e *Engine) Recognize(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, PrepareForOCR(img), imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode crop: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.Join(strings.Fields(text), " "), nil
}

// PrepareForOCR converts a crop to grayscale, upscales small crops and
// raises contrast.
func PrepareForOCR(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	if h := out.Bounds().Dy(); h > 0 && h < minOCRHeight {
		out = imaging.Resize(out, 0, minOCRHeight, imaging.Lanczos)
	}
	return imaging.AdjustContrast(out, 30)
}
