// Command extractboxes calibrates a capture, crops every user box of its
// page and optionally reads them with Tesseract.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/extract"
	"github.com/hekzam/markers-eval-25-sub000/internal/generator"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/internal/parser"
)

func main() {
	input := flag.String("i", "", "Path to the capture")
	boxesPath := flag.String("g", "", "Path to the ground truth JSON")
	markers := flag.String("m", "(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,none)", "Marker config")
	signature := flag.String("s", parser.DefaultSignature, "Bottom-right signature")
	dpi := flag.Float64("dpi", generator.A4().DPI, "Resolution of the theoretical page")
	widthMM := flag.Float64("width-mm", generator.A4().WidthMM, "Page width in millimetres")
	heightMM := flag.Float64("height-mm", generator.A4().HeightMM, "Page height in millimetres")
	verbose := flag.Bool("v", false, "Log pipeline details")
	outDir := flag.String("o", "boxes", "Directory receiving the crops")
	ocr := flag.Bool("ocr", false, "Read every box with Tesseract")
	lang := flag.String("lang", "eng", "Tesseract language")
	flag.Parse()

	if *input == "" || *boxesPath == "" {
		fmt.Println("Usage: extractboxes -i <capture> -g <boxes.json> [-m <markers>] [-o <dir>] [-ocr]")
		os.Exit(1)
	}

	cfg, err := marker.ParseConfig(*markers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad marker config: %v\n", err)
		os.Exit(1)
	}
	boxes, err := groundtruth.Load(*boxesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read ground truth: %v\n", err)
		os.Exit(1)
	}
	capture, err := detect.Load(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read capture: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()

	page := generator.A4()
	page.DPI, page.WidthMM, page.HeightMM = *dpi, *widthMM, *heightMM
	if err := page.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Bad page: %v\n", err)
		os.Exit(1)
	}
	scaler := page.Scaler()

	layout := groundtruth.Split(boxes)
	centers, mask := layout.CornerCenters()
	in := parser.Input{Image: capture, ExpectedMask: mask, Markers: cfg, MarkerSizePx: page.MarkerPixels()}
	for i, c := range centers {
		in.Expected[i] = scaler.ToPixel(c)
	}
	res, err := parser.New(parser.WithSignature(*signature), parser.WithLogger(newLogger(*verbose))).Parse(cfg.SuggestParser(), in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Copy %s, %d corners\n", res.Metadata, res.Resolution.Count())

	opts := []extract.Option{extract.WithOutputDir(*outDir)}
	if *ocr {
		engine, err := extract.NewEngine(*lang, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "OCR unavailable: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()
		opts = append(opts, extract.WithRecognizer(engine))
	}

	crops, err := extract.New(scaler, opts...).Extract(capture, res.Transform, layout.Pages[max(res.Metadata.Page, 1)])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	for _, c := range crops {
		if *ocr {
			fmt.Printf("  %-8s %-28s %q\n", c.ID, c.Path, c.Text)
		} else {
			fmt.Printf("  %-8s %s\n", c.ID, c.Path)
		}
	}
}

// newLogger writes warnings, or everything when verbose, to stderr.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
