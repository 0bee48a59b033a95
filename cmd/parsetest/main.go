// Command parsetest calibrates one capture against its ground truth and
// prints the transform, the resolved corners and the copy identity.
package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/hekzam/markers-eval-25-sub000/internal/calibration"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/generator"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/internal/parser"

	"gocv.io/x/gocv"
)

func main() {
	input := flag.String("i", "", "Path to the capture")
	boxesPath := flag.String("g", "", "Path to the ground truth JSON")
	markers := flag.String("m", "(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,none)", "Marker config")
	strategy := flag.String("p", "", "Parser (default: suggested by the marker config)")
	signature := flag.String("s", parser.DefaultSignature, "Bottom-right signature")
	dpi := flag.Float64("dpi", generator.A4().DPI, "Resolution of the theoretical page")
	widthMM := flag.Float64("width-mm", generator.A4().WidthMM, "Page width in millimetres")
	heightMM := flag.Float64("height-mm", generator.A4().HeightMM, "Page height in millimetres")
	verbose := flag.Bool("v", false, "Log pipeline details")
	output := flag.String("o", "", "Write the rectified, annotated page here")
	flag.Parse()

	if *input == "" || *boxesPath == "" {
		fmt.Println("Usage: parsetest -i <capture> -g <boxes.json> [-m <markers>] [-p <parser>] [-o <out.png>]")
		os.Exit(1)
	}

	cfg, err := marker.ParseConfig(*markers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad marker config: %v\n", err)
		os.Exit(1)
	}
	if *strategy == "" {
		*strategy = cfg.SuggestParser()
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
	w, h := page.RasterSize()
	scaler := page.Scaler()

	layout := groundtruth.Split(boxes)
	centers, mask := layout.CornerCenters()
	in := parser.Input{
		Image:        capture,
		ExpectedMask: mask,
		Markers:      cfg,
		MarkerSizePx: page.MarkerPixels(),
	}
	for i, c := range centers {
		in.Expected[i] = scaler.ToPixel(c)
	}

	fmt.Printf("=== Parsing %s with %s ===\n", *input, *strategy)
	res, err := parser.New(parser.WithSignature(*signature), parser.WithLogger(newLogger(*verbose))).Parse(*strategy, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}

	for s := marker.TopLeft; s <= marker.BottomRight; s++ {
		if res.Resolution.Found(s) {
			fmt.Printf("  %-12s expected (%7.1f,%7.1f) found (%7.1f,%7.1f)\n",
				s, in.Expected[s].X, in.Expected[s].Y, res.Found[s].X, res.Found[s].Y)
		} else {
			fmt.Printf("  %-12s not found\n", s)
		}
	}
	m := res.Transform.ToMatrix()
	fmt.Printf("Transform:\n  [%9.5f %9.5f %9.2f]\n  [%9.5f %9.5f %9.2f]\n",
		m[0][0], m[0][1], m[0][2], m[1][0], m[1][1], m[1][2])
	fmt.Printf("Copy: %s\n", res.Metadata)

	if *output == "" {
		return
	}
	rectified, err := calibration.Redress(capture, res.Transform, image.Pt(w, h))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rectification failed: %v\n", err)
		os.Exit(1)
	}
	defer rectified.Close()
	calibration.Annotate(&rectified, layout.Pages[max(res.Metadata.Page, 1)], scaler)
	if !gocv.IMWrite(*output, rectified) {
		fmt.Fprintf(os.Stderr, "Failed to write %s\n", *output)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *output)
}

// newLogger writes warnings, or everything when verbose, to stderr.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
