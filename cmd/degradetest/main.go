// Command degradetest degrades one image with a seed and prints the applied
// transform and parameter draws as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/hekzam/markers-eval-25-sub000/internal/degrade"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"

	"gocv.io/x/gocv"
)

type report struct {
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Seed      int64          `json:"seed"`
	Preset    string         `json:"preset"`
	Params    degrade.Params `json:"params"`
	Transform [2][3]float64  `json:"transform"`
	Trace     degrade.Trace  `json:"trace"`
	Size      [2]int         `json:"size"`
}

func main() {
	input := flag.String("i", "", "Path to the input image")
	output := flag.String("o", "degraded.png", "Path to the degraded image")
	seed := flag.Int64("seed", 1, "Random seed")
	preset := flag.String("preset", "default", "Preset: "+strings.Join(degrade.PresetNames(), ", "))
	flag.Parse()

	if *input == "" {
		fmt.Println("Usage: degradetest -i <image> [-o <out.png>] [-seed N] [-preset name]")
		os.Exit(1)
	}

	params, err := degrade.Preset(*preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	img, err := detect.Load(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}
	defer img.Close()

	degraded, t, trace, err := degrade.ApplyTraced(img, rand.New(rand.NewSource(*seed)), params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Degradation failed: %v\n", err)
		os.Exit(1)
	}
	defer degraded.Close()

	if !gocv.IMWrite(*output, degraded) {
		fmt.Fprintf(os.Stderr, "Failed to write %s\n", *output)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report{
		Input:     *input,
		Output:    *output,
		Seed:      *seed,
		Preset:    *preset,
		Params:    params,
		Transform: t.ToMatrix(),
		Trace:     trace,
		Size:      [2]int{degraded.Cols(), degraded.Rows()},
	})
}
