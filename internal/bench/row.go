// Package bench runs the generate, degrade, parse and evaluate loop over many
// synthetic copies and records one row per copy.
package bench

import (
	"math"
	"strconv"

	"github.com/hekzam/markers-eval-25-sub000/internal/precision"
)

// Header is the CSV header, in Record order.
var Header = []string{
	"file", "generation_ms", "detection_ms", "success", "parser", "markers", "seed",
	"err_tl", "err_tr", "err_bl", "err_br", "err_avg",
}

// Row is the outcome of one copy. Errors is NaN-filled when Success is false.
type Row struct {
	RunID        string
	Copy         int
	File         string
	GenerationMS float64
	DetectionMS  float64
	Success      bool
	Parser       string
	Markers      string
	Seed         int64
	Errors       precision.Errors
}

// Record formats the row for CSV output.
func (r Row) Record() []string {
	rec := []string{
		r.File,
		formatFloat(r.GenerationMS),
		formatFloat(r.DetectionMS),
		strconv.FormatBool(r.Success),
		r.Parser,
		r.Markers,
		strconv.FormatInt(r.Seed, 10),
	}
	for _, e := range r.Errors.Corners {
		rec = append(rec, formatFloat(e))
	}
	return append(rec, formatFloat(r.Errors.Average))
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
