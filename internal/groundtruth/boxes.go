// Package groundtruth reads the atomic box positions emitted by the page
// generator and splits them into corner markers and user boxes.
package groundtruth

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"
)

// CornerPrefix marks identifiers of corner and header markers.
const CornerPrefix = "hz"

// cornerCodes maps the code following CornerPrefix to its marker slot.
var cornerCodes = map[string]marker.Slot{
	"tl": marker.TopLeft,
	"tr": marker.TopRight,
	"bl": marker.BottomLeft,
	"br": marker.BottomRight,
	"tc": marker.Header,
}

// AtomicBox is a labeled rectangle in page space (millimetres).
type AtomicBox struct {
	ID          string  `json:"id"`
	Page        int     `json:"page"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// Rect returns the box as a geometry.Rect.
func (b AtomicBox) Rect() geometry.Rect {
	return geometry.Rect{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

// Center returns the box center in page space.
func (b AtomicBox) Center() geometry.Point2D {
	return b.Rect().Center()
}

// Slot returns the marker slot named by the identifier, if it carries the
// reserved corner prefix.
func (b AtomicBox) Slot() (marker.Slot, bool) {
	return SlotForID(b.ID)
}

// SlotForID returns the marker slot encoded by a reserved identifier such as
// "hzbr".
func SlotForID(id string) (marker.Slot, bool) {
	code, ok := strings.CutPrefix(id, CornerPrefix)
	if !ok {
		return 0, false
	}
	slot, ok := cornerCodes[code]
	return slot, ok
}

// IDForSlot is the inverse of SlotForID.
func IDForSlot(s marker.Slot) string {
	for code, slot := range cornerCodes {
		if slot == s {
			return CornerPrefix + code
		}
	}
	return ""
}

// rawBox is one JSON entry. Circles are given by diameter instead of
// width/height.
type rawBox struct {
	Page        *int     `json:"page"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
	Width       *float64 `json:"width"`
	Height      *float64 `json:"height"`
	Diameter    *float64 `json:"diameter"`
	StrokeWidth float64  `json:"stroke-width"`
}

// Parse decodes an identifier → box mapping. Boxes are returned sorted by
// identifier.
func Parse(r io.Reader) ([]AtomicBox, error) {
	var raw map[string]rawBox
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ground truth: %w", err)
	}

	boxes := make([]AtomicBox, 0, len(raw))
	for id, rb := range raw {
		if rb.X == nil || rb.Y == nil {
			return nil, fmt.Errorf("box %q: missing position", id)
		}
		box := AtomicBox{
			ID:          id,
			Page:        1,
			X:           *rb.X,
			Y:           *rb.Y,
			StrokeWidth: rb.StrokeWidth,
		}
		if rb.Page != nil {
			box.Page = *rb.Page
		}
		if box.Page < 1 {
			return nil, fmt.Errorf("box %q: page %d out of range", id, box.Page)
		}
		switch {
		case rb.Diameter != nil:
			d := *rb.Diameter
			box.Width, box.Height = d, d
			box.X -= d / 2
			box.Y -= d / 2
		case rb.Width != nil && rb.Height != nil:
			box.Width, box.Height = *rb.Width, *rb.Height
		default:
			return nil, fmt.Errorf("box %q: missing width/height or diameter", id)
		}
		boxes = append(boxes, box)
	}

	sort.Slice(boxes, func(i, j int) bool { return boxes[i].ID < boxes[j].ID })
	return boxes, nil
}

// Load reads and parses a ground truth file.
func Load(path string) ([]AtomicBox, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ground truth: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Encode writes boxes in the generator's JSON shape.
func Encode(w io.Writer, boxes []AtomicBox) error {
	out := make(map[string]rawBox, len(boxes))
	for _, b := range boxes {
		page, x, y, width, height := b.Page, b.X, b.Y, b.Width, b.Height
		out[b.ID] = rawBox{Page: &page, X: &x, Y: &y, Width: &width, Height: &height, StrokeWidth: b.StrokeWidth}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Layout separates corner markers from user boxes.
type Layout struct {
	Markers map[marker.Slot]AtomicBox
	Pages   map[int][]AtomicBox // user boxes by page, sorted by identifier
}

// Split classifies boxes. Identifiers with the reserved prefix but an unknown
// code are kept as user boxes.
func Split(boxes []AtomicBox) Layout {
	layout := Layout{
		Markers: make(map[marker.Slot]AtomicBox),
		Pages:   make(map[int][]AtomicBox),
	}
	for _, b := range boxes {
		if slot, ok := b.Slot(); ok {
			layout.Markers[slot] = b
			continue
		}
		layout.Pages[b.Page] = append(layout.Pages[b.Page], b)
	}
	for page := range layout.Pages {
		sort.Slice(layout.Pages[page], func(i, j int) bool {
			return layout.Pages[page][i].ID < layout.Pages[page][j].ID
		})
	}
	return layout
}

// CornerCenters returns the page-space centers of the four corner markers and
// a bitmask of which are present.
func (l Layout) CornerCenters() ([marker.NumCorners]geometry.Point2D, uint8) {
	var centers [marker.NumCorners]geometry.Point2D
	var mask uint8
	for i := 0; i < marker.NumCorners; i++ {
		if b, ok := l.Markers[marker.Slot(i)]; ok {
			centers[i] = b.Center()
			mask |= 1 << i
		}
	}
	return centers, mask
}
