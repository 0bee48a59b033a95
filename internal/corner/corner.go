// Package corner matches detected features to the four logical page corners
// and the header, either from the tag carried in a symbol payload or from the
// geometry of plain shapes around a known bottom-right anchor.
package corner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"
)

// Detection shortfalls. They are per-capture outcomes, not program errors.
var (
	ErrNoMarkers           = errors.New("no markers detected")
	ErrInsufficientCorners = errors.New("fewer than 3 corners resolved")
	ErrSignatureMismatch   = errors.New("bottom-right signature mismatch")
)

// MinCorners is the number of correspondences an affine fit needs.
const MinCorners = 3

// numSlots covers the four corners and the header.
const numSlots = marker.NumCorners + 1

// Tags prefixed to corner and header payloads.
var payloadTags = map[string]marker.Slot{
	"tl": marker.TopLeft,
	"tr": marker.TopRight,
	"bl": marker.BottomLeft,
	"br": marker.BottomRight,
	"tc": marker.Header,
}

// TagLen is the length of a payload tag.
const TagLen = 2

// Tag returns the payload tag for a slot.
func Tag(s marker.Slot) string {
	for tag, slot := range payloadTags {
		if slot == s {
			return tag
		}
	}
	return ""
}

// Resolution records which slots were matched. Index holds the position of
// the matched feature in the slice given to the resolver, or -1.
type Resolution struct {
	Mask     uint8 // bit i set when corner i is found
	Centers  [marker.NumCorners]geometry.Point2D
	Index    [numSlots]int
	Contents [numSlots]string // payload text after the tag

	HeaderFound bool
	Rejected    int // features dropped for a bad signature
}

func newResolution() Resolution {
	r := Resolution{}
	for i := range r.Index {
		r.Index[i] = -1
	}
	return r
}

// Found reports whether a slot was matched.
func (r Resolution) Found(s marker.Slot) bool {
	if s == marker.Header {
		return r.HeaderFound
	}
	return r.Mask&(1<<uint(s)) != 0
}

// Count returns the number of resolved corners.
func (r Resolution) Count() int {
	n := 0
	for i := 0; i < marker.NumCorners; i++ {
		if r.Mask&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

// Content returns the payload text after the tag for a slot.
func (r Resolution) Content(s marker.Slot) string {
	return r.Contents[s]
}

func (r *Resolution) set(s marker.Slot, idx int, center geometry.Point2D) {
	r.Index[s] = idx
	if s == marker.Header {
		r.HeaderFound = true
		return
	}
	r.Mask |= 1 << uint(s)
	r.Centers[s] = center
}

// check returns ErrInsufficientCorners when fewer than MinCorners are found.
func (r Resolution) check() error {
	if r.Count() >= MinCorners {
		return nil
	}
	if r.Rejected > 0 {
		return fmt.Errorf("%w (%d found): %w", ErrInsufficientCorners, r.Count(), ErrSignatureMismatch)
	}
	return fmt.Errorf("%w (%d found)", ErrInsufficientCorners, r.Count())
}

// SplitPayload separates the tag of a payload from its content.
func SplitPayload(payload string) (marker.Slot, string, bool) {
	if len(payload) < TagLen {
		return 0, "", false
	}
	slot, ok := payloadTags[strings.ToLower(payload[:TagLen])]
	if !ok {
		return 0, "", false
	}
	return slot, payload[TagLen:], true
}

// ByPayload resolves corners from tagged payloads. A bottom-right payload
// whose content differs from signature is rejected as not found. When a tag
// appears more than once the first feature wins.
func ByPayload(features []detect.Feature, signature string) (Resolution, error) {
	res := newResolution()
	if len(features) == 0 {
		return res, ErrNoMarkers
	}

	for i, f := range features {
		slot, content, ok := SplitPayload(f.Payload)
		if !ok || res.Index[slot] >= 0 {
			continue
		}
		if slot == marker.BottomRight && content != signature {
			res.Rejected++
			continue
		}
		res.set(slot, i, f.Center())
		res.Contents[slot] = content
	}
	return res, res.check()
}

// FindAnchor returns the index of the bottom-right payload carrying the
// signature, and of the header payload, or -1 for either.
func FindAnchor(features []detect.Feature, signature string) (anchor, header int) {
	anchor, header = -1, -1
	for i, f := range features {
		slot, content, ok := SplitPayload(f.Payload)
		if !ok {
			continue
		}
		switch {
		case slot == marker.BottomRight && content == signature && anchor < 0:
			anchor = i
		case slot == marker.Header && header < 0:
			header = i
		}
	}
	return anchor, header
}

// DropInside removes shapes whose center falls inside any of the given
// features, typically symbol finder patterns taken for square marks.
func DropInside(shapes, within []detect.Feature) []detect.Feature {
	out := make([]detect.Feature, 0, len(shapes))
	for _, s := range shapes {
		if !insideAny(s.Center(), within) {
			out = append(out, s)
		}
	}
	return out
}

// FiducialCorners maps dictionary fiducial ids to corners. Read-only.
var FiducialCorners = map[int]marker.Slot{
	0: marker.TopLeft,
	1: marker.TopRight,
	2: marker.BottomLeft,
	3: marker.BottomRight,
}

// FiducialID returns the dictionary id printed at a corner.
func FiducialID(s marker.Slot) (int, bool) {
	for id, slot := range FiducialCorners {
		if slot == s {
			return id, true
		}
	}
	return 0, false
}

// ByFiducialID resolves corners from fiducial ids through table.
func ByFiducialID(features []detect.Feature, table map[int]marker.Slot) (Resolution, error) {
	res := newResolution()
	if len(features) == 0 {
		return res, ErrNoMarkers
	}
	for i, f := range features {
		slot, ok := table[f.ID]
		if !ok || slot == marker.Header || res.Index[slot] >= 0 {
			continue
		}
		res.set(slot, i, f.Center())
	}
	return res, res.check()
}
