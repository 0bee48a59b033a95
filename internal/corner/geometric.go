package corner

import (
	"math"
	"sort"

	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"
)

// AngleTolerance is the largest deviation from a right angle, in radians,
// for a shape to be accepted as a page corner.
const AngleTolerance = 0.1

type candidate struct {
	index int
	angle float64
	dev   float64
}

// ByGeometry assigns the unlabeled shapes to TL, TR and BL using the
// bottom-right anchor as reference. The anchor is always reported as BR.
//
// TL is the shape farthest from the anchor. TR and BL are the shapes seeing
// TL and the anchor at a right angle; which is which follows from the sign of
// that angle in image coordinates. When no shape qualifies the TL pick is
// discarded and the best right angle at the anchor over all pairs is used
// instead.
func ByGeometry(shapes []detect.Feature, anchor geometry.Point2D, anchorIndex int) (Resolution, error) {
	res := newResolution()
	res.set(marker.BottomRight, anchorIndex, anchor)
	if len(shapes) == 0 {
		return res, res.check()
	}

	tl := farthest(shapes, anchor)
	tlCenter := shapes[tl].Center()

	var accepted []candidate
	for i, s := range shapes {
		if i == tl {
			continue
		}
		angle := geometry.SignedAngle(s.Center(), tlCenter, anchor)
		if dev := geometry.RightAngleDeviation(angle); dev < AngleTolerance {
			accepted = append(accepted, candidate{index: i, angle: angle, dev: dev})
		}
	}

	if len(accepted) > 0 {
		sort.SliceStable(accepted, func(a, b int) bool { return accepted[a].dev < accepted[b].dev })
		res.set(marker.TopLeft, tl, tlCenter)

		first, second := marker.TopRight, marker.BottomLeft
		// Seen from TR, TL and BR are a clockwise quarter turn apart
		if accepted[0].angle > 0 {
			first, second = second, first
		}
		res.set(first, accepted[0].index, shapes[accepted[0].index].Center())
		if len(accepted) > 1 {
			res.set(second, accepted[1].index, shapes[accepted[1].index].Center())
		}
		return res, res.check()
	}

	tr, bl, ok := bestPairAtAnchor(shapes, anchor)
	if ok {
		res.set(marker.TopRight, tr, shapes[tr].Center())
		res.set(marker.BottomLeft, bl, shapes[bl].Center())
	}
	return res, res.check()
}

// bestPairAtAnchor searches the pair of shapes closest to a right angle at
// the anchor and orders it as (TR, BL).
func bestPairAtAnchor(shapes []detect.Feature, anchor geometry.Point2D) (tr, bl int, ok bool) {
	best := candidate{dev: math.Inf(1)}
	bestJ := -1
	for i := range shapes {
		for j := i + 1; j < len(shapes); j++ {
			angle := geometry.SignedAngle(anchor, shapes[i].Center(), shapes[j].Center())
			if dev := geometry.RightAngleDeviation(angle); dev < best.dev {
				best = candidate{index: i, angle: angle, dev: dev}
				bestJ = j
			}
		}
	}
	if bestJ < 0 || best.dev >= AngleTolerance {
		return -1, -1, false
	}
	// Seen from BR, TR comes a clockwise quarter turn before BL
	if best.angle > 0 {
		return bestJ, best.index, true
	}
	return best.index, bestJ, true
}

func farthest(shapes []detect.Feature, p geometry.Point2D) int {
	best, bestDist := 0, -1.0
	for i, s := range shapes {
		if d := s.Center().Distance(p); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ByAnchoredShapes resolves a capture carrying a signed bottom-right payload
// and plain shapes on the other corners. Shapes lying inside any payload
// polygon are ignored. The header payload, when present, is recorded too.
// The returned Index entries for TL, TR and BL refer to shapes.
func ByAnchoredShapes(payloads, shapes []detect.Feature, signature string) (Resolution, error) {
	anchorIdx, headerIdx := FindAnchor(payloads, signature)
	if anchorIdx < 0 {
		res := newResolution()
		if len(payloads) == 0 && len(shapes) == 0 {
			return res, ErrNoMarkers
		}
		for _, p := range payloads {
			if slot, _, ok := SplitPayload(p.Payload); ok && slot == marker.BottomRight {
				res.Rejected++
			}
		}
		return res, res.check()
	}

	var kept []detect.Feature
	var keptIdx []int
	for i, s := range shapes {
		if !insideAny(s.Center(), payloads) {
			kept = append(kept, s)
			keptIdx = append(keptIdx, i)
		}
	}

	res, err := ByGeometry(kept, payloads[anchorIdx].Center(), anchorIdx)
	for _, s := range []marker.Slot{marker.TopLeft, marker.TopRight, marker.BottomLeft} {
		if res.Index[s] >= 0 {
			res.Index[s] = keptIdx[res.Index[s]]
		}
	}
	_, res.Contents[marker.BottomRight], _ = SplitPayload(payloads[anchorIdx].Payload)
	if headerIdx >= 0 {
		res.set(marker.Header, headerIdx, geometry.Point2D{})
		_, res.Contents[marker.Header], _ = SplitPayload(payloads[headerIdx].Payload)
	}
	return res, err
}

func insideAny(p geometry.Point2D, features []detect.Feature) bool {
	for _, f := range features {
		if geometry.PointInPolygon(p, f.Polygon) {
			return true
		}
	}
	return false
}
