package geometry

import "math"

// cross is the z component of (a-o) x (b-o). In image coordinates it is
// positive when b lies clockwise of a on screen.
func cross(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// SignedAngle returns the angle at vertex between the ray towards a and the
// ray towards b, in radians within [-pi, pi]. In image coordinates (Y down)
// the angle is negative when b lies counter-clockwise of a on screen.
func SignedAngle(vertex, a, b Point2D) float64 {
	dot := (a.X-vertex.X)*(b.X-vertex.X) + (a.Y-vertex.Y)*(b.Y-vertex.Y)
	return math.Atan2(cross(vertex, a, b), dot)
}

// RightAngleDeviation returns how far |angle| is from pi/2.
func RightAngleDeviation(angle float64) float64 {
	return math.Abs(math.Abs(angle) - math.Pi/2)
}

// IsConvex reports whether every turn along the closed outline goes the
// same way. Collinear vertices are ignored.
func IsConvex(outline []Point2D) bool {
	n := len(outline)
	if n < 3 {
		return false
	}
	var turn float64
	for i := range outline {
		c := cross(outline[i], outline[(i+1)%n], outline[(i+2)%n])
		switch {
		case c == 0:
		case turn == 0:
			turn = c
		case (c > 0) != (turn > 0):
			return false
		}
	}
	return true
}

// PointInPolygon reports whether p lies inside the closed outline, counting
// how many edges a horizontal ray from p crosses.
func PointInPolygon(p Point2D, outline []Point2D) bool {
	if len(outline) < 3 {
		return false
	}
	inside := false
	prev := outline[len(outline)-1]
	for _, cur := range outline {
		if (cur.Y > p.Y) != (prev.Y > p.Y) {
			xAtY := cur.X + (p.Y-cur.Y)*(prev.X-cur.X)/(prev.Y-cur.Y)
			if p.X < xAtY {
				inside = !inside
			}
		}
		prev = cur
	}
	return inside
}
