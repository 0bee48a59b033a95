package geometry

// Scaler converts between theoretical page units (millimetres in generator
// output) and the pixel grid of a raster of that page. Each axis has its own
// linear factor, so a raster whose aspect ratio differs slightly from the
// page is still mapped corner to corner.
type Scaler struct {
	Page   Size
	Raster Size
}

// NewScaler returns a Scaler for a page of the given size rasterized into
// a width x height pixel image.
func NewScaler(page Size, width, height int) Scaler {
	return Scaler{Page: page, Raster: Size{Width: float64(width), Height: float64(height)}}
}

// ToPixel maps a page-space point to raster pixels.
func (s Scaler) ToPixel(p Point2D) Point2D {
	if s.Page.Width == 0 || s.Page.Height == 0 {
		return p
	}
	return Point2D{
		X: p.X * s.Raster.Width / s.Page.Width,
		Y: p.Y * s.Raster.Height / s.Page.Height,
	}
}

// ToPage maps a raster pixel to page space.
func (s Scaler) ToPage(p Point2D) Point2D {
	if s.Raster.Width == 0 || s.Raster.Height == 0 {
		return p
	}
	return Point2D{
		X: p.X * s.Page.Width / s.Raster.Width,
		Y: p.Y * s.Page.Height / s.Raster.Height,
	}
}

// RectToPixel maps a page-space rectangle to raster pixels.
func (s Scaler) RectToPixel(r Rect) Rect {
	tl := s.ToPixel(Point2D{X: r.X, Y: r.Y})
	br := s.ToPixel(Point2D{X: r.X + r.Width, Y: r.Y + r.Height})
	return Rect{X: tl.X, Y: tl.Y, Width: br.X - tl.X, Height: br.Y - tl.Y}
}

// Transform returns the page-to-pixel mapping as an affine transform.
func (s Scaler) Transform() AffineTransform {
	if s.Page.Width == 0 || s.Page.Height == 0 {
		return Identity()
	}
	return AffineTransform{A: s.Raster.Width / s.Page.Width, D: s.Raster.Height / s.Page.Height}
}
