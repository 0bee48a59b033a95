package detect

import (
	"bytes"
	"image"
	"image/color"
	"log/slog"
	"math"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	dmencoder "github.com/makiuchi-d/gozxing/datamatrix/encoder"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"
)

var black = color.RGBA{A: 255}

// whitePage creates a blank single-channel page.
func whitePage(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), height, width, gocv.MatTypeCV8UC1)
}

func nearest(features []Feature, p geometry.Point2D) float64 {
	best := 1e18
	for _, f := range features {
		if d := f.Center().Distance(p); d < best {
			best = d
		}
	}
	return best
}

func TestDetectorsRejectInvalidInput(t *testing.T) {
	color3 := gocv.NewMatWithSize(50, 50, gocv.MatTypeCV8UC3)
	defer color3.Close()
	tiny := whitePage(1, 1)
	defer tiny.Close()

	detectors := []Detector{
		NewPayloadReader(marker.FlagNone),
		NewCircleDetector(DefaultCircleParams()),
		NewShapeDetector(DefaultShapeParams()),
		NewArucoDetector(),
	}
	for _, d := range detectors {
		t.Run(d.Kind().String(), func(t *testing.T) {
			_, err := d.Detect(color3)
			require.ErrorIs(t, err, ErrInvalidImage)

			features, err := d.Detect(tiny)
			require.NoError(t, err)
			assert.Empty(t, features)
		})
	}
}

func TestCircleDetector(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	centers := []image.Point{{X: 60, Y: 60}, {X: 340, Y: 60}, {X: 60, Y: 340}}
	for _, c := range centers {
		gocv.Circle(&img, c, 15, black, -1)
	}

	d := NewCircleDetector(DefaultCircleParams().WithMarkerSize(30))
	features, err := d.Detect(img)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(features), len(centers))

	for _, c := range centers {
		dist := nearest(features, geometry.Point2D{X: float64(c.X), Y: float64(c.Y)})
		assert.Less(t, dist, 3.0, "circle at %v", c)
	}
	for _, f := range features {
		assert.GreaterOrEqual(t, len(f.Polygon), 4)
		assert.Equal(t, NoID, f.ID)
	}
}

func TestShapeDetectorSquares(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	gocv.Rectangle(&img, image.Rect(40, 40, 80, 80), black, -1)
	gocv.Rectangle(&img, image.Rect(300, 280, 340, 320), black, -1)
	gocv.Circle(&img, image.Point{X: 200, Y: 200}, 20, black, -1)

	d := NewShapeDetector(DefaultShapeParams().WithMarkerSize(40).WithShape(marker.TypeSquare))
	features, err := d.Detect(img)
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Less(t, nearest(features, geometry.Point2D{X: 60, Y: 60}), 2.0)
	assert.Less(t, nearest(features, geometry.Point2D{X: 320, Y: 300}), 2.0)
	assert.Greater(t, nearest(features, geometry.Point2D{X: 200, Y: 200}), 50.0)
}

// fillPolygon draws a solid outline given as offsets from c.
func fillPolygon(img *gocv.Mat, c image.Point, offsets [][2]float64) {
	pts := make([]image.Point, len(offsets))
	for i, o := range offsets {
		pts[i] = image.Point{X: c.X + int(math.Round(o[0])), Y: c.Y + int(math.Round(o[1]))}
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.FillPoly(img, pv, black)
}

func TestShapeDetectorTriangles(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	const h = 30.0
	up := [][2]float64{{0, -h}, {h, h}, {-h, h}}
	down := [][2]float64{{0, h}, {h, -h}, {-h, -h}}
	centers := []image.Point{{X: 80, Y: 80}, {X: 300, Y: 90}, {X: 90, Y: 300}}
	fillPolygon(&img, centers[0], up)
	fillPolygon(&img, centers[1], up)
	fillPolygon(&img, centers[2], down)

	d := NewShapeDetector(DefaultShapeParams().WithMarkerSize(2 * h).WithShape(marker.TypeTriangle))
	features, err := d.Detect(img)
	require.NoError(t, err)
	require.Len(t, features, len(centers))

	for _, c := range centers {
		dist := nearest(features, geometry.Point2D{X: float64(c.X), Y: float64(c.Y)})
		assert.Less(t, dist, 2.0, "triangle centred on %v", c)
	}
	for _, f := range features {
		assert.Len(t, f.Polygon, 4)
	}
}

func TestShapeDetectorCrosses(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	const h, a = 30.0, 10.0
	cross := [][2]float64{
		{-a, -h}, {a, -h}, {a, -a}, {h, -a}, {h, a}, {a, a},
		{a, h}, {-a, h}, {-a, a}, {-h, a}, {-h, -a}, {-a, -a},
	}
	centers := []image.Point{{X: 80, Y: 80}, {X: 310, Y: 90}, {X: 200, Y: 300}}
	for _, c := range centers {
		fillPolygon(&img, c, cross)
	}
	gocv.Rectangle(&img, image.Rect(250, 250, 310, 310), black, -1)

	d := NewShapeDetector(DefaultShapeParams().WithMarkerSize(2 * h).WithShape(marker.TypeCross))
	features, err := d.Detect(img)
	require.NoError(t, err)
	require.Len(t, features, len(centers))

	for _, c := range centers {
		dist := nearest(features, geometry.Point2D{X: float64(c.X), Y: float64(c.Y)})
		assert.Less(t, dist, 2.0, "cross centred on %v", c)
	}
}

func TestTriangleSquare(t *testing.T) {
	tests := []struct {
		name string
		tri  []geometry.Point2D
	}{
		{"apex up", []geometry.Point2D{{X: 0, Y: -10}, {X: 10, Y: 10}, {X: -10, Y: 10}}},
		{"apex down", []geometry.Point2D{{X: -10, Y: -10}, {X: 0, Y: 10}, {X: 10, Y: -10}}},
		{"apex right", []geometry.Point2D{{X: -10, Y: -10}, {X: 10, Y: 0}, {X: -10, Y: 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sq := triangleSquare(tt.tri)
			require.Len(t, sq, 4)
			c := geometry.Centroid(sq)
			assert.InDelta(t, 0, c.X, 1e-9)
			assert.InDelta(t, 0, c.Y, 1e-9)
			assert.InDelta(t, 20, sq[0].Distance(sq[1]), 1e-9)
			assert.InDelta(t, 20, sq[1].Distance(sq[2]), 1e-9)
		})
	}
}

func TestShapeDetectorSizeWindow(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	gocv.Rectangle(&img, image.Rect(40, 40, 80, 80), black, -1)
	gocv.Rectangle(&img, image.Rect(200, 200, 210, 210), black, -1)
	gocv.Rectangle(&img, image.Rect(100, 250, 250, 280), black, -1)

	d := NewShapeDetector(DefaultShapeParams().WithMarkerSize(40))
	features, err := d.Detect(img)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Less(t, nearest(features, geometry.Point2D{X: 60, Y: 60}), 2.0)
}

func TestPayloadReaderBlankPage(t *testing.T) {
	img := whitePage(200, 200)
	defer img.Close()

	features, err := NewPayloadReader(marker.FlagQRCode).Detect(img)
	require.NoError(t, err)
	assert.Empty(t, features)
}

// drawBits paints the dark modules of m onto img with its top-left at origin.
func drawBits(img *gocv.Mat, m *gozxing.BitMatrix, origin image.Point) {
	for y := 0; y < m.GetHeight(); y++ {
		for x := 0; x < m.GetWidth(); x++ {
			if m.Get(x, y) {
				img.SetUCharAt(origin.Y+y, origin.X+x, 0)
			}
		}
	}
}

func TestPayloadReaderDataMatrix(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	bits, err := datamatrix.NewDataMatrixWriter().Encode("tlexam,3,1", gozxing.BarcodeFormat_DATA_MATRIX, 80, 80,
		map[gozxing.EncodeHintType]interface{}{gozxing.EncodeHintType_DATA_MATRIX_SHAPE: dmencoder.SymbolShapeHint_FORCE_SQUARE})
	require.NoError(t, err)
	drawBits(&img, bits, image.Point{X: 260, Y: 40})

	features, err := NewPayloadReader(marker.FlagDataMatrix, WithSymbolSize(80)).Detect(img)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "tlexam,3,1", features[0].Payload)
	assert.Equal(t, KindPayload, features[0].Kind)
	assert.Less(t, features[0].Center().Distance(geometry.Point2D{X: 300, Y: 80}), 3.0)

	// The QR reader alone does not see Data Matrix symbols
	features, err = NewPayloadReader(marker.FlagQRCode).Detect(img)
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestPayloadReaderCode128(t *testing.T) {
	img := whitePage(400, 400)
	defer img.Close()

	bits, err := oned.NewCode128Writer().Encode("hzsig", gozxing.BarcodeFormat_CODE_128, 240, 80, nil)
	require.NoError(t, err)
	drawBits(&img, bits, image.Point{X: 80, Y: 160})

	features, err := NewPayloadReader(marker.FlagLinear).Detect(img)
	require.NoError(t, err)
	require.NotEmpty(t, features)
	assert.Equal(t, "hzsig", features[0].Payload)
}

func TestPayloadReaderLogsUnsupportedFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	NewPayloadReader(marker.FlagQRCode|marker.FlagDataMatrix, WithLogger(logger))
	assert.Empty(t, buf.String())

	NewPayloadReader(marker.FlagPDF417|marker.FlagQRCode, WithLogger(logger))
	assert.Contains(t, buf.String(), "payload formats without a reader are ignored")
}

func TestNewByKind(t *testing.T) {
	for _, k := range []Kind{KindPayload, KindCircle, KindShape, KindAruco} {
		d, err := New(k, Params{MarkerSizePx: 40, Shape: marker.TypeSquare})
		require.NoError(t, err)
		assert.Equal(t, k, d.Kind())
	}
	_, err := New(Kind(42), Params{})
	assert.Error(t, err)
}

func TestGrayConversions(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	src.Set(2, 2, color.RGBA{R: 255, A: 255})

	mat, err := ImageToGrayMat(src)
	require.NoError(t, err)
	defer mat.Close()
	assert.Equal(t, gocv.MatTypeCV8UC1, mat.Type())

	gray, err := MatToGray(mat)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), gray.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(0, 0).Y)
	assert.Equal(t, color.GrayModel.Convert(color.RGBA{R: 255, A: 255}), gray.GrayAt(2, 2))
}
