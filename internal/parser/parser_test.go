package parser

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/hekzam/markers-eval-25-sub000/internal/calibration"
	"github.com/hekzam/markers-eval-25-sub000/internal/corner"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		in   string
		want Metadata
	}{
		{"exam,12,3", Metadata{Name: "exam", CopyID: 12, Page: 3}},
		{",0,1", Metadata{CopyID: 0, Page: 1}},
		{"a b,7, 2", Metadata{Name: "a b", CopyID: 7, Page: 2}},
		{"", DefaultMetadata()},
		{"exam,12", DefaultMetadata()},
		{"exam,x,1", DefaultMetadata()},
		{"exam,-1,1", DefaultMetadata()},
		{"exam,1,0", DefaultMetadata()},
		{"a,1,2,3", DefaultMetadata()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMetadata(tt.in))
		})
	}

	m := Metadata{Name: "exam", CopyID: 4, Page: 2}
	assert.Equal(t, m, ParseMetadata(m.String()))
	assert.Equal(t, Metadata{Name: "", CopyID: 0, Page: 1}, DefaultMetadata())
}

func TestResolveUnknownStrategy(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := New(WithLogger(logger))

	assert.Equal(t, marker.StrategyCircle, d.Resolve(marker.StrategyCircle))
	assert.Empty(t, buf.String())

	assert.Equal(t, DefaultStrategy, d.Resolve("hough-ellipse"))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "hough-ellipse")
}

func TestStrategies(t *testing.T) {
	assert.Equal(t, []string{"aruco", "circle", "qrcode", "shape"}, Strategies())
	for _, tag := range Strategies() {
		assert.True(t, Known(tag))
	}
	assert.False(t, Known("nope"))
}

func TestParseBlankCapture(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 300, 200, gocv.MatTypeCV8UC1)
	defer img.Close()

	d := New()
	in := Input{
		Image:        img,
		ExpectedMask: 0b1111,
		Markers:      marker.MustParseConfig("(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,none)"),
		MarkerSizePx: 30,
	}
	for _, tag := range Strategies() {
		t.Run(tag, func(t *testing.T) {
			_, err := d.Parse(tag, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, corner.ErrNoMarkers)
		})
	}
}

func TestCalibrateDropsMissingLayoutCorners(t *testing.T) {
	env := Env{Signature: DefaultSignature, Calibration: calibration.Options{}}
	in := Input{ExpectedMask: 0b0011}
	res := corner.Resolution{Mask: 0b1111}

	_, err := calibrate(env, in, res)
	assert.ErrorIs(t, err, calibration.ErrInsufficientCorners)
}

func TestShapeFamily(t *testing.T) {
	assert.Equal(t, marker.TypeTriangle, shapeFamily(marker.MustParseConfig("(triangle,triangle,triangle,qrcode:encoded,none)")))
	assert.Equal(t, marker.TypeSquare, shapeFamily(marker.MustParseConfig("(circle,circle,circle,qrcode:encoded,none)")))
}
