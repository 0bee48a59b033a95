package groundtruth

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
)

func TestCornerMarkerClassification(t *testing.T) {
	boxes, err := Parse(strings.NewReader(`{"hzbr":{"page":1,"x":196.6,"y":282.5,"width":15,"height":15}}`))
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	layout := Split(boxes)
	assert.Empty(t, layout.Pages)
	br, ok := layout.Markers[marker.BottomRight]
	require.True(t, ok)
	assert.Equal(t, 196.6, br.X)
	assert.Equal(t, 15.0, br.Width)
}

func TestParseDiameterAndGrouping(t *testing.T) {
	input := `{
		"hztl": {"page": 1, "x": 10, "y": 10, "diameter": 8},
		"q2": {"page": 2, "x": 30, "y": 40, "width": 20, "height": 5},
		"q1b": {"page": 1, "x": 60, "y": 40, "width": 20, "height": 5},
		"q1a": {"page": 1, "x": 30, "y": 40, "width": 20, "height": 5},
		"hzzz": {"page": 1, "x": 1, "y": 1, "width": 1, "height": 1}
	}`
	boxes, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	layout := Split(boxes)

	tl := layout.Markers[marker.TopLeft]
	assert.Equal(t, 6.0, tl.X)
	assert.Equal(t, 6.0, tl.Y)
	assert.Equal(t, 8.0, tl.Width)
	assert.Equal(t, 8.0, tl.Height)

	require.Len(t, layout.Pages[1], 3)
	assert.Equal(t, "hzzz", layout.Pages[1][0].ID)
	assert.Equal(t, "q1a", layout.Pages[1][1].ID)
	assert.Equal(t, "q1b", layout.Pages[1][2].ID)
	require.Len(t, layout.Pages[2], 1)

	centers, mask := layout.CornerCenters()
	assert.Equal(t, uint8(0b0001), mask)
	assert.Equal(t, 10.0, centers[0].X)
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"not json":    `[`,
		"no size":     `{"a": {"page": 1, "x": 1, "y": 1}}`,
		"no position": `{"a": {"page": 1, "width": 1, "height": 1}}`,
		"page zero":   `{"a": {"page": 0, "x": 1, "y": 1, "width": 1, "height": 1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestEncodeParse(t *testing.T) {
	in := []AtomicBox{
		{ID: "hztc", Page: 1, X: 90, Y: 5, Width: 30, Height: 10},
		{ID: "name", Page: 1, X: 20, Y: 40, Width: 100, Height: 12, StrokeWidth: 0.5},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	out, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "hzbl", IDForSlot(marker.BottomLeft))
}
