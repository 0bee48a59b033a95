package generator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hekzam/markers-eval-25-sub000/internal/corner"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/groundtruth"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuiltinQRPage(t *testing.T) {
	gen, err := NewBuiltin(A4(), WithLogger(quietLogger()))
	require.NoError(t, err)

	req := Request{
		Copy:      3,
		Name:      "exam",
		Markers:   marker.MustParseConfig("(qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode:encoded,qrcode)"),
		Signature: "hzsig",
	}
	art, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	defer art.Close()

	w, h := A4().RasterSize()
	assert.Equal(t, w, art.Image.Cols())
	assert.Equal(t, h, art.Image.Rows())

	layout := groundtruth.Split(art.Boxes)
	assert.Len(t, layout.Markers, 5)
	assert.Len(t, layout.Pages[1], 20)

	features, err := detect.NewPayloadReader(marker.FlagQRCode).Detect(art.Image)
	require.NoError(t, err)
	payloads := map[string]bool{}
	for _, f := range features {
		payloads[f.Payload] = true
	}
	assert.True(t, payloads["brhzsig"], "signed bottom-right symbol, got %v", payloads)
	assert.True(t, payloads["blexam,3,1"], "identity on bottom-left, got %v", payloads)

	res, err := corner.ByPayload(features, "hzsig")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Count(), 3)
}

func TestBuiltinShapePage(t *testing.T) {
	gen, err := NewBuiltin(A4(), WithLogger(quietLogger()))
	require.NoError(t, err)

	cfg := marker.MustParseConfig("(square,square,square,qrcode:encoded,none)")
	art, err := gen.Generate(context.Background(), Request{Markers: cfg, Signature: "hzsig"})
	require.NoError(t, err)
	defer art.Close()

	layout := groundtruth.Split(art.Boxes)
	assert.Len(t, layout.Markers, 4)
	_, hasHeader := layout.Markers[marker.Header]
	assert.False(t, hasHeader)

	params := detect.DefaultShapeParams().WithMarkerSize(A4().MarkerPixels())
	shapes, err := detect.NewShapeDetector(params).Detect(art.Image)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(shapes), 3)
}

func TestBuiltinUnsupportedMarker(t *testing.T) {
	gen, err := NewBuiltin(A4(), WithLogger(quietLogger()))
	require.NoError(t, err)

	cfg := marker.MustParseConfig("(pdf417,qrcode,qrcode,qrcode,none)")
	_, err = gen.Generate(context.Background(), Request{Markers: cfg})
	assert.ErrorIs(t, err, ErrGeneratorFailed)
}

func TestBuiltinSaveArtifacts(t *testing.T) {
	gen, err := NewBuiltin(A4(), WithLogger(quietLogger()))
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := marker.MustParseConfig("(circle,circle,circle,qrcode:encoded,qrcode)")
	art, err := gen.Generate(context.Background(), Request{Copy: 1, Markers: cfg, Signature: "s", OutDir: dir})
	require.NoError(t, err)
	defer art.Close()

	// Generate does no file I/O
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, art.ImagePath)

	require.NoError(t, art.Save(dir, 1))
	assert.Equal(t, filepath.Join(dir, "copy-0001.png"), art.ImagePath)
	assert.Equal(t, filepath.Join(dir, "copy-0001.json"), art.BoxesPath)

	loaded := &Artifact{ImagePath: art.ImagePath, BoxesPath: art.BoxesPath}
	require.NoError(t, loaded.Load())
	defer loaded.Close()
	assert.ElementsMatch(t, art.Boxes, loaded.Boxes)
	assert.False(t, loaded.Image.Empty())

	// Artifacts already on disk stay put
	require.NoError(t, loaded.Save(t.TempDir(), 2))
	assert.Equal(t, art.ImagePath, loaded.ImagePath)
}

func TestBuiltinDataMatrixPage(t *testing.T) {
	gen, err := NewBuiltin(A4(), WithLogger(quietLogger()))
	require.NoError(t, err)

	req := Request{
		Copy:      5,
		Name:      "exam",
		Markers:   marker.MustParseConfig("(datamatrix:encoded,datamatrix:encoded,datamatrix:encoded,datamatrix:encoded,none)"),
		Signature: "hzsig",
	}
	art, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	defer art.Close()

	reader := detect.NewPayloadReader(req.Markers.DetectionFlags(), detect.WithSymbolSize(A4().MarkerPixels()))
	features, err := reader.Detect(art.Image)
	require.NoError(t, err)
	payloads := map[string]bool{}
	for _, f := range features {
		payloads[f.Payload] = true
	}
	assert.True(t, payloads["brhzsig"], "signed bottom-right symbol, got %v", payloads)
	assert.True(t, payloads["blexam,5,1"], "identity on bottom-left, got %v", payloads)
}

func TestPageSpecValidate(t *testing.T) {
	assert.NoError(t, A4().Validate())

	bad := A4()
	bad.MarkerMM = 120
	assert.Error(t, bad.Validate())

	bad = A4()
	bad.DPI = 0
	assert.Error(t, bad.Validate())
}

func TestPageSpecScalerLetter(t *testing.T) {
	letter := A4()
	letter.WidthMM, letter.HeightMM = 215.9, 279.4
	require.NoError(t, letter.Validate())

	w, h := letter.RasterSize()
	assert.Equal(t, 1275, w)
	assert.Equal(t, 1650, h)

	boxes := letter.MarkerBoxes(1)
	br := letter.Scaler().ToPixel(boxes[marker.BottomRight].Center())
	// 17.5 mm from the right and bottom edges at 150 dpi
	assert.InDelta(t, 1275-17.5*150/MMPerInch, br.X, 0.5)
	assert.InDelta(t, 1650-17.5*150/MMPerInch, br.Y, 0.5)

	// The rectified raster covers the full letter width, wider than A4
	a4w, _ := A4().RasterSize()
	assert.Equal(t, float64(w), letter.Scaler().Raster.Width)
	assert.Greater(t, w, a4w)
}

func TestRequestPayload(t *testing.T) {
	req := Request{
		Copy:      9,
		Name:      "n",
		Page:      2,
		Markers:   marker.MustParseConfig("(qrcode:encoded,qrcode,qrcode:encoded,qrcode,qrcode)"),
		Signature: "sig",
	}
	assert.Equal(t, "tln,9,2", req.Payload(marker.TopLeft))
	assert.Equal(t, "tr", req.Payload(marker.TopRight))
	assert.Equal(t, "brsig", req.Payload(marker.BottomRight))
	assert.Equal(t, "tcn,9,2", req.Payload(marker.Header))
}

func TestExternalArgs(t *testing.T) {
	e, err := NewExternal("compose --out {out} --gt={boxes} --markers {markers} -c {copy} {name}", "", quietLogger())
	require.NoError(t, err)

	req := Request{Copy: 5, Name: "exam", Markers: marker.MustParseConfig("(circle,circle,circle,qrcode,none)")}
	args := e.Args(req, "/tmp/a.png", "/tmp/a.json")
	assert.Equal(t, []string{
		"compose", "--out", "/tmp/a.png", "--gt=/tmp/a.json",
		"--markers", "(circle,circle,circle,qrcode,none)", "-c", "5", "exam",
	}, args)

	_, err = NewExternal("  ", "", nil)
	assert.Error(t, err)
}

func TestExternalGenerate(t *testing.T) {
	dir := t.TempDir()

	ok, err := NewExternal("touch {out}", dir, quietLogger())
	require.NoError(t, err)
	art, err := ok.Generate(context.Background(), Request{Copy: 2})
	require.NoError(t, err)
	_, statErr := os.Stat(art.ImagePath)
	assert.NoError(t, statErr)
	assert.Equal(t, art.ImagePath[:len(art.ImagePath)-4]+".json", art.BoxesPath)

	failing, err := NewExternal("false", dir, quietLogger())
	require.NoError(t, err)
	_, err = failing.Generate(context.Background(), Request{Copy: 3})
	assert.ErrorIs(t, err, ErrGeneratorFailed)
}
