package detect

import (
	"io"
	"log/slog"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"gocv.io/x/gocv"
)

// supportedFlags lists the symbol formats with a reader: QR through OpenCV,
// Data Matrix and Code 128 through zxing.
const supportedFlags = marker.FlagQRCode | marker.FlagDataMatrix | marker.FlagLinear

// PayloadReader decodes barcode symbols and returns their text together with
// the symbol outline.
type PayloadReader struct {
	flags  marker.DetectionFlags
	size   float64 // expected symbol side in pixels, 0 when unknown
	logger *slog.Logger
}

// ReaderOption configures a PayloadReader.
type ReaderOption func(*PayloadReader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *PayloadReader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSymbolSize bounds the candidate regions searched by the zxing
// readers to symbols of about sidePx pixels.
func WithSymbolSize(sidePx float64) ReaderOption {
	return func(r *PayloadReader) {
		r.size = sidePx
	}
}

// NewPayloadReader returns a reader restricted to the given formats. FlagNone
// reads every supported format.
func NewPayloadReader(flags marker.DetectionFlags, opts ...ReaderOption) *PayloadReader {
	r := &PayloadReader{flags: flags, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	if r.flags == marker.FlagNone {
		r.flags = supportedFlags
	}
	if r.flags&^supportedFlags != 0 {
		r.logger.Warn("payload formats without a reader are ignored",
			"requested", uint32(r.flags), "supported", uint32(supportedFlags))
	}
	return r
}

// Kind implements Detector.
func (r *PayloadReader) Kind() Kind { return KindPayload }

// Detect implements Detector.
func (r *PayloadReader) Detect(img gocv.Mat) ([]Feature, error) {
	ok, err := checkInput(img)
	if !ok {
		return nil, err
	}

	var features []Feature
	if r.flags.Has(marker.FlagQRCode) {
		features = append(features, r.detectQR(img)...)
	}
	if readers := symbolReaders(r.flags); len(readers) > 0 {
		symbols, err := r.detectSymbols(img, readers)
		if err != nil {
			return nil, err
		}
		features = append(features, symbols...)
	}
	r.logger.Debug("payload symbols", "count", len(features), "flags", uint32(r.flags))
	return features, nil
}

func (r *PayloadReader) detectQR(img gocv.Mat) []Feature {
	qr := gocv.NewQRCodeDetector()
	defer qr.Close()

	points := gocv.NewMat()
	defer points.Close()

	var decoded []string
	var straight []gocv.Mat
	found := qr.DetectAndDecodeMulti(img, &decoded, &points, &straight)
	for _, m := range straight {
		m.Close()
	}
	if !found {
		return nil
	}

	vertices := matPoints(points)
	var features []Feature
	for i, text := range decoded {
		if text == "" || len(vertices) < (i+1)*4 {
			continue
		}
		poly := make([]geometry.Point2D, 4)
		copy(poly, vertices[i*4:(i+1)*4])
		features = append(features, Feature{
			Kind:    KindPayload,
			Payload: text,
			ID:      NoID,
			Polygon: poly,
		})
	}
	return features
}

// matPoints flattens a two-channel float point Mat into points, row-major.
func matPoints(m gocv.Mat) []geometry.Point2D {
	if m.Empty() {
		return nil
	}
	f := m
	if m.Type() != gocv.MatTypeCV32FC2 {
		f = gocv.NewMat()
		defer f.Close()
		m.ConvertTo(&f, gocv.MatTypeCV32F)
	}
	pts := make([]geometry.Point2D, 0, f.Rows()*f.Cols())
	for row := 0; row < f.Rows(); row++ {
		for col := 0; col < f.Cols(); col++ {
			v := f.GetVecfAt(row, col)
			if len(v) < 2 {
				continue
			}
			pts = append(pts, geometry.Point2D{X: float64(v[0]), Y: float64(v[1])})
		}
	}
	return pts
}
