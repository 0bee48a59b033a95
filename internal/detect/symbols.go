package detect

import (
	"image"

	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"gocv.io/x/gocv"
)

const (
	// minSymbolSide bounds candidates when the symbol size is unknown.
	minSymbolSide = 16
	// quietZone is the least white border kept around a cropped candidate.
	quietZone = 6
)

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

type symbolReader struct {
	flag   marker.DetectionFlags
	reader gozxing.Reader
}

// symbolReaders returns the zxing readers enabled by flags. QR symbols are
// left to OpenCV.
func symbolReaders(flags marker.DetectionFlags) []symbolReader {
	var readers []symbolReader
	if flags.Has(marker.FlagDataMatrix) {
		readers = append(readers, symbolReader{flag: marker.FlagDataMatrix, reader: datamatrix.NewDataMatrixReader()})
	}
	if flags.Has(marker.FlagLinear) {
		readers = append(readers, symbolReader{flag: marker.FlagLinear, reader: oned.NewCode128Reader()})
	}
	return readers
}

// candidate is a dark blob that may hold one symbol.
type candidate struct {
	bounds  image.Rectangle
	outline []geometry.Point2D
}

// candidates merges symbol modules into blobs and keeps the ones sized like
// a marker.
func (r *PayloadReader) candidates(img gocv.Mat) []candidate {
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(img, &mask, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	k := 9
	if r.size > 0 {
		k = max(3, int(r.size/8))
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: k, Y: k})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	lo, hi := float64(minSymbolSide), float64(min(img.Cols(), img.Rows()))/2
	if r.size > 0 {
		lo, hi = 0.5*r.size, 1.6*r.size
	}
	var out []candidate
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		rect := gocv.BoundingRect(contour)
		side := float64(max(rect.Dx(), rect.Dy()))
		if side < lo || side > hi {
			continue
		}
		box := gocv.MinAreaRect(contour)
		out = append(out, candidate{bounds: rect, outline: toPoints(box.Points)})
	}
	return out
}

// detectSymbols crops every candidate with a white margin and tries each
// reader on it. The first decoded text wins.
func (r *PayloadReader) detectSymbols(img gocv.Mat, readers []symbolReader) ([]Feature, error) {
	cands := r.candidates(img)
	if len(cands) == 0 {
		return nil, nil
	}
	gray, err := MatToGray(img)
	if err != nil {
		return nil, err
	}

	var features []Feature
	for _, c := range cands {
		pad := max(quietZone, max(c.bounds.Dx(), c.bounds.Dy())/6)
		crop := gray.SubImage(c.bounds.Inset(-pad).Intersect(gray.Bounds()))
		bmp, err := gozxing.NewBinaryBitmapFromImage(crop)
		if err != nil {
			r.logger.Debug("candidate skipped", "bounds", c.bounds, "error", err)
			continue
		}
		for _, sr := range readers {
			res, err := sr.reader.Decode(bmp, decodeHints)
			if err != nil {
				continue
			}
			r.logger.Debug("symbol decoded", "format", uint32(sr.flag), "bounds", c.bounds)
			features = append(features, Feature{
				Kind:    KindPayload,
				Payload: res.GetText(),
				ID:      NoID,
				Polygon: c.outline,
			})
			break
		}
	}
	return features, nil
}
