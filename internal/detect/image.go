package detect

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// Grayscale returns a single-channel 8-bit copy of m. BGR and BGRA inputs are
// converted; gray input is cloned.
func Grayscale(m gocv.Mat) (gocv.Mat, error) {
	if m.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}
	gray := gocv.NewMat()
	switch m.Channels() {
	case 1:
		m.CopyTo(&gray)
	case 3:
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(m, &gray, gocv.ColorBGRAToGray)
	default:
		gray.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %d channels", ErrInvalidImage, m.Channels())
	}
	if gray.Type() != gocv.MatTypeCV8UC1 {
		gray.ConvertTo(&gray, gocv.MatTypeCV8U)
	}
	return gray, nil
}

// ImageToGrayMat converts a Go image to a single-channel Mat using BT.601
// luminance.
func ImageToGrayMat(img image.Image) (gocv.Mat, error) {
	if g, ok := img.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)

	// Parallelize by horizontal stripes
	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := min(startY+rowsPerWorker, height)
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
					lum := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
					mat.SetUCharAt(y, x, uint8(lum))
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return mat, nil
}

// MatToGray copies a single-channel Mat into an *image.Gray.
func MatToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("%w: got type %v", ErrInvalidImage, mat.Type())
	}
	h := mat.Rows()
	w := mat.Cols()

	img := image.NewGray(image.Rect(0, 0, w, h))
	data, err := mat.DataPtrUint8()
	if err == nil && mat.IsContinuous() {
		copy(img.Pix, data)
		return img, nil
	}

	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			img.Pix[row+x] = mat.GetUCharAt(y, x)
		}
	}
	return img, nil
}

// Load reads an image file as grayscale.
func Load(path string) (gocv.Mat, error) {
	m := gocv.IMRead(path, gocv.IMReadGrayScale)
	if m.Empty() {
		return m, fmt.Errorf("failed to read image %s", path)
	}
	return m, nil
}
