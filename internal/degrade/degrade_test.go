package degrade

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/hekzam/markers-eval-25-sub000/pkg/geometry"
)

// createTestPage returns a white page with a few dark marks.
func createTestPage(t *testing.T) gocv.Mat {
	t.Helper()
	page := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 300, 400, gocv.MatTypeCV8UC1)
	black := color.RGBA{A: 255}
	gocv.Circle(&page, image.Point{X: 100, Y: 80}, 6, black, -1)
	gocv.Rectangle(&page, image.Rect(250, 180, 290, 220), black, -1)
	return page
}

func TestApplyDeterministic(t *testing.T) {
	page := createTestPage(t)
	defer page.Close()

	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			p, err := Preset(name)
			require.NoError(t, err)

			a, ta, traceA, err := ApplyTraced(page, rand.New(rand.NewSource(42)), p)
			require.NoError(t, err)
			defer a.Close()
			b, tb, traceB, err := ApplyTraced(page, rand.New(rand.NewSource(42)), p)
			require.NoError(t, err)
			defer b.Close()

			assert.Equal(t, ta, tb)
			assert.Equal(t, traceA, traceB)
			assert.Equal(t, a.ToBytes(), b.ToBytes())
		})
	}
}

func TestApplySeedsDiffer(t *testing.T) {
	page := createTestPage(t)
	defer page.Close()

	a, ta, err := Apply(page, rand.New(rand.NewSource(1)), Default())
	require.NoError(t, err)
	defer a.Close()
	b, tb, err := Apply(page, rand.New(rand.NewSource(2)), Default())
	require.NoError(t, err)
	defer b.Close()
	assert.NotEqual(t, ta, tb)
}

func TestDrawDefect(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	counts := map[Defect]int{}
	for i := 0; i < 4000; i++ {
		counts[drawDefect(rng, 0.5)]++
	}
	assert.InDelta(t, 2000, counts[DefectNone], 150)
	for _, d := range defects {
		assert.InDelta(t, 500, counts[d], 100, "defect %s", d)
	}

	for i := 0; i < 100; i++ {
		assert.Equal(t, DefectNone, drawDefect(rng, 0))
		assert.NotEqual(t, DefectNone, drawDefect(rng, 1))
	}
}

func TestApplyGroundTruthTracksMarks(t *testing.T) {
	page := createTestPage(t)
	defer page.Close()

	p := Params{Padding: 20, MaxRotation: 15, MaxTranslation: 20}
	for seed := int64(0); seed < 5; seed++ {
		out, truth, err := Apply(page, rand.New(rand.NewSource(seed)), p)
		require.NoError(t, err)

		assert.Equal(t, 340, out.Rows())
		assert.Equal(t, 440, out.Cols())
		for _, mark := range []geometry.Point2D{{X: 100, Y: 80}, {X: 270, Y: 200}} {
			q := truth.Apply(mark)
			v := out.GetUCharAt(int(math.Round(q.Y)), int(math.Round(q.X)))
			assert.Less(t, v, uint8(100), "seed %d mark %v moved to %v", seed, mark, q)
		}
		out.Close()
	}
}

func TestApplyNoneIsIdentity(t *testing.T) {
	page := createTestPage(t)
	defer page.Close()

	out, truth, trace, err := ApplyTraced(page, rand.New(rand.NewSource(7)), Params{})
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, geometry.Identity(), truth)
	assert.Equal(t, page.ToBytes(), out.ToBytes())
	assert.Equal(t, DefectNone, trace.Defect)
}

func TestApplyFlip(t *testing.T) {
	page := createTestPage(t)
	defer page.Close()

	out, truth, trace, err := ApplyTraced(page, rand.New(rand.NewSource(3)), Params{FlipProbability: 1, FlipJitter: 2})
	require.NoError(t, err)
	defer out.Close()

	assert.True(t, trace.Flipped)
	assert.InDelta(t, 180, trace.Rotation, 2)
	assert.InDelta(t, -1, truth.A, 0.01)
	assert.InDelta(t, -1, truth.D, 0.01)
}

func TestApplyRejectsInvalidParams(t *testing.T) {
	page := createTestPage(t)
	defer page.Close()

	_, _, err := Apply(page, rand.New(rand.NewSource(1)), Params{SaltPepper: 2})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, _, err = Apply(page, rand.New(rand.NewSource(1)), Params{JPEGMinQuality: 90, JPEGMaxQuality: 10})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"default", "harsh", "light", "none"}, PresetNames())
	for _, name := range PresetNames() {
		p, err := Preset(name)
		require.NoError(t, err)
		assert.NoError(t, p.Validate(), name)
	}
	_, err := Preset("brutal")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestNoiseHelpers(t *testing.T) {
	pix := make([]uint8, 1000)
	for i := range pix {
		pix[i] = 128
	}
	saltPepper(pix, rand.New(rand.NewSource(1)), 0.1)
	changed := 0
	for _, v := range pix {
		if v != 128 {
			assert.True(t, v == 0 || v == 255)
			changed++
		}
	}
	assert.Greater(t, changed, 50)
	assert.LessOrEqual(t, changed, 100)

	flat := make([]uint8, 16)
	for i := range flat {
		flat[i] = 128
	}
	dither(flat, 4, 0.1)
	assert.Less(t, flat[0], uint8(128))
	assert.Greater(t, flat[12], uint8(128))

	assert.Equal(t, uint8(0), clamp(-5))
	assert.Equal(t, uint8(255), clamp(300))
}
