package detector

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/victis/victis-vision/testdata"
)

func detect(t *testing.T, p *Pipeline, frame gocv.Mat, cfg Config) (Result, *Trace) {
	t.Helper()
	var tr Trace
	res, err := p.DetectTrace(&frame, cfg, &tr)
	require.NoError(t, err)
	return res, &tr
}

func TestPipeline_SingleStripIsPartial(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	frame := testdata.TargetFrame(testdata.Width, testdata.Height, image.Rect(150, 90, 165, 150))
	defer frame.Close()

	res, tr := detect(t, p, frame, DefaultConfig())

	assert.True(t, res.Present)
	assert.True(t, res.Partial)
	assert.Nil(t, res.Skew)
	require.Len(t, tr.Candidates, 1)
	assert.InDelta(t, 0, res.Angle, 1.5, "strip sits on the optical axis")
}

func TestPipeline_PairedStripsHaveSkew(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	tests := []struct {
		name        string
		leftHeight  int
		rightHeight int
		wantSign    float64
	}{
		{name: "left strip nearer", leftHeight: 60, rightHeight: 40, wantSign: 1},
		{name: "right strip nearer", leftHeight: 40, rightHeight: 60, wantSign: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline()
			defer p.Close()

			strips := testdata.GearTarget(160, 120, 10, 30, tt.leftHeight, tt.rightHeight)
			frame := testdata.TargetFrame(testdata.Width, testdata.Height, strips...)
			defer frame.Close()

			res, tr := detect(t, p, frame, DefaultConfig())

			require.True(t, res.Present)
			assert.False(t, res.Partial)
			require.NotNil(t, res.Skew)
			assert.Equal(t, tt.wantSign, math.Copysign(1, *res.Skew))
			assert.InDelta(t, 0.5, math.Abs(*res.Skew), 0.1)
			assert.Len(t, tr.Targets, 2, "strips are too far apart to be patched")
		})
	}
}

func TestPipeline_BrokenStripIsPatched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	top := image.Rect(150, 60, 165, 100)
	bottom := image.Rect(150, 120, 165, 160)
	frame := testdata.TargetFrame(testdata.Width, testdata.Height, top, bottom)
	defer frame.Close()

	res, tr := detect(t, p, frame, DefaultConfig())

	require.Len(t, tr.Candidates, 2)
	require.Len(t, tr.Targets, 1)
	merged := tr.Targets[0]
	assert.True(t, merged.Merged())
	for _, c := range tr.Candidates {
		assert.True(t, c.Box.In(merged.Box), "merged box %v must enclose %v", merged.Box, c.Box)
	}

	assert.True(t, res.Present)
	assert.True(t, res.Partial)
}

func TestPipeline_OutOfRangeColor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	frame := testdata.ColoredFrame(testdata.Width, testdata.Height, testdata.Glare, image.Rect(100, 50, 200, 150))
	defer frame.Close()

	res, tr := detect(t, p, frame, DefaultConfig())

	assert.Equal(t, 0, gocv.CountNonZero(tr.Mask))
	assert.False(t, res.Present)
	assert.Empty(t, tr.Candidates)
	assert.Nil(t, tr.Selection)
}

func TestPipeline_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	frame := testdata.TargetFrame(testdata.Width, testdata.Height, testdata.GearTarget(120, 100, 12, 36, 50, 44)...)
	defer frame.Close()

	first, err := p.Detect(&frame, DefaultConfig())
	require.NoError(t, err)
	second, err := p.Detect(&frame, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.NotNil(t, first.Skew)
	assert.Equal(t, math.Float64bits(*first.Skew), math.Float64bits(*second.Skew))
	assert.Equal(t, math.Float64bits(first.Angle), math.Float64bits(second.Angle))
}

func TestPipeline_ResizesBuffers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	small := testdata.TargetFrame(160, 120, image.Rect(110, 40, 120, 80))
	defer small.Close()
	large := testdata.TargetFrame(640, 480, image.Rect(440, 160, 480, 320))
	defer large.Close()

	smallRes, err := p.Detect(&small, DefaultConfig())
	require.NoError(t, err)
	rows, cols := p.buffers.size()
	assert.Equal(t, 120, rows)
	assert.Equal(t, 160, cols)

	largeRes, err := p.Detect(&large, DefaultConfig())
	require.NoError(t, err)
	rows, cols = p.buffers.size()
	assert.Equal(t, 480, rows)
	assert.Equal(t, 640, cols)

	require.True(t, smallRes.Present)
	require.True(t, largeRes.Present)
	// Same relative position, so the bearing is the same within a pixel's worth.
	assert.InDelta(t, smallRes.Angle, largeRes.Angle, 0.5)
	assert.InDelta(t, smallRes.VerticalOffset, largeRes.VerticalOffset, 0.5)
	assert.Greater(t, largeRes.Angle, 0.0)
}

func TestPipeline_InvalidInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	t.Run("nil frame", func(t *testing.T) {
		_, err := p.Detect(nil, DefaultConfig())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("empty frame", func(t *testing.T) {
		empty := gocv.NewMat()
		defer empty.Close()
		_, err := p.Detect(&empty, DefaultConfig())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("single channel frame", func(t *testing.T) {
		gray := gocv.NewMatWithSize(testdata.Height, testdata.Width, gocv.MatTypeCV8UC1)
		defer gray.Close()
		_, err := p.Detect(&gray, DefaultConfig())
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("invalid config", func(t *testing.T) {
		frame := testdata.BlankFrame(testdata.Width, testdata.Height)
		defer frame.Close()
		cfg := DefaultConfig()
		cfg.Color.HueHigh = cfg.Color.HueLow - 1
		_, err := p.Detect(&frame, cfg)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestExtractCandidates_Filters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := testdata.TargetFrame(testdata.Width, testdata.Height,
		image.Rect(20, 20, 60, 80),   // accepted
		image.Rect(100, 20, 103, 80), // too narrow
		image.Rect(150, 20, 200, 25), // too short
	)
	defer frame.Close()

	var buf frameBuffers
	defer buf.Close()
	mask, err := threshold(&frame, DefaultConfig().Color, &buf)
	require.NoError(t, err)

	seq := ExtractCandidates(mask, 5, 10)

	var first []Candidate
	for c := range seq {
		first = append(first, c)
	}
	require.Len(t, first, 1)
	assert.InDelta(t, 40, first[0].CX, 2)
	assert.InDelta(t, 50, first[0].CY, 2)

	var second []Candidate
	for c := range seq {
		second = append(second, c)
	}
	assert.Equal(t, first, second, "sequence must be restartable")
}

func TestExtractCandidates_Boundaries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	cfg := DefaultConfig()
	require.Equal(t, 5, cfg.MinWidth)
	require.Equal(t, 10, cfg.MinHeight)

	fillPoly := func(points []image.Point) gocv.Mat {
		frame := testdata.TargetFrame(testdata.Width, testdata.Height)
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{points})
		defer pv.Close()
		gocv.FillPoly(&frame, pv, testdata.TapeGreen)
		return frame
	}

	tests := []struct {
		name  string
		frame func() gocv.Mat
		want  int
	}{
		{
			name:  "just above both minimums",
			frame: func() gocv.Mat { return testdata.TargetFrame(testdata.Width, testdata.Height, image.Rect(100, 100, 106, 111)) },
			want:  1,
		},
		{
			name:  "width equal to minimum",
			frame: func() gocv.Mat { return testdata.TargetFrame(testdata.Width, testdata.Height, image.Rect(100, 100, 105, 111)) },
			want:  0,
		},
		{
			name:  "height equal to minimum",
			frame: func() gocv.Mat { return testdata.TargetFrame(testdata.Width, testdata.Height, image.Rect(100, 100, 106, 110)) },
			want:  0,
		},
		{
			name:  "triangle has too few vertices",
			frame: func() gocv.Mat { return fillPoly([]image.Point{image.Pt(100, 40), image.Pt(160, 40), image.Pt(130, 120)}) },
			want:  0,
		},
		{
			name:  "ragged blob has too many vertices",
			frame: func() gocv.Mat { return fillPoly(starPoints(image.Pt(160, 120), 12, 80, 40)) },
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.frame()
			defer frame.Close()

			var buf frameBuffers
			defer buf.Close()
			mask, err := threshold(&frame, cfg.Color, &buf)
			require.NoError(t, err)
			require.Greater(t, gocv.CountNonZero(mask), 0, "shape must pass the color threshold")

			var got []Candidate
			for c := range ExtractCandidates(mask, cfg.MinWidth, cfg.MinHeight) {
				got = append(got, c)
			}
			assert.Len(t, got, tt.want)
		})
	}
}

// starPoints returns a star with the given number of spikes, alternating
// between the outer and inner radius.
func starPoints(center image.Point, spikes int, outer, inner float64) []image.Point {
	points := make([]image.Point, 0, spikes*2)
	for i := 0; i < spikes*2; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		theta := math.Pi * float64(i) / float64(spikes)
		points = append(points, image.Pt(
			center.X+int(math.Round(r*math.Cos(theta))),
			center.Y+int(math.Round(r*math.Sin(theta))),
		))
	}
	return points
}

func TestRenderOverlay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	p := NewPipeline()
	defer p.Close()

	frame := testdata.TargetFrame(testdata.Width, testdata.Height, testdata.GearTarget(160, 120, 10, 30, 50, 50)...)
	defer frame.Close()

	_, tr := detect(t, p, frame, DefaultConfig())

	out := gocv.NewMat()
	defer out.Close()

	RenderOverlay(&out, frame, tr, DrawOptions{GearTarget: true})

	assert.Equal(t, frame.Rows(), out.Rows())
	assert.Equal(t, frame.Cols(), out.Cols())
	assert.Equal(t, 3, out.Channels())

	// Green strips on black plus a red aiming outline: no blue anywhere.
	bgr := gocv.Split(out)
	defer func() {
		for _, m := range bgr {
			m.Close()
		}
	}()
	assert.Equal(t, 0, gocv.CountNonZero(bgr[0]))
	assert.Greater(t, gocv.CountNonZero(bgr[2]), 0)

	thresh := gocv.NewMat()
	defer thresh.Close()
	RenderOverlay(&thresh, frame, tr, DrawOptions{Thresh: true})
	assert.Equal(t, 3, thresh.Channels())
	assert.Equal(t, gocv.CountNonZero(tr.Mask), countWhite(thresh))
}

func countWhite(m gocv.Mat) int {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	return gocv.CountNonZero(gray)
}
