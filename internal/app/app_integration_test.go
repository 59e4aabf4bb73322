package app

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/victis/victis-vision/internal/capture"
	"github.com/victis/victis-vision/internal/detector"
	"github.com/victis/victis-vision/internal/telemetry"
	"github.com/victis/victis-vision/testdata"
)

func closeAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

func TestApp_ProcessFrame_RealPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	mem := telemetry.NewMemoryPublisher()
	a, err := New(Config{
		Camera:    capture.NewMockCamera(nil, false),
		Publisher: mem,
		Enabled:   true,
		Draw:      detector.DrawOptions{GearTarget: true},
	})
	require.NoError(t, err)
	defer a.Stop()

	frame := testdata.TargetFrame(testdata.Width, testdata.Height, testdata.GearTarget(160, 120, 10, 30, 60, 40)...)
	defer frame.Close()

	res, err := a.ProcessFrame(context.Background(), &frame)
	require.NoError(t, err)

	require.True(t, res.Present)
	assert.False(t, res.Partial)
	require.NotNil(t, res.Skew)
	assert.Greater(t, *res.Skew, 0.0)
	assert.Equal(t, *res.Skew, mem.Snapshot()[telemetry.FieldSkew])

	out, err := a.Processed().ReadFrame()
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, testdata.Width, out.Cols())
	assert.Equal(t, testdata.Height, out.Rows())
	assert.False(t, out.Empty())
}

func TestApp_RunLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := testdata.TargetFrame(testdata.Width, testdata.Height, image.Rect(150, 90, 165, 150))
	defer frame.Close()
	frames := testdata.Sequence(frame, 3)
	defer closeAll(frames)

	cam := capture.NewMockCamera(frames, true)
	mem := telemetry.NewMemoryPublisher()
	a, err := New(Config{Camera: cam, Publisher: mem, Enabled: true})
	require.NoError(t, err)

	results := make(chan detector.Result, 16)
	a.OnResult(func(r detector.Result) {
		select {
		case results <- r:
		default:
		}
	})

	require.NoError(t, a.Start())
	require.NoError(t, a.Start(), "second Start is a no-op")
	assert.True(t, a.Status().Running)

	select {
	case r := <-results:
		assert.True(t, r.Present)
		assert.True(t, r.Partial)
	case <-time.After(3 * time.Second):
		t.Fatal("no result from the pipeline loop")
	}

	a.Stop()
	assert.False(t, a.Status().Running)
	assert.False(t, cam.IsOpen())
	assert.Greater(t, a.Raw().Seq(), uint64(0))
	assert.Equal(t, true, mem.Snapshot()[telemetry.FieldPartial])
}

func TestApp_StreamOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frame := testdata.TargetFrame(testdata.Width, testdata.Height, image.Rect(150, 90, 165, 150))
	defer frame.Close()
	frames := testdata.Sequence(frame, 1)
	defer closeAll(frames)

	mock := detector.NewMockDetector()
	a, err := New(Config{
		Camera:   capture.NewMockCamera(frames, true),
		Detector: mock,
		Mode:     ModeStreamOnly,
		Enabled:  true,
	})
	require.NoError(t, err)

	require.NoError(t, a.Start())
	require.Eventually(t, func() bool { return a.Raw().Seq() >= 3 }, 3*time.Second, 10*time.Millisecond)
	a.Stop()

	assert.Equal(t, 0, mock.Calls())
	_, err = a.Processed().ReadFrame()
	assert.ErrorIs(t, err, ErrNoFrame)
}
