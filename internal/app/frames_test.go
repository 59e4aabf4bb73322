package app

import (
	"errors"
	"testing"

	"github.com/victis/victis-vision/testdata"
)

func TestFrameBuffer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	var buf FrameBuffer
	defer buf.Close()

	if _, err := buf.ReadFrame(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("ReadFrame() on empty buffer error = %v, want ErrNoFrame", err)
	}

	frame := testdata.BlankFrame(testdata.Width, testdata.Height)
	buf.Store(frame)
	frame.Close()

	got, err := buf.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	defer got.Close()

	if got.Cols() != testdata.Width || got.Rows() != testdata.Height {
		t.Errorf("frame = %dx%d, want %dx%d", got.Cols(), got.Rows(), testdata.Width, testdata.Height)
	}
	if buf.Seq() != 1 {
		t.Errorf("Seq() = %d, want 1", buf.Seq())
	}
}
