package capture

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ImageSource serves a single still image, resized to the session size, as
// an endless camera. It backs photo mode.
type ImageSource struct {
	path   string
	width  int
	height int

	mu      sync.Mutex
	frame   gocv.Mat
	loaded  bool
	running bool
}

// NewImageSource returns a source for the image at path. Zero width or
// height take the session defaults.
func NewImageSource(path string, width, height int) *ImageSource {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &ImageSource{path: path, width: width, height: height}
}

// Open decodes and resizes the image.
func (s *ImageSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	img := gocv.IMRead(s.path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return fmt.Errorf("read image %s: %w", s.path, ErrNoFrame)
	}
	defer img.Close()

	s.frame = gocv.NewMat()
	gocv.Resize(img, &s.frame, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear)
	s.loaded = true
	s.running = true
	return nil
}

// Close releases the decoded image.
func (s *ImageSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		s.frame.Close()
		s.loaded = false
	}
	s.running = false
	return nil
}

// ReadFrame returns a copy of the image.
func (s *ImageSource) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrCameraNotOpen
	}
	frame := s.frame.Clone()
	return &frame, nil
}

func (s *ImageSource) SetFPS(int) {}
func (s *ImageSource) FPS() int   { return 1 }

// IsOpen reports whether the image is loaded.
func (s *ImageSource) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
