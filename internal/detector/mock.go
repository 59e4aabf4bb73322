package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	result  Result
	err     error
	calls   int
	lastCfg Config
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets the result that will be returned by Detect.
func (m *MockDetector) SetResult(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured result or error.
func (m *MockDetector) Detect(frame *gocv.Mat, cfg Config) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastCfg = cfg
	if m.err != nil {
		return NotFound(), m.err
	}
	return m.result, nil
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastConfig returns the config passed to the most recent Detect call.
func (m *MockDetector) LastConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCfg
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// LockedResult returns a preset Result for a complete two-strip target
// slightly left of centre, with the left strip nearer the camera.
func LockedResult() Result {
	skew := 0.25
	return Result{
		Present:        true,
		Partial:        false,
		Angle:          -4.5,
		VerticalOffset: 1.2,
		Skew:           &skew,
	}
}

// PartialResult returns a preset Result for a single visible strip.
func PartialResult() Result {
	return Result{
		Present:        true,
		Partial:        true,
		Angle:          12.0,
		VerticalOffset: -2.0,
	}
}
