// Package app runs the capture, detection and publishing loop of the vision
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/victis/victis-vision/internal/capture"
	"github.com/victis/victis-vision/internal/config"
	"github.com/victis/victis-vision/internal/detector"
	"github.com/victis/victis-vision/internal/logging"
	"github.com/victis/victis-vision/internal/store"
	"github.com/victis/victis-vision/internal/telemetry"
)

// DefaultTuningInterval is how often live tuning is re-read from the table.
const DefaultTuningInterval = time.Second

// Mode selects what the loop does with each frame.
type Mode int

const (
	// ModeProcess captures, detects and publishes.
	ModeProcess Mode = iota
	// ModeStreamOnly only feeds the raw stream.
	ModeStreamOnly
)

func (m Mode) String() string {
	switch m {
	case ModeStreamOnly:
		return "stream"
	default:
		return "process"
	}
}

// TuningSource supplies live tuning overrides, e.g. a telemetry table.
type TuningSource interface {
	LoadTuning(ctx context.Context) (*config.Tuning, error)
}

// tuningWriter is implemented by sources that can also be written back to.
type tuningWriter interface {
	Set(ctx context.Context, key string, value any) error
}

// Config holds configuration options for the application.
type Config struct {
	Camera capture.Camera
	// Detector defaults to a new detector.Pipeline.
	Detector  detector.Detector
	Store     *store.Store
	Publisher telemetry.Publisher
	Tuning    TuningSource
	Logger    logrus.FieldLogger
	Mode      Mode

	// Pipeline is the base detector config before profile and live tuning.
	// The zero value means detector.DefaultConfig().
	Pipeline detector.Config
	Draw     detector.DrawOptions

	TuningInterval time.Duration
	// Enabled is the processing switch used when the store has none.
	Enabled bool
}

// tracer is implemented by detectors that can record intermediate shapes
// for the annotated stream.
type tracer interface {
	DetectTrace(frame *gocv.Mat, cfg detector.Config, tr *detector.Trace) (detector.Result, error)
}

// Status is a snapshot of the app state for the API.
type Status struct {
	SessionID       string               `json:"session_id"`
	Mode            string               `json:"mode"`
	Running         bool                 `json:"running"`
	Enabled         bool                 `json:"enabled"`
	ActiveProfile   string               `json:"active_profile,omitempty"`
	FramesProcessed uint64               `json:"frames_processed"`
	LastResult      detector.Result      `json:"last_result"`
	Config          detector.Config      `json:"config"`
	Draw            detector.DrawOptions `json:"draw"`
}

// App is the main application that orchestrates capture, detection and
// publishing.
type App struct {
	config    Config
	camera    capture.Camera
	detector  detector.Detector
	publisher telemetry.Publisher
	log       logrus.FieldLogger
	sessionID string

	raw       FrameBuffer
	processed FrameBuffer

	mu            sync.RWMutex
	enabled       bool
	base          detector.Config
	baseDraw      detector.DrawOptions
	tuning        *config.Tuning
	effective     detector.Config
	draw          detector.DrawOptions
	activeProfile string
	lastResult    detector.Result
	frames        uint64
	listeners     []func(detector.Result)
	onEnabled     []func(bool)
	stopCh        chan struct{}
	done          chan struct{}
}

// New creates a new App instance with the given configuration.
func New(cfg Config) (*App, error) {
	if cfg.Camera == nil {
		return nil, errors.New("app: camera is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Pipeline == (detector.Config{}) {
		cfg.Pipeline = detector.DefaultConfig()
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if cfg.TuningInterval <= 0 {
		cfg.TuningInterval = DefaultTuningInterval
	}

	a := &App{
		config:    cfg,
		camera:    cfg.Camera,
		detector:  cfg.Detector,
		publisher: cfg.Publisher,
		sessionID: uuid.NewString(),
		enabled:   cfg.Enabled,
		base:      cfg.Pipeline,
		baseDraw:  cfg.Draw,
		effective: cfg.Pipeline,
		draw:      cfg.Draw,
	}
	a.log = cfg.Logger.WithField("session", a.sessionID[:8])

	if a.detector == nil {
		a.detector = detector.NewPipeline()
	}
	if a.publisher == nil {
		a.publisher = telemetry.MultiPublisher{}
	}

	if cfg.Store != nil {
		enabled, err := cfg.Store.Settings().Enabled(cfg.Enabled)
		if err != nil {
			a.log.WithError(err).Warn("ignoring stored enabled setting")
		} else {
			a.enabled = enabled
		}
	}

	return a, nil
}

// SessionID identifies this process run in logs and status.
func (a *App) SessionID() string { return a.sessionID }

// Raw returns the raw camera stream buffer.
func (a *App) Raw() *FrameBuffer { return &a.raw }

// Processed returns the annotated stream buffer.
func (a *App) Processed() *FrameBuffer { return &a.processed }

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera { return a.camera }

// Detector returns the target detector.
func (a *App) Detector() detector.Detector { return a.detector }

// OnResult registers fn to be called with every detection result.
// Callbacks run on the pipeline goroutine and must not block.
func (a *App) OnResult(fn func(detector.Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// OnEnabledChange registers fn to be called whenever the processing switch
// changes, whether through SetEnabled or the tuning source.
func (a *App) OnEnabledChange(fn func(enabled bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEnabled = append(a.onEnabled, fn)
}

// setEnabled updates the switch and notifies listeners outside the lock.
func (a *App) setEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	fns := append([]func(bool)(nil), a.onEnabled...)
	a.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(enabled)
	}
}

// SetEnabled switches processing on or off. The switch is persisted and
// written back to the tuning source so the robot sees the same value.
func (a *App) SetEnabled(ctx context.Context, enabled bool) error {
	a.setEnabled(enabled)

	var errs []error
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetEnabled(enabled); err != nil {
			errs = append(errs, fmt.Errorf("persist enabled: %w", err))
		}
	}
	if w, ok := a.config.Tuning.(tuningWriter); ok {
		if err := w.Set(ctx, "enabled", enabled); err != nil {
			errs = append(errs, fmt.Errorf("write enabled to table: %w", err))
		}
	}

	a.log.WithField("enabled", enabled).Info("processing switch changed")
	return errors.Join(errs...)
}

// IsEnabled returns whether target processing is on.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// PipelineConfig returns the config used for the next frame.
func (a *App) PipelineConfig() detector.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.effective
}

// DrawOptions returns the overlay layers used for the next frame.
func (a *App) DrawOptions() detector.DrawOptions {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.draw
}

// SetPipelineConfig replaces the base config. Live tuning still applies on
// top of it.
func (a *App) SetPipelineConfig(cfg detector.Config, draw detector.DrawOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = cfg
	a.baseDraw = draw
	a.recomputeLocked()
	return nil
}

// recomputeLocked applies the live tuning to the base config. An invalid
// combination falls back to the base.
func (a *App) recomputeLocked() {
	eff, err := a.tuning.Apply(a.base)
	if err != nil {
		a.log.WithError(err).Warn("live tuning rejected, using base config")
		eff = a.base
	}
	a.effective = eff
	a.draw = a.tuning.ApplyDraw(a.baseDraw)
}

// ActivateProfile makes the stored profile id the base config and records
// it as active.
func (a *App) ActivateProfile(id string) error {
	if a.config.Store == nil {
		return errors.New("app: no store configured")
	}

	p, err := a.config.Store.Profiles().GetByID(id)
	if err != nil {
		return err
	}
	if err := a.SetPipelineConfig(p.Config, p.Draw); err != nil {
		return err
	}
	if err := a.config.Store.Settings().SetActiveProfile(p.ID); err != nil {
		return err
	}

	a.mu.Lock()
	a.activeProfile = p.ID
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{"profile": p.Name, "id": p.ID}).Info("profile activated")
	return nil
}

// LoadActiveProfile applies the profile recorded as active, if any. A
// dangling reference is cleared.
func (a *App) LoadActiveProfile() error {
	if a.config.Store == nil {
		return nil
	}

	id, err := a.config.Store.Settings().ActiveProfile()
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = a.ActivateProfile(id)
	if errors.Is(err, store.ErrNotFound) {
		a.log.WithField("id", id).Warn("active profile no longer exists")
		return a.config.Store.Settings().Delete(store.SettingActiveProfile)
	}
	return err
}

// ActiveProfile returns the ID of the active profile, if any.
func (a *App) ActiveProfile() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeProfile
}

// RefreshTuning re-reads live tuning from the tuning source.
func (a *App) RefreshTuning(ctx context.Context) error {
	if a.config.Tuning == nil {
		return nil
	}

	t, err := a.config.Tuning.LoadTuning(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.tuning = t
	a.recomputeLocked()
	a.mu.Unlock()

	if t != nil && t.Enabled != nil {
		a.setEnabled(*t.Enabled)
	}
	return nil
}

// LastResult returns the result of the most recent processed frame.
func (a *App) LastResult() detector.Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastResult
}

// Status returns a snapshot for the API.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		SessionID:       a.sessionID,
		Mode:            a.config.Mode.String(),
		Running:         a.stopCh != nil,
		Enabled:         a.enabled,
		ActiveProfile:   a.activeProfile,
		FramesProcessed: a.frames,
		LastResult:      a.lastResult,
		Config:          a.effective,
		Draw:            a.draw,
	}
}

// Start opens the camera and begins the capture loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	a.log.WithFields(logrus.Fields{"mode": a.config.Mode, "fps": a.camera.FPS()}).Info("vision pipeline started")
	return nil
}

// Stop halts the loop and releases the camera, the detector and the stream
// buffers.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Error("closing camera")
	}
	if err := a.detector.Close(); err != nil {
		a.log.WithError(err).Error("closing detector")
	}
	a.raw.Close()
	a.processed.Close()

	a.log.Info("vision pipeline stopped")
}
