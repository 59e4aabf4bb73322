package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/victis/victis-vision/internal/detector"
	"github.com/victis/victis-vision/internal/telemetry"
)

// publishTimeout bounds one frame's telemetry writes.
const publishTimeout = 200 * time.Millisecond

// runPipeline is the capture loop. It paces itself to the camera rate.
//
// Per tick:
//  1. Re-read live tuning when the tuning interval has elapsed
//  2. Read a frame and store it in the raw stream
//  3. In process mode, run ProcessFrame on it
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	lastTuning := time.Time{}
	readErrors := 0

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		if a.config.Tuning != nil && time.Since(lastTuning) >= a.config.TuningInterval {
			lastTuning = time.Now()
			if err := a.RefreshTuning(ctx); err != nil {
				a.log.WithError(err).Warn("reading live tuning")
			}
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			// Log the first failure and then every few seconds' worth.
			if readErrors%(fps*5) == 0 {
				a.log.WithError(err).WithField("failures", readErrors+1).Error("reading frame")
			}
			readErrors++
			continue
		}
		readErrors = 0

		a.raw.Store(*frame)
		if a.config.Mode == ModeProcess {
			if _, err := a.ProcessFrame(ctx, frame); err != nil {
				a.log.WithError(err).Debug("frame rejected")
			}
		}
		frame.Close()
	}
}

// ProcessFrame runs detection on one frame, renders the annotated frame into
// the processed stream and publishes the result. With processing disabled the
// frame is passed through unannotated and only "not present" is published.
//
// The frame stays owned by the caller. Only invalid input is returned as an
// error; publishing failures are logged.
func (a *App) ProcessFrame(ctx context.Context, frame *gocv.Mat) (detector.Result, error) {
	a.mu.RLock()
	enabled := a.enabled
	cfg := a.effective
	draw := a.draw
	a.mu.RUnlock()

	if !enabled {
		if frame != nil && !frame.Empty() {
			a.processed.Store(*frame)
		}
		res := detector.NotFound()
		a.mu.Lock()
		a.lastResult = res
		a.mu.Unlock()
		a.publish(ctx, res)
		return res, nil
	}

	var (
		res detector.Result
		err error
		tr  detector.Trace
	)
	t, canTrace := a.detector.(tracer)
	if canTrace {
		res, err = t.DetectTrace(frame, cfg, &tr)
	} else {
		res, err = a.detector.Detect(frame, cfg)
	}
	if err != nil {
		return detector.NotFound(), err
	}

	if frame != nil && !frame.Empty() {
		out := gocv.NewMat()
		if canTrace {
			detector.RenderOverlay(&out, *frame, &tr, draw)
		} else {
			frame.CopyTo(&out)
		}
		a.processed.Store(out)
		out.Close()
	}

	a.mu.Lock()
	a.lastResult = res
	a.frames++
	listeners := append([]func(detector.Result)(nil), a.listeners...)
	a.mu.Unlock()

	a.publish(ctx, res)
	for _, fn := range listeners {
		fn(res)
	}

	if res.Present {
		a.log.WithFields(logrus.Fields{
			"angle":   res.Angle,
			"partial": res.Partial,
		}).Trace("target")
	}
	return res, nil
}

func (a *App) publish(ctx context.Context, res detector.Result) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := telemetry.PublishResult(ctx, a.publisher, res); err != nil {
		a.log.WithError(err).Warn("publishing result")
	}
}
