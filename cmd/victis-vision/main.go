package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/victis/victis-vision/internal/app"
	"github.com/victis/victis-vision/internal/capture"
	"github.com/victis/victis-vision/internal/config"
	"github.com/victis/victis-vision/internal/detector"
	"github.com/victis/victis-vision/internal/logging"
	"github.com/victis/victis-vision/internal/server"
	"github.com/victis/victis-vision/internal/store"
	"github.com/victis/victis-vision/internal/telemetry"
	"github.com/victis/victis-vision/internal/tray"
)

type flags struct {
	streamOnly bool
	cvStream   bool
	image      bool
	photoPath  string
	out        string
	envFile    string
	tray       bool
	staticDir  string
}

func parseFlags() flags {
	var f flags
	flag.BoolVar(&f.streamOnly, "s", false, "stream the camera without processing")
	flag.BoolVar(&f.cvStream, "cv", false, "process frames and stream the annotated output (default)")
	flag.BoolVar(&f.image, "i", false, "process a single photo and exit")
	flag.StringVar(&f.photoPath, "photo-path", "", "photo to process with -i")
	flag.StringVar(&f.out, "out", "", "where -i writes the annotated photo (default <photo>-processed.jpg)")
	flag.StringVar(&f.envFile, "env", ".env", "environment file to load")
	flag.BoolVar(&f.tray, "tray", false, "show a tray menu for bench tuning")
	flag.StringVar(&f.staticDir, "web", "", "directory served as the dashboard at /")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()
	if f.streamOnly && f.cvStream {
		fmt.Fprintln(os.Stderr, "-s and -cv are mutually exclusive")
		os.Exit(2)
	}
	if f.image && f.photoPath == "" {
		fmt.Fprintln(os.Stderr, "-i requires -photo-path")
		os.Exit(2)
	}

	cfg, err := config.Load(f.envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithField("component", "main")

	base, draw, enabled, err := baseConfig(cfg)
	if err != nil {
		log.WithError(err).Fatal("loading tuning file")
	}

	if f.image {
		if err := runPhoto(f, cfg, base, draw, logger); err != nil {
			log.WithError(err).Fatal("photo mode")
		}
		return
	}

	if err := run(f, cfg, base, draw, enabled, logger); err != nil {
		log.WithError(err).Fatal("vision service stopped")
	}
}

// baseConfig applies the optional tuning file on top of the defaults.
func baseConfig(cfg config.Config) (detector.Config, detector.DrawOptions, bool, error) {
	base, draw := detector.DefaultConfig(), detector.DefaultDrawOptions()
	if cfg.TuningFile == "" {
		return base, draw, true, nil
	}

	tun, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		return base, draw, true, err
	}
	base, err = tun.Apply(base)
	if err != nil {
		return base, draw, true, err
	}
	enabled := true
	if tun.Enabled != nil {
		enabled = *tun.Enabled
	}
	return base, tun.ApplyDraw(draw), enabled, nil
}

func run(f flags, cfg config.Config, base detector.Config, draw detector.DrawOptions, enabled bool, logger *logrus.Logger) error {
	log := logger.WithField("component", "main")

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hub := server.NewHub(logger.WithField("component", "hub"))
	defer hub.Close()

	publishers := telemetry.MultiPublisher{hub}
	appCfg := app.Config{
		Camera: capture.NewCamera(capture.Options{
			DeviceID: cfg.CameraID,
			Width:    cfg.Width,
			Height:   cfg.Height,
			FPS:      cfg.FPS,
		}),
		Store:    st,
		Logger:   logger.WithField("component", "app"),
		Pipeline: base,
		Draw:     draw,
		Enabled:  enabled,
	}
	if f.streamOnly {
		appCfg.Mode = app.ModeStreamOnly
	}

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		table, err := telemetry.NewRedisTable(ctx, telemetry.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Table:    cfg.Table,
		}, logger.WithField("component", "telemetry"))
		cancel()
		if err != nil {
			return err
		}
		defer table.Close()
		publishers = append(publishers, table)
		appCfg.Tuning = table
	}
	appCfg.Publisher = publishers

	a, err := app.New(appCfg)
	if err != nil {
		return err
	}
	if err := a.LoadActiveProfile(); err != nil {
		log.WithError(err).Warn("loading active profile")
	}

	srv := server.New(server.Config{
		Store:      st,
		Controller: a,
		Raw:        a.Raw(),
		Processed:  a.Processed(),
		Hub:        hub,
		StaticDir:  f.staticDir,
		Logger:     logger.WithField("component", "server"),
	})

	if err := a.Start(); err != nil {
		return err
	}
	defer a.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(cfg.HTTPAddr) }()

	log.WithFields(logrus.Fields{
		"mode":    appCfg.Mode.String(),
		"addr":    cfg.HTTPAddr,
		"session": a.SessionID(),
	}).Info("vision service started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	if f.tray {
		runErr = runTray(a, cfg.HTTPAddr, sigCh, errCh, log)
	} else {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("shutting down")
		case runErr = <-errCh:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	return runErr
}

// runTray blocks in the tray loop, which must own the main goroutine on
// some platforms.
func runTray(a *app.App, addr string, sigCh <-chan os.Signal, errCh <-chan error, log logrus.FieldLogger) error {
	t := tray.New(a.IsEnabled())
	quit := bindTray(t, a, addr, log)

	result := make(chan error, 1)
	go func() {
		err, fromTray := waitForExit(sigCh, errCh, quit, log)
		result <- err
		if !fromTray {
			t.Quit()
		}
	}()

	t.Run()
	return <-result
}

// waitForExit blocks until a signal, a server error or a tray quit. fromTray
// reports that the tray is already shutting itself down.
func waitForExit(sigCh <-chan os.Signal, errCh <-chan error, quit <-chan struct{}, log logrus.FieldLogger) (err error, fromTray bool) {
	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		return nil, false
	case err := <-errCh:
		return err, false
	case <-quit:
		return nil, true
	}
}

// bindTray connects the tray to the app in both directions. The returned
// channel is closed when Quit is chosen from the menu.
func bindTray(t *tray.Tray, a *app.App, addr string, log logrus.FieldLogger) <-chan struct{} {
	t.OnToggle(func(enabled bool) {
		if err := a.SetEnabled(context.Background(), enabled); err != nil {
			log.WithError(err).Warn("persisting processing switch")
		}
	})
	t.OnStream(func() {
		if err := openBrowser(streamURL(addr)); err != nil {
			log.WithError(err).Warn("opening stream")
		}
	})
	a.OnResult(t.SetResult)
	a.OnEnabledChange(t.SetEnabled)

	quit := make(chan struct{})
	var once sync.Once
	t.OnQuit(func() {
		log.Info("quit from tray")
		once.Do(func() { close(quit) })
	})
	return quit
}

func streamURL(addr string) string {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}
	return "http://" + host + "/api/stream/processed"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// runPhoto processes one image at the session size and writes the annotated
// result next to it.
func runPhoto(f flags, cfg config.Config, base detector.Config, draw detector.DrawOptions, logger *logrus.Logger) error {
	src := capture.NewImageSource(f.photoPath, cfg.Width, cfg.Height)
	a, err := app.New(app.Config{
		Camera:   src,
		Logger:   logger.WithField("component", "app"),
		Pipeline: base,
		Draw:     draw,
		Enabled:  true,
	})
	if err != nil {
		return err
	}
	defer a.Stop()

	if err := src.Open(); err != nil {
		return err
	}
	frame, err := src.ReadFrame()
	if err != nil {
		return err
	}
	defer frame.Close()

	res, err := a.ProcessFrame(context.Background(), frame)
	if err != nil {
		return err
	}

	out, err := a.Processed().ReadFrame()
	if err != nil {
		return err
	}
	defer out.Close()

	outPath := f.out
	if outPath == "" {
		ext := filepath.Ext(f.photoPath)
		outPath = f.photoPath[:len(f.photoPath)-len(ext)] + "-processed.jpg"
	}
	if ok := gocv.IMWrite(outPath, *out); !ok {
		return errors.New("write " + outPath)
	}

	fields := logrus.Fields{
		"present": res.Present,
		"partial": res.Partial,
		"angle":   res.Angle,
		"output":  outPath,
	}
	if res.Skew != nil {
		fields["skew"] = *res.Skew
	}
	logger.WithFields(fields).Info("photo processed")
	return nil
}
