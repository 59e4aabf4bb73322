package config

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/victis/victis-vision/internal/detector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tuning is a sparse set of detector overrides. Nil fields keep the base
// value, so partial files are safe. The keys match the telemetry table keys
// used for live tuning.
type Tuning struct {
	HueLow          *int `json:"hue_low,omitempty"`
	HueHigh         *int `json:"hue_high,omitempty"`
	SatLow          *int `json:"sat_low,omitempty"`
	SatHigh         *int `json:"sat_high,omitempty"`
	ValLow          *int `json:"val_low,omitempty"`
	ValHigh         *int `json:"val_high,omitempty"`
	KernelSize      *int `json:"kernel_size,omitempty"`
	CloseIterations *int `json:"close_iterations,omitempty"`

	// Color is a sample such as "#3cff8c"; when set it replaces the HSV
	// bounds with a window of ColorTolerance around it before the explicit
	// bounds above are applied.
	Color          *string `json:"color,omitempty"`
	ColorTolerance *int    `json:"color_tolerance,omitempty"`

	MinWidth         *int     `json:"min_width,omitempty"`
	MinHeight        *int     `json:"min_height,omitempty"`
	BrokenToleranceX *float64 `json:"broken_tolerance_x,omitempty"`
	BrokenToleranceY *float64 `json:"broken_tolerance_y,omitempty"`
	GearSpacing      *float64 `json:"gear_spacing,omitempty"`
	HFOV             *float64 `json:"hfov,omitempty"`
	VFOV             *float64 `json:"vfov,omitempty"`

	Enabled *bool `json:"enabled,omitempty"`

	DrawThresh     *bool `json:"draw_thresh,omitempty"`
	DrawApprox     *bool `json:"draw_approx,omitempty"`
	DrawApprox2    *bool `json:"draw_approx2,omitempty"`
	DrawGearPatch  *bool `json:"draw_gear_patch,omitempty"`
	DrawGearTarget *bool `json:"draw_gear_target,omitempty"`
}

const defaultColorTolerance = 20

// LoadTuning reads a JSON tuning file. The file must have a .json extension
// and be under 1MB.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat tuning file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	t := &Tuning{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse tuning file: %w", err)
	}
	return t, nil
}

// Apply returns base with the overrides applied. The result is validated.
func (t *Tuning) Apply(base detector.Config) (detector.Config, error) {
	cfg := base
	if t == nil {
		return cfg, cfg.Validate()
	}

	if t.Color != nil {
		tol := defaultColorTolerance
		setInt(&tol, t.ColorTolerance)
		color, err := detector.ColorConfigFromHex(*t.Color, tol, cfg.Color)
		if err != nil {
			return base, err
		}
		cfg.Color = color
	}

	setInt(&cfg.Color.HueLow, t.HueLow)
	setInt(&cfg.Color.HueHigh, t.HueHigh)
	setInt(&cfg.Color.SatLow, t.SatLow)
	setInt(&cfg.Color.SatHigh, t.SatHigh)
	setInt(&cfg.Color.ValLow, t.ValLow)
	setInt(&cfg.Color.ValHigh, t.ValHigh)
	setInt(&cfg.Color.KernelSize, t.KernelSize)
	setInt(&cfg.Color.CloseIterations, t.CloseIterations)
	setInt(&cfg.MinWidth, t.MinWidth)
	setInt(&cfg.MinHeight, t.MinHeight)
	setFloat(&cfg.Tolerance.X, t.BrokenToleranceX)
	setFloat(&cfg.Tolerance.Y, t.BrokenToleranceY)
	setFloat(&cfg.GearSpacing, t.GearSpacing)
	setFloat(&cfg.Camera.HFOV, t.HFOV)
	setFloat(&cfg.Camera.VFOV, t.VFOV)

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// ApplyDraw returns base with the draw_* overrides applied.
func (t *Tuning) ApplyDraw(base detector.DrawOptions) detector.DrawOptions {
	if t == nil {
		return base
	}
	opts := base
	setBool(&opts.Thresh, t.DrawThresh)
	setBool(&opts.Approx, t.DrawApprox)
	setBool(&opts.Approx2, t.DrawApprox2)
	setBool(&opts.GearPatch, t.DrawGearPatch)
	setBool(&opts.GearTarget, t.DrawGearTarget)
	return opts
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
