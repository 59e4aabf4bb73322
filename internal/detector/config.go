package detector

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
	colorful "github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

// Field of view of the Microsoft LifeCam HD-3000 in degrees.
const (
	DefaultHFOV = 61.0
	DefaultVFOV = 45.6
)

// ColorConfig holds the HSV range threshold and the morphological close
// parameters. Hue uses the OpenCV 0-180 scale, saturation and value 0-255.
type ColorConfig struct {
	HueLow  int `json:"hue_low" validate:"gte=0,lte=180"`
	HueHigh int `json:"hue_high" validate:"gte=0,lte=180,gtefield=HueLow"`
	SatLow  int `json:"sat_low" validate:"gte=0,lte=255"`
	SatHigh int `json:"sat_high" validate:"gte=0,lte=255,gtefield=SatLow"`
	ValLow  int `json:"val_low" validate:"gte=0,lte=255"`
	ValHigh int `json:"val_high" validate:"gte=0,lte=255,gtefield=ValLow"`

	// KernelSize is the side of the rectangular structuring element.
	KernelSize int `json:"kernel_size" validate:"gte=1,lte=31"`
	// CloseIterations is the number of dilations, then erosions, applied.
	CloseIterations int `json:"close_iterations" validate:"gte=0,lte=20"`
}

func (c ColorConfig) lower() gocv.Scalar {
	return gocv.NewScalar(float64(c.HueLow), float64(c.SatLow), float64(c.ValLow), 0)
}

func (c ColorConfig) upper() gocv.Scalar {
	return gocv.NewScalar(float64(c.HueHigh), float64(c.SatHigh), float64(c.ValHigh), 0)
}

// CameraConfig describes the camera optics used for the bearing math.
type CameraConfig struct {
	HFOV float64 `json:"hfov" validate:"gt=0,lt=180"`
	VFOV float64 `json:"vfov" validate:"gt=0,lt=180"`
}

// MatchTolerance is the broken-target patching window in pixels.
type MatchTolerance struct {
	X float64 `json:"broken_tolerance_x" validate:"gte=0"`
	// Y limits the vertical centroid distance as well; 0 disables the check.
	Y float64 `json:"broken_tolerance_y" validate:"gte=0"`
}

// Config is the complete, immutable set of tunables for one Detect call.
// Live tuning builds a new Config and passes it in.
type Config struct {
	Color       ColorConfig    `json:"color"`
	MinWidth    int            `json:"min_width" validate:"gte=0"`
	MinHeight   int            `json:"min_height" validate:"gte=0"`
	Tolerance   MatchTolerance `json:"tolerance"`
	GearSpacing float64        `json:"gear_spacing" validate:"gt=0"`
	Camera      CameraConfig   `json:"camera"`
}

// DefaultConfig returns the tuning the field robot shipped with.
func DefaultConfig() Config {
	return Config{
		Color: ColorConfig{
			HueLow:          60,
			HueHigh:         100,
			SatLow:          150,
			SatHigh:         255,
			ValLow:          140,
			ValHigh:         255,
			KernelSize:      2,
			CloseIterations: 1,
		},
		MinWidth:  5,
		MinHeight: 10,
		Tolerance: MatchTolerance{
			X: 2,
		},
		GearSpacing: 2,
		Camera: CameraConfig{
			HFOV: DefaultHFOV,
			VFOV: DefaultVFOV,
		},
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks ranges and low/high ordering of every field.
func (c Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ColorConfigFromHex derives HSV bounds centred on a sample color such as
// "#3cff8c". tolerance is the half-width of the window in OpenCV units and is
// applied to all three channels. Kernel parameters are copied from base.
func ColorConfigFromHex(hex string, tolerance int, base ColorConfig) (ColorConfig, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return ColorConfig{}, fmt.Errorf("%w: parse color %q: %v", ErrInvalidInput, hex, err)
	}

	h, s, v := c.Hsv()
	hue := int(math.Round(h / 2))
	sat := int(math.Round(s * 255))
	val := int(math.Round(v * 255))

	out := base
	out.HueLow = clamp(hue-tolerance, 0, 180)
	out.HueHigh = clamp(hue+tolerance, 0, 180)
	out.SatLow = clamp(sat-tolerance, 0, 255)
	out.SatHigh = clamp(sat+tolerance, 0, 255)
	out.ValLow = clamp(val-tolerance, 0, 255)
	out.ValHigh = clamp(val+tolerance, 0, 255)
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
