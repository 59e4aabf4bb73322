// Package config loads service settings from the environment and detector
// tuning from JSON files.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the service configuration. Every field has an environment
// variable and a default.
type Config struct {
	HTTPAddr string `validate:"required"`

	CameraID int `validate:"gte=0"`
	Width    int `validate:"gt=0"`
	Height   int `validate:"gt=0"`
	FPS      int `validate:"gt=0,lte=120"`

	DBPath string `validate:"required"`

	// RedisAddr is optional; telemetry goes to websocket clients only when
	// it is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	Table         string `validate:"required"`

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string

	// TuningFile is an optional JSON file of detector overrides.
	TuningFile string
}

// Default returns the settings used when no environment is set.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		CameraID: 0,
		Width:    320,
		Height:   240,
		FPS:      30,
		DBPath:   "victis-vision.db",
		Table:    "/camera",
		LogLevel: "info",
	}
}

// Load reads envFiles (missing files are ignored, like an absent .env) and
// then overlays environment variables on Default.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	var err error

	str(getenv, "VISION_HTTP_ADDR", &cfg.HTTPAddr)
	str(getenv, "VISION_DB_PATH", &cfg.DBPath)
	str(getenv, "VISION_REDIS_ADDR", &cfg.RedisAddr)
	str(getenv, "VISION_REDIS_PASSWORD", &cfg.RedisPassword)
	str(getenv, "VISION_TABLE", &cfg.Table)
	str(getenv, "VISION_LOG_LEVEL", &cfg.LogLevel)
	str(getenv, "VISION_LOG_FILE", &cfg.LogFile)
	str(getenv, "VISION_TUNING_FILE", &cfg.TuningFile)

	ints := []struct {
		key string
		dst *int
	}{
		{"VISION_CAMERA_ID", &cfg.CameraID},
		{"VISION_WIDTH", &cfg.Width},
		{"VISION_HEIGHT", &cfg.Height},
		{"VISION_FPS", &cfg.FPS},
		{"VISION_REDIS_DB", &cfg.RedisDB},
	}
	for _, i := range ints {
		if err = integer(getenv, i.key, i.dst); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func str(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func integer(getenv func(string) string, key string, dst *int) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
