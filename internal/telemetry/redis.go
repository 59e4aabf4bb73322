package telemetry

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/victis/victis-vision/internal/config"
)

// thresholdPrefix namespaces the HSV bounds in the table, e.g.
// "thresholds/hue_low".
const thresholdPrefix = "thresholds/"

// RedisTable is a network table backed by a Redis hash. Every write sets the
// field in the hash named after the table and publishes an Update on the
// table's updates channel.
type RedisTable struct {
	client *redis.Client
	table  string
	log    logrus.FieldLogger
}

// RedisOptions configures NewRedisTable.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Table    string
}

// NewRedisTable connects to Redis and checks the connection.
func NewRedisTable(ctx context.Context, opts RedisOptions, log logrus.FieldLogger) (*RedisTable, error) {
	log.WithField("addr", opts.Addr).Info("connecting to redis")

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return &RedisTable{client: client, table: opts.Table, log: log}, nil
}

// Table returns the hash key.
func (t *RedisTable) Table() string { return t.table }

// UpdatesChannel returns the pub/sub channel updates are published on.
func (t *RedisTable) UpdatesChannel() string { return t.table + "/updates" }

// Publish implements Publisher.
func (t *RedisTable) Publish(ctx context.Context, field string, value any) error {
	msg, err := Encode(Update{Field: field, Value: value, Time: time.Now()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", field, err)
	}

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, t.table, field, formatValue(value))
	pipe.Publish(ctx, t.UpdatesChannel(), msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", field, err)
	}
	return nil
}

// Set writes a tuning key without publishing an update.
func (t *RedisTable) Set(ctx context.Context, key string, value any) error {
	return t.client.HSet(ctx, t.table, key, formatValue(value)).Err()
}

// LoadTuning reads the tuning keys of the table. Keys that are absent stay
// nil in the result; values that do not parse are skipped with a warning.
func (t *RedisTable) LoadTuning(ctx context.Context) (*config.Tuning, error) {
	values, err := t.client.HGetAll(ctx, t.table).Result()
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", t.table, err)
	}
	return parseTuning(values, t.log)
}

// Close closes the Redis client.
func (t *RedisTable) Close() error {
	return t.client.Close()
}

type valueKind int

const (
	kindInt valueKind = iota
	kindFloat
	kindBool
)

// tuningKeys lists the table keys that map onto config.Tuning.
var tuningKeys = map[string]valueKind{
	"hue_low":            kindInt,
	"hue_high":           kindInt,
	"sat_low":            kindInt,
	"sat_high":           kindInt,
	"val_low":            kindInt,
	"val_high":           kindInt,
	"kernel_size":        kindInt,
	"close_iterations":   kindInt,
	"min_width":          kindInt,
	"min_height":         kindInt,
	"broken_tolerance_x": kindFloat,
	"broken_tolerance_y": kindFloat,
	"gear_spacing":       kindFloat,
	"hfov":               kindFloat,
	"vfov":               kindFloat,
	"enabled":            kindBool,
	"draw_thresh":        kindBool,
	"draw_approx":        kindBool,
	"draw_approx2":       kindBool,
	"draw_gear_patch":    kindBool,
	"draw_gear_target":   kindBool,
}

func parseTuning(values map[string]string, log logrus.FieldLogger) (*config.Tuning, error) {
	fields := make(map[string]any, len(values))
	for key, raw := range values {
		name := strings.TrimPrefix(key, thresholdPrefix)
		kind, ok := tuningKeys[name]
		if !ok {
			continue
		}

		v, err := parseValue(kind, raw)
		if err != nil {
			log.WithFields(logrus.Fields{"key": key, "value": raw}).Warn("ignoring malformed tuning value")
			continue
		}
		fields[name] = v
	}

	// Round-trip through JSON so the key names live in one place, the
	// Tuning struct tags.
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode tuning: %w", err)
	}
	tuning := &config.Tuning{}
	if err := json.Unmarshal(data, tuning); err != nil {
		return nil, fmt.Errorf("decode tuning: %w", err)
	}
	return tuning, nil
}

func parseValue(kind valueKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindBool:
		return strconv.ParseBool(raw)
	case kindInt:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return int(math.Round(f)), nil
	default:
		return strconv.ParseFloat(raw, 64)
	}
}
