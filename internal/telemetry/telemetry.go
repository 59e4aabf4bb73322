// Package telemetry publishes detection results to the robot's network
// table and reads live tuning back from it.
package telemetry

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/victis/victis-vision/internal/detector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Field names written for every frame.
const (
	FieldPresent        = "gear_target_present"
	FieldPartial        = "gear_target_partial"
	FieldAngle          = "gear_target_angle"
	FieldVerticalOffset = "gear_target_vertical_offset"
	FieldSkew           = "gear_target_skew"
)

// Publisher writes one field of the telemetry table.
type Publisher interface {
	Publish(ctx context.Context, field string, value any) error
}

// Update is the wire form of a single field write, as pushed to
// subscribers.
type Update struct {
	Field string    `json:"field"`
	Value any       `json:"value"`
	Time  time.Time `json:"time"`
}

// Encode marshals an update for the wire.
func Encode(u Update) ([]byte, error) {
	return json.Marshal(u)
}

// Decode is the inverse of Encode. Numbers decode as float64.
func Decode(data []byte) (Update, error) {
	var u Update
	err := json.Unmarshal(data, &u)
	return u, err
}

// PublishResult writes a detection result. A missing target only updates
// the present flag so consumers keep the last known bearing; skew is only
// written for complete targets.
func PublishResult(ctx context.Context, p Publisher, r detector.Result) error {
	if !r.Present {
		return p.Publish(ctx, FieldPresent, false)
	}

	var errs []error
	publish := func(field string, value any) {
		if err := p.Publish(ctx, field, value); err != nil {
			errs = append(errs, err)
		}
	}

	publish(FieldPresent, true)
	publish(FieldPartial, r.Partial)
	publish(FieldAngle, r.Angle)
	publish(FieldVerticalOffset, r.VerticalOffset)
	if !r.Partial && r.Skew != nil {
		publish(FieldSkew, *r.Skew)
	}
	return errors.Join(errs...)
}

// MultiPublisher fans a write out to several publishers. Every publisher is
// tried; errors are joined.
type MultiPublisher []Publisher

// Publish implements Publisher.
func (m MultiPublisher) Publish(ctx context.Context, field string, value any) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, field, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryPublisher keeps the latest value of each field in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	values map[string]any
	writes int
}

// NewMemoryPublisher returns an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{values: make(map[string]any)}
}

// Publish implements Publisher.
func (m *MemoryPublisher) Publish(_ context.Context, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[field] = value
	m.writes++
	return nil
}

// Get returns the latest value written to field.
func (m *MemoryPublisher) Get(field string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[field]
	return v, ok
}

// Snapshot returns a copy of all fields.
func (m *MemoryPublisher) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Writes returns the number of Publish calls.
func (m *MemoryPublisher) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// formatValue renders a value the way it is stored in the table hash.
func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
