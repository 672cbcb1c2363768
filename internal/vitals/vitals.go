// Package vitals records health measurements alongside the medication
// tracker: blood pressure, glucose, heart rate, and weight.
package vitals

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gmsas95/dosetrack/internal/errors"
)

// MetricType is the closed set of tracked measurements.
type MetricType string

const (
	BloodPressure MetricType = "blood_pressure"
	Glucose       MetricType = "glucose"
	HeartRate     MetricType = "heart_rate"
	Weight        MetricType = "weight"
)

// Unit returns the display unit for a metric type.
func (t MetricType) Unit() string {
	switch t {
	case BloodPressure:
		return "mmHg"
	case Glucose:
		return "mg/dL"
	case HeartRate:
		return "bpm"
	case Weight:
		return "kg"
	default:
		return ""
	}
}

func (t MetricType) valid() bool {
	switch t {
	case BloodPressure, Glucose, HeartRate, Weight:
		return true
	}
	return false
}

// Reading is one recorded measurement. Blood pressure keeps its compound
// "120/80" value as a string; everything else is a plain number rendered by
// the caller.
type Reading struct {
	ID         string     `json:"id"`
	Type       MetricType `json:"type"`
	Value      string     `json:"value"`
	Unit       string     `json:"unit"`
	Note       string     `json:"note,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Store holds readings in memory, newest first.
type Store struct {
	mu       sync.RWMutex
	readings []Reading
}

func NewStore() *Store {
	return &Store{}
}

// Record validates and inserts a reading at the front.
func (s *Store) Record(metric MetricType, value, note string, at time.Time) (*Reading, error) {
	if !metric.valid() {
		return nil, errors.New(errors.ErrValidation.Code, "unknown metric type")
	}
	if value == "" {
		return nil, errors.New(errors.ErrValidation.Code, "measurement value is required")
	}

	reading := Reading{
		ID:         uuid.NewString(),
		Type:       metric,
		Value:      value,
		Unit:       metric.Unit(),
		Note:       note,
		RecordedAt: at,
	}

	s.mu.Lock()
	s.readings = append([]Reading{reading}, s.readings...)
	s.mu.Unlock()

	return &reading, nil
}

// List returns readings newest first, optionally filtered by type. A limit
// of zero means no limit.
func (s *Store) List(metric MetricType, limit int) []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Reading
	for _, r := range s.readings {
		if metric != "" && r.Type != metric {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Latest returns the most recent reading of a type, or nil.
func (s *Store) Latest(metric MetricType) *Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.readings {
		if r.Type == metric {
			out := r
			return &out
		}
	}
	return nil
}
