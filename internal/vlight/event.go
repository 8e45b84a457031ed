package vlight

import (
	"context"
	"errors"
	"time"

	"github.com/dokzlo13/vlightd/internal/platform"
)

// EventKind names what a virtual light did in response to a state change.
type EventKind string

const (
	EventOn                  EventKind = "on"
	EventOff                 EventKind = "off"
	EventOnWithoutBrightness EventKind = "on_without_brightness"
)

// TargetOutcome records how one physical light was driven.
type TargetOutcome struct {
	LightID string `json:"light_id"`
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
}

// Event describes one handled state change.
type Event struct {
	LightID    string          `json:"light_id"`
	Room       string          `json:"room,omitempty"`
	Kind       EventKind       `json:"kind"`
	Brightness *int            `json:"brightness,omitempty"`
	TempKelvin *int            `json:"temp_kelvin,omitempty"`
	RGB        *platform.RGB   `json:"rgb,omitempty"`
	Targets    []TargetOutcome `json:"targets,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Recorder receives handled events, e.g. for auditing or metrics.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// MultiRecorder fans an event out to several recorders.
type MultiRecorder []Recorder

// Record implements Recorder.
func (m MultiRecorder) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
