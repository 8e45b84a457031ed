package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/vlightd/internal/vlight"
)

const lightEventSource = "vlight"

// LightRecorder writes virtual light events to the ledger.
type LightRecorder struct {
	ledger *Ledger
}

// NewLightRecorder creates a vlight.Recorder backed by the ledger.
func NewLightRecorder(l *Ledger) *LightRecorder {
	return &LightRecorder{ledger: l}
}

// Record implements vlight.Recorder.
func (r *LightRecorder) Record(_ context.Context, event vlight.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal light event: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to decode light event: %w", err)
	}

	return r.ledger.AppendWithSource(EventLight, "", lightEventSource, event.LightID, payload)
}
