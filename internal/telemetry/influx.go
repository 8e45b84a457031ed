// Package telemetry writes virtual light events to InfluxDB.
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/vlight"
)

// Measurement is the InfluxDB measurement light events are written to.
const Measurement = "virtual_light"

// Config configures the InfluxDB connection.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// PointWriter writes points. api.WriteAPIBlocking satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Recorder implements vlight.Recorder by writing one point per event.
type Recorder struct {
	writer  PointWriter
	timeout time.Duration
}

// NewRecorder creates a recorder writing through w.
func NewRecorder(w PointWriter, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{writer: w, timeout: timeout}
}

// Connect creates an InfluxDB client and checks the server is healthy.
func Connect(ctx context.Context, cfg Config) (influxdb2.Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Connected to InfluxDB")
	return client, nil
}

// Record implements vlight.Recorder.
func (r *Recorder) Record(ctx context.Context, event vlight.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.writer.WritePoint(ctx, Point(event)); err != nil {
		return fmt.Errorf("failed to write light event to InfluxDB: %w", err)
	}
	return nil
}

// Point converts a light event to an InfluxDB point.
func Point(event vlight.Event) *write.Point {
	tags := map[string]string{
		"light_id": event.LightID,
		"kind":     string(event.Kind),
	}
	if event.Room != "" {
		tags["room"] = event.Room
	}

	failed := 0
	for _, t := range event.Targets {
		if t.Error != "" {
			failed++
		}
	}
	fields := map[string]any{
		"targets":        len(event.Targets),
		"failed_targets": failed,
	}
	if event.Brightness != nil {
		fields["brightness"] = *event.Brightness
	}
	if event.TempKelvin != nil {
		fields["temp_kelvin"] = *event.TempKelvin
	}
	if event.RGB != nil {
		fields["red"] = event.RGB[0]
		fields["green"] = event.RGB[1]
		fields["blue"] = event.RGB[2]
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPoint(Measurement, tags, fields, ts)
}
