package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vlightd/internal/scale"
)

const defaultPublishTimeout = 5 * time.Second

// MQTTDriver publishes zigbee2mqtt style commands to <topic>/set.
type MQTTDriver struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTDriver creates a driver for the device at topic.
func NewMQTTDriver(client mqtt.Client, topic string, qos byte) *MQTTDriver {
	return &MQTTDriver{client: client, topic: topic, qos: qos, timeout: defaultPublishTimeout}
}

type mqttColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type mqttCommand struct {
	State      string     `json:"state"`
	Brightness *int       `json:"brightness,omitempty"`
	ColorTemp  *int       `json:"color_temp,omitempty"`
	Color      *mqttColor `json:"color,omitempty"`
}

func mqttPayload(cmd Command) mqttCommand {
	if !cmd.On {
		return mqttCommand{State: "OFF"}
	}

	out := mqttCommand{State: "ON"}
	if cmd.Brightness != nil {
		b := scale.Clamp(*cmd.Brightness, scale.MinBrightness, scale.MaxBrightness)
		out.Brightness = &b
	}
	if cmd.Kelvin != nil {
		mirek := scale.KelvinToMirek(*cmd.Kelvin)
		out.ColorTemp = &mirek
	}
	if cmd.RGB != nil {
		out.Color = &mqttColor{R: cmd.RGB[0], G: cmd.RGB[1], B: cmd.RGB[2]}
	}
	return out
}

// Apply implements Driver.
func (d *MQTTDriver) Apply(ctx context.Context, cmd Command) error {
	payload, err := json.Marshal(mqttPayload(cmd))
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt command: %w", err)
	}

	topic := d.topic + "/set"
	token := d.client.Publish(topic, d.qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.timeout):
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).RawJSON("payload", payload).Msg("MQTT command published")
	return nil
}

// ConnectMQTT connects to broker and returns the client.
func ConnectMQTT(broker, clientID, username, password string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", broker).Msg("Connected to MQTT broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		// With connect retry enabled the client keeps trying in the background.
		log.Warn().Str("broker", broker).Dur("timeout", timeout).Msg("MQTT broker not reachable yet, retrying in background")
		return client, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, err)
	}
	return client, nil
}
