package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
platform:
  kind: memory
  entities:
    - id: light.desk
      state: "off"
      attributes:
        min_color_temp_kelvin: 2000
        max_color_temp_kelvin: 6500
hue:
  bridge: 192.168.1.2
  token: ${HUE_TOKEN:none}
mqtt:
  broker: tcp://localhost:1883
rooms:
  - name: office
    lights:
      - id: light.office_virtual
        targets:
          - id: light.desk
          - id: ceiling
            driver: hue
            hue_light: 3
          - id: strip
            driver: mqtt
            topic: zigbee2mqtt/strip
            capabilities:
              brightness: true
              rgb: true
inputs:
  buttons:
    - resource: "*"
      event: short_release
      action: toggle
      args:
        light: light.office_virtual
  rotaries:
    - resource: dial-1
      action: brightness_delta
      step: 8
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, PlatformMemory, cfg.Platform.Kind)
	require.Len(t, cfg.Platform.Entities, 1)
	assert.Equal(t, 2000, cfg.Platform.Entities[0].Attributes["min_color_temp_kelvin"])
	assert.Equal(t, "none", cfg.Hue.Token)

	require.Len(t, cfg.Rooms, 1)
	light := cfg.Rooms[0].Lights[0]
	assert.Equal(t, 3000, light.DefaultTempKelvin)
	require.Len(t, light.Targets, 3)
	assert.Equal(t, DriverEntity, light.Targets[0].Driver)
	assert.Equal(t, "light.desk", light.Targets[0].Entity)
	assert.Equal(t, 3, light.Targets[1].HueLight)
	assert.Nil(t, light.Targets[1].Capabilities)
	assert.True(t, light.Targets[2].Capabilities.RGB)

	require.Len(t, cfg.Inputs.Rotaries, 1)
	assert.Equal(t, 8.0, cfg.Inputs.Rotaries[0].Step)
	assert.Equal(t, 50*time.Millisecond, cfg.Inputs.Rotaries[0].Debounce.Duration())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.GetLevel())
	assert.Equal(t, PlatformMemory, cfg.Platform.Kind)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 4, cfg.EventBus.Workers)
	assert.Equal(t, 5*time.Second, cfg.GetShutdownTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention())
	assert.Equal(t, time.Second, cfg.Hue.Retry.MinRetryBackoff.Duration())
	assert.False(t, cfg.Hue.EventStreamEnabled())
}

func TestParse_EventStreamToggle(t *testing.T) {
	cfg, err := Parse([]byte("hue:\n  bridge: 10.0.0.2\n  event_stream: false\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Hue.Enabled())
	assert.False(t, cfg.Hue.EventStreamEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown platform", "platform:\n  kind: zwave\n", "platform.kind"},
		{"ha without url", "platform:\n  kind: homeassistant\n  homeassistant:\n    token: x\n", "homeassistant.url"},
		{"duplicate light", "rooms:\n  - name: a\n    lights:\n      - id: l\n      - id: l\n", "more than once"},
		{"hue without bridge", "rooms:\n  - name: a\n    lights:\n      - id: l\n        targets:\n          - id: t\n            driver: hue\n            hue_light: 1\n", "hue.bridge"},
		{"mqtt without topic", "mqtt:\n  broker: tcp://x:1883\nrooms:\n  - name: a\n    lights:\n      - id: l\n        targets:\n          - id: t\n            driver: mqtt\n", "needs topic"},
		{"unknown driver", "rooms:\n  - name: a\n    lights:\n      - id: l\n        targets:\n          - id: t\n            driver: dmx\n", "unknown driver"},
		{"button without action", "inputs:\n  buttons:\n    - resource: x\n", "action is required"},
		{"short pin", "homekit:\n  enabled: true\n  pin: \"123\"\n", "homekit.pin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration_Invalid(t *testing.T) {
	_, err := Parse([]byte("shutdown_timeout: soon\n"))
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("VLIGHTD_TEST_HOST", "bridge.local")

	assert.Equal(t, "bridge.local", expandEnvVars("${VLIGHTD_TEST_HOST}"))
	assert.Equal(t, "bridge.local", expandEnvVars("${VLIGHTD_TEST_HOST:other}"))
	assert.Equal(t, "fallback", expandEnvVars("${VLIGHTD_TEST_UNSET:fallback}"))
	assert.Equal(t, "", expandEnvVars("${VLIGHTD_TEST_UNSET}"))
}

func TestLoad_DotEnvAndScriptPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VLIGHTD_TEST_DOTENV=from-dotenv\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("script: main.lua\nhue:\n  token: ${VLIGHTD_TEST_DOTENV}\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VLIGHTD_TEST_DOTENV") })

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Hue.Token)
	assert.Equal(t, filepath.Join(dir, "main.lua"), cfg.Script)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
