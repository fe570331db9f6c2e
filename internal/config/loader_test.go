package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigYAML = `
environment: Testing
mqtt:
  brokeraddress: localhost
  brokerport: 1883
  basetopic: snapdog
snapcast:
  address: localhost
  jsonrpcport: 1705
knx:
  gateway: 192.168.1.50
  port: 3671
  enabled: true
  bindings:
    - groupaddress: "1/1/1"
      dpt: "5.001"
      entity: zone
      index: 1
      command: volume
  statusbindings:
    - groupaddress: "1/1/2"
      dpt: "5.001"
      entity: zone
      index: 1
      field: volume
zones:
  - index: 1
    name: Living Room
clients:
  - index: 1
    name: Speaker
    mac: "aa:bb:cc:dd:ee:01"
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "snapdog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigYAML), 0o644))
	return path
}

func TestLoadReadsConfigFile(t *testing.T) {
	cfg, err := Load(writeSampleConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "Testing", cfg.Environment)
	assert.Equal(t, "localhost", cfg.MQTT.BrokerAddress)
	assert.Equal(t, 1883, cfg.MQTT.BrokerPort)
	assert.Equal(t, "snapdog", cfg.MQTT.BaseTopic)
	assert.True(t, cfg.KNX.Enabled)
	require.Len(t, cfg.Zones, 1)
	assert.Equal(t, "Living Room", cfg.Zones[0].Name)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", cfg.Clients[0].Mac)
}

func TestLoadUnmarshalsKNXBindings(t *testing.T) {
	cfg, err := Load(writeSampleConfig(t))
	require.NoError(t, err)

	require.Len(t, cfg.KNX.Bindings, 1)
	b := cfg.KNX.Bindings[0]
	assert.Equal(t, "1/1/1", b.GroupAddress)
	assert.Equal(t, "zone", b.Entity)
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, "volume", b.Command)

	require.Len(t, cfg.KNX.StatusBindings, 1)
	sb := cfg.KNX.StatusBindings[0]
	assert.Equal(t, "1/1/2", sb.GroupAddress)
	assert.Equal(t, "volume", sb.Field)
}

func TestLoadAppliesDefaultsWhenFieldsAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: Production\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "snapdog", cfg.MQTT.BaseTopic)
	assert.Equal(t, 5, cfg.Resilience.MaxRetries)
	assert.Equal(t, BackoffExponential, cfg.Resilience.Backoff)
	assert.True(t, cfg.Resilience.UseJitter)
}

func TestLoadMissingConfigFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestOverlayMQTTCredentialsAppliesPresentFields(t *testing.T) {
	cfg := Config{MQTT: MQTTConfig{Username: "envuser", Password: "envpass"}}

	overlaid := OverlayMQTTCredentials(cfg, map[string]any{
		"mqtt_password": "vaultpass",
	})
	assert.Equal(t, "envuser", overlaid.MQTT.Username) // untouched
	assert.Equal(t, "vaultpass", overlaid.MQTT.Password)
}

func TestOverlayMQTTCredentialsIgnoresUnknownKeys(t *testing.T) {
	cfg := Config{MQTT: MQTTConfig{Username: "envuser"}}
	overlaid := OverlayMQTTCredentials(cfg, map[string]any{"unrelated": "value"})
	assert.Equal(t, "envuser", overlaid.MQTT.Username)
}

func TestDefaultResiliencePolicy(t *testing.T) {
	p := DefaultResiliencePolicy()
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, BackoffExponential, p.Backoff)
	assert.True(t, p.UseJitter)
}
