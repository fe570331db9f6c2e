package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables (prefixed SNAPDOG_)
// and an optional config file, the way the rest of this codebase's
// services read theirs
// with spf13/viper. Zones and clients are read from SNAPDOG_ZONES /
// SNAPDOG_CLIENTS-shaped sub-trees when present; callers embedding this in
// a larger CLI are expected to call v.BindPFlags before Load if they want
// flag overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SNAPDOG")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetDefault("mqtt.basetopic", "snapdog")
	v.SetDefault("mqtt.keepalive", "30s")
	v.SetDefault("environment", "Production")
	v.SetDefault("resilience.maxretries", 5)
	v.SetDefault("resilience.basedelay", "1s")
	v.SetDefault("resilience.maxdelay", "30s")
	v.SetDefault("resilience.backoff", string(BackoffExponential))
	v.SetDefault("resilience.usejitter", true)
	v.SetDefault("resilience.requesttimeout", "10s")

	cfg := Config{
		Environment: v.GetString("environment"),
		MQTT: MQTTConfig{
			BrokerAddress: v.GetString("mqtt.brokeraddress"),
			BrokerPort:    v.GetInt("mqtt.brokerport"),
			ClientID:      v.GetString("mqtt.clientid"),
			Username:      v.GetString("mqtt.username"),
			Password:      v.GetString("mqtt.password"),
			KeepAlive:     v.GetDuration("mqtt.keepalive"),
			BaseTopic:     v.GetString("mqtt.basetopic"),
		},
		Snapcast: SnapcastConfig{
			Address:      v.GetString("snapcast.address"),
			JSONRPCPort:  v.GetInt("snapcast.jsonrpcport"),
			WebSocketURL: v.GetString("snapcast.websocketurl"),
		},
		KNX: KNXConfig{
			Gateway: v.GetString("knx.gateway"),
			Port:    v.GetInt("knx.port"),
			Enabled: v.GetBool("knx.enabled"),
		},
		Resilience: ResiliencePolicy{
			MaxRetries:     v.GetInt("resilience.maxretries"),
			BaseDelay:      v.GetDuration("resilience.basedelay"),
			MaxDelay:       v.GetDuration("resilience.maxdelay"),
			Backoff:        Backoff(v.GetString("resilience.backoff")),
			UseJitter:      v.GetBool("resilience.usejitter"),
			RequestTimeout: v.GetDuration("resilience.requesttimeout"),
		},
		RequiredDirectories: v.GetStringSlice("requireddirectories"),
	}

	if err := v.UnmarshalKey("zones", &cfg.Zones); err != nil {
		return Config{}, fmt.Errorf("unmarshal zones: %w", err)
	}
	if err := v.UnmarshalKey("clients", &cfg.Clients); err != nil {
		return Config{}, fmt.Errorf("unmarshal clients: %w", err)
	}
	if err := v.UnmarshalKey("knx.bindings", &cfg.KNX.Bindings); err != nil {
		return Config{}, fmt.Errorf("unmarshal knx bindings: %w", err)
	}
	if err := v.UnmarshalKey("knx.statusbindings", &cfg.KNX.StatusBindings); err != nil {
		return Config{}, fmt.Errorf("unmarshal knx status bindings: %w", err)
	}

	return cfg, nil
}

// SecretManager wraps the Vault API client, used to overlay broker/gateway
// credentials onto a Config loaded from env/file.
type SecretManager struct {
	client *api.Client
}

// NewSecretManager creates a Vault client pointed at address, authenticated
// with token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetKV2 reads a secret from a KV v2 backend and unwraps the "data" envelope.
func (s *SecretManager) GetKV2(path string) (map[string]any, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// OverlayMQTTCredentials overwrites cfg's MQTT username/password with
// the mqtt_username/mqtt_password values of an already-read secret (e.g.
// the map returned by SecretManager.GetKV2), if present. Credentials that are
// absent from the secret are left untouched so a partial overlay (e.g.
// password only) does not clobber an env-sourced username.
func OverlayMQTTCredentials(cfg Config, secrets map[string]any) Config {
	if user, ok := secrets["mqtt_username"].(string); ok {
		cfg.MQTT.Username = user
	}
	if pass, ok := secrets["mqtt_password"].(string); ok {
		cfg.MQTT.Password = pass
	}
	return cfg
}
