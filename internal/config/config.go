// Package config holds the immutable configuration value the core
// consumes. Loading it is an external concern — the core never re-reads
// it at runtime — but main still needs a concrete loader, built with
// viper and an optional Vault secret overlay.
package config

import "time"

// Backoff is the shape of a resilience policy shared by every transport
// and by the startup orchestrator.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffLinear      Backoff = "linear"
	BackoffConstant    Backoff = "constant"
)

// ResiliencePolicy configures a retry/backoff policy.
type ResiliencePolicy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Backoff        Backoff
	UseJitter      bool
	RequestTimeout time.Duration
}

// ZoneConfig is one configured zone.
type ZoneConfig struct {
	Index ZoneIndexConfig
	Name  string
}

// ZoneIndexConfig avoids importing internal/domain from config, keeping
// config a leaf package the rest of the core depends on.
type ZoneIndexConfig = int

// ClientConfig is one configured client.
type ClientConfig struct {
	Index ZoneIndexConfig
	Name  string
	Mac   string // empty if unconfigured
}

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	BrokerAddress string
	BrokerPort    int
	ClientID      string
	Username      string
	Password      string
	KeepAlive     time.Duration
	BaseTopic     string // default "snapdog"
}

// SnapcastConfig configures the Snapcast JSON-RPC client.
type SnapcastConfig struct {
	Address      string
	JSONRPCPort  int
	WebSocketURL string // ws://host:port/jsonrpc — takes precedence if set
}

// KNXConfig configures the KNX transport and its group-address bindings.
type KNXConfig struct {
	Gateway         string
	Port            int
	Enabled         bool
	Bindings        []KNXBindingConfig
	StatusBindings  []KNXStatusBindingConfig
}

// KNXBindingConfig configures one inbound group-address -> command mapping.
// Entity is "zone" or "client"; Index is the matching ZoneIndex/ClientIndex.
type KNXBindingConfig struct {
	GroupAddress string
	DPT          string
	Entity       string
	Index        int
	Command      string
}

// KNXStatusBindingConfig configures one outbound field -> group-address
// mapping, the counterpart used for publishing rather than decoding.
type KNXStatusBindingConfig struct {
	GroupAddress string
	DPT          string
	Entity       string
	Index        int
	Field        string
}

// Config is the complete, immutable configuration consumed by the core.
type Config struct {
	Environment string // "Testing" disables the directory-existence startup check
	MQTT        MQTTConfig
	Snapcast    SnapcastConfig
	KNX         KNXConfig
	Zones       []ZoneConfig
	Clients     []ClientConfig
	Resilience  ResiliencePolicy
	// RequiredDirectories are checked for existence/writability at startup,
	// skipped when Environment == "Testing".
	RequiredDirectories []string
}

// DefaultResiliencePolicy returns the startup orchestrator's retry defaults.
func DefaultResiliencePolicy() ResiliencePolicy {
	return ResiliencePolicy{
		MaxRetries:     5,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Backoff:        BackoffExponential,
		UseJitter:      true,
		RequestTimeout: 10 * time.Second,
	}
}
