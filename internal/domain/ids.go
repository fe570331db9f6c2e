// Package domain holds the core's data model: the identities, entities,
// commands and change events, independent of any transport or storage
// concern.
package domain

import "strings"

// ZoneIndex is a 1-based zone identifier, fixed by configuration for the
// lifetime of a run.
type ZoneIndex int

// ClientIndex is a 1-based client identifier, fixed by configuration.
type ClientIndex int

// SnapcastClientID is the opaque client id assigned by the Snapcast server.
type SnapcastClientID string

// GroupID is a Snapcast group id, owned by the Snapcast server.
type GroupID string

// StreamID is a Snapcast stream id, owned by the Snapcast server.
type StreamID string

// MacAddress is a canonicalised (lower-case, colon-separated hex) MAC
// address — the stable bridge between a configured ClientIndex and the
// runtime SnapcastClientID.
type MacAddress string

// NormalizeMac lower-cases a MAC address for canonical comparison.
func NormalizeMac(mac string) MacAddress {
	return MacAddress(strings.ToLower(strings.TrimSpace(mac)))
}

// Source tags the origin of a Command. It is informational only: neither
// the command bus nor the integration coordinator filters on it.
type Source string

const (
	SourceMQTT     Source = "mqtt"
	SourceKNX      Source = "knx"
	SourceAPI      Source = "api"
	SourceInternal Source = "internal"
)

// Scope identifies the fallback-queue partition used by the smart
// publisher.
type Scope string

const (
	ScopeZone   Scope = "zone"
	ScopeClient Scope = "client"
	ScopeGlobal Scope = "global"
)
