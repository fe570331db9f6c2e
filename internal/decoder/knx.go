package decoder

import (
	"fmt"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/knx"
)

// KNXBinding declares that a single group address carries one command for
// one zone or client, DPT-encoded. Unlike the MQTT registry, KNX group
// addresses carry no entity/index/command structure of their own, so
// bindings are configuration-driven: one Binding per group address,
// built at startup from the resolved KNX section of configuration.
type KNXBinding struct {
	GroupAddress string
	DPT          string
	Entity       domain.EntityKind
	ZoneIndex    domain.ZoneIndex
	ClientIndex  domain.ClientIndex
	Command      string // vocabulary name, shared with the MQTT registry
}

var knxBindings = map[string]KNXBinding{}

// RegisterKNXBindings installs the configured group-address -> command
// map and, for each entry, registers its DPT with the knx package so
// DecodeRaw/Encode can find it (internal/knx/dpt.go).
func RegisterKNXBindings(bindings []KNXBinding) {
	for _, b := range bindings {
		knxBindings[b.GroupAddress] = b
		knx.RegisterAddressDPT(b.GroupAddress, b.DPT)
	}
}

// DecodeKNXTelegram maps a decoded group telegram to a domain command
// using the configured binding for its group address. A nil command and
// nil error means no binding exists for that address: unrecognised
// input produces no command, no error.
func DecodeKNXTelegram(t knx.Telegram) (domain.Command, error) {
	b, ok := knxBindings[t.GroupAddress]
	if !ok {
		return nil, nil
	}
	base := domain.NewBase(domain.SourceKNX)

	switch b.Entity {
	case domain.EntityZone:
		return decodeZoneKNX(base, b, t.Value)
	case domain.EntityClient:
		return decodeClientKNX(base, b, t.Value)
	default:
		return nil, fmt.Errorf("knx binding %s: unknown entity kind", b.GroupAddress)
	}
}

func decodeZoneKNX(base domain.CommandBase, b KNXBinding, v knx.Value) (domain.Command, error) {
	zi := b.ZoneIndex
	switch b.Command {
	case "play":
		return domain.PlayZone{CommandBase: base, Zone: zi}, nil
	case "pause":
		return domain.PauseZone{CommandBase: base, Zone: zi}, nil
	case "stop":
		return domain.StopZone{CommandBase: base, Zone: zi}, nil
	case "next":
		return domain.NextTrack{CommandBase: base, Zone: zi}, nil
	case "previous":
		return domain.PreviousTrack{CommandBase: base, Zone: zi}, nil
	case "playlist_next":
		return domain.NextPlaylist{CommandBase: base, Zone: zi}, nil
	case "playlist_previous":
		return domain.PreviousPlaylist{CommandBase: base, Zone: zi}, nil
	case "volume":
		return domain.SetZoneVolume{CommandBase: base, Zone: zi, Delta: domain.VolumeDelta{Absolute: true, Value: int(v.Int)}}, nil
	case "volume_up":
		return domain.VolumeUpZone{CommandBase: base, Zone: zi}, nil
	case "volume_down":
		return domain.VolumeDownZone{CommandBase: base, Zone: zi}, nil
	case "mute_on":
		return domain.SetZoneMute{CommandBase: base, Zone: zi, Action: domain.MuteOn}, nil
	case "mute_off":
		return domain.SetZoneMute{CommandBase: base, Zone: zi, Action: domain.MuteOff}, nil
	case "mute_toggle":
		return domain.SetZoneMute{CommandBase: base, Zone: zi, Action: domain.MuteToggle}, nil
	case "track_repeat_on":
		return domain.SetTrackRepeat{CommandBase: base, Zone: zi, Action: domain.MuteOn}, nil
	case "track_repeat_off":
		return domain.SetTrackRepeat{CommandBase: base, Zone: zi, Action: domain.MuteOff}, nil
	case "track_repeat_toggle":
		return domain.SetTrackRepeat{CommandBase: base, Zone: zi, Action: domain.MuteToggle}, nil
	case "shuffle_on":
		return domain.SetPlaylistShuffle{CommandBase: base, Zone: zi, Action: domain.MuteOn}, nil
	case "shuffle_off":
		return domain.SetPlaylistShuffle{CommandBase: base, Zone: zi, Action: domain.MuteOff}, nil
	case "shuffle_toggle":
		return domain.SetPlaylistShuffle{CommandBase: base, Zone: zi, Action: domain.MuteToggle}, nil
	case "repeat_on":
		return domain.SetPlaylistRepeat{CommandBase: base, Zone: zi, Action: domain.MuteOn}, nil
	case "repeat_off":
		return domain.SetPlaylistRepeat{CommandBase: base, Zone: zi, Action: domain.MuteOff}, nil
	case "repeat_toggle":
		return domain.SetPlaylistRepeat{CommandBase: base, Zone: zi, Action: domain.MuteToggle}, nil
	case "track":
		return domain.SetTrack{CommandBase: base, Zone: zi, Track: int(v.Int)}, nil
	case "playlist":
		return domain.SetPlaylist{CommandBase: base, Zone: zi, Playlist: int(v.Int)}, nil
	default:
		return nil, fmt.Errorf("unknown zone knx command %q", b.Command)
	}
}

// KNXStatusBinding declares that a zone/client field's value is published
// to a group address, DPT-encoded — the outbound counterpart to
// KNXBinding. Kept as a separate table since a status address is
// typically distinct from the command address that changes it.
type KNXStatusBinding struct {
	GroupAddress string
	DPT          string
	Entity       domain.EntityKind
	ZoneIndex    domain.ZoneIndex
	ClientIndex  domain.ClientIndex
	Field        string // one of the domain.Field* constants
}

type statusKey struct {
	entity domain.EntityKind
	zone   domain.ZoneIndex
	client domain.ClientIndex
	field  string
}

var knxStatusBindings = map[statusKey]KNXStatusBinding{}

// RegisterKNXStatusBindings installs the configured field -> group-address
// map used for outbound KNX publishing, registering each DPT the same way
// RegisterKNXBindings does for inbound commands.
func RegisterKNXStatusBindings(bindings []KNXStatusBinding) {
	for _, b := range bindings {
		knxStatusBindings[statusKey{entity: b.Entity, zone: b.ZoneIndex, client: b.ClientIndex, field: b.Field}] = b
		knx.RegisterAddressDPT(b.GroupAddress, b.DPT)
	}
}

// LookupZoneStatusBinding finds the group address/DPT for a zone field,
// if one is configured.
func LookupZoneStatusBinding(zone domain.ZoneIndex, field string) (KNXStatusBinding, bool) {
	b, ok := knxStatusBindings[statusKey{entity: domain.EntityZone, zone: zone, field: field}]
	return b, ok
}

// LookupClientStatusBinding finds the group address/DPT for a client
// field, if one is configured.
func LookupClientStatusBinding(client domain.ClientIndex, field string) (KNXStatusBinding, bool) {
	b, ok := knxStatusBindings[statusKey{entity: domain.EntityClient, client: client, field: field}]
	return b, ok
}

func decodeClientKNX(base domain.CommandBase, b KNXBinding, v knx.Value) (domain.Command, error) {
	ci := b.ClientIndex
	switch b.Command {
	case "volume":
		if !domain.InVolumeRange(int(v.Int)) {
			return nil, fmt.Errorf("client volume out of range [0,100]: %d", v.Int)
		}
		return domain.SetClientVolume{CommandBase: base, Client: ci, Volume: int(v.Int)}, nil
	case "mute_on":
		return domain.SetClientMute{CommandBase: base, Client: ci, Action: domain.MuteOn}, nil
	case "mute_off":
		return domain.SetClientMute{CommandBase: base, Client: ci, Action: domain.MuteOff}, nil
	case "mute_toggle":
		return domain.SetClientMute{CommandBase: base, Client: ci, Action: domain.MuteToggle}, nil
	case "zone":
		return domain.AssignClientZone{CommandBase: base, Client: ci, HasZone: true, Zone: domain.ZoneIndex(v.Int)}, nil
	case "latency":
		if v.Int < 0 {
			return nil, fmt.Errorf("latency must be >= 0: %d", v.Int)
		}
		return domain.SetClientLatency{CommandBase: base, Client: ci, LatencyMs: int(v.Int)}, nil
	default:
		return nil, fmt.Errorf("unknown client knx command %q", b.Command)
	}
}
