package decoder

import (
	"fmt"
	"strings"

	"github.com/snapdog-io/integration-core/internal/domain"
)

// topicFactory builds a domain.Command from a pattern's captures and the
// raw MQTT payload.
type topicFactory func(caps Captures, payload []byte) (domain.Command, error)

var topicRegistry = &Registry[topicFactory]{}

func init() {
	registerZoneTopics(topicRegistry)
	registerClientTopics(topicRegistry)
}

// DecodeMQTTTopic matches topic (with its base prefix already known)
// against the registry and, on a match, binds payload into a command.
// A nil command with a nil error means "no command for this topic":
// unknown commands produce no command and no error.
func DecodeMQTTTopic(baseTopic, topic string, payload []byte) (domain.Command, error) {
	segments := SplitSegments(topic)
	if len(segments) == 0 {
		return nil, nil
	}
	if !strings.EqualFold(segments[0], baseTopic) {
		return nil, nil
	}
	rest := segments[1:]
	if len(rest) > 0 && strings.EqualFold(rest[len(rest)-1], "set") {
		rest = rest[:len(rest)-1]
	}
	factory, caps, ok := topicRegistry.Lookup(rest)
	if !ok {
		return nil, nil
	}
	cmd, err := factory(caps, payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic, err)
	}
	return cmd, nil
}

func zoneIndex(caps Captures) (domain.ZoneIndex, error) {
	v, err := ParsePositiveIndex(caps["zoneIndex"])
	if err != nil {
		return 0, fmt.Errorf("zone index: %w", err)
	}
	return domain.ZoneIndex(v), nil
}

func clientIndex(caps Captures) (domain.ClientIndex, error) {
	v, err := ParsePositiveIndex(caps["clientIndex"])
	if err != nil {
		return 0, fmt.Errorf("client index: %w", err)
	}
	return domain.ClientIndex(v), nil
}

func toDomainDelta(d VolumeDelta) domain.VolumeDelta {
	return domain.VolumeDelta{
		Absolute:    d.Absolute,
		Value:       d.Value,
		Relative:    !d.Absolute,
		Negative:    d.Negative,
		DefaultStep: d.DefaultStep,
	}
}

func registerZoneTopics(r *Registry[topicFactory]) {
	r.Register("zone/{zoneIndex}/play", func(caps Captures, payload []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		cmd := domain.PlayZone{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}
		text := strings.TrimSpace(string(payload))
		switch {
		case text == "":
		case strings.HasPrefix(strings.ToLower(text), "track "):
			n, err := ParsePositiveIndex(strings.TrimSpace(text[len("track "):]))
			if err != nil {
				return nil, err
			}
			cmd.HasTrack, cmd.Track = true, n
		case strings.HasPrefix(strings.ToLower(text), "url "):
			cmd.HasURL, cmd.URL = true, strings.TrimSpace(text[len("url "):])
		default:
			return nil, fmt.Errorf("unrecognised play payload: %q", text)
		}
		return cmd, nil
	})

	r.Register("zone/{zoneIndex}/pause", func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.PauseZone{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}, nil
	})

	r.Register("zone/{zoneIndex}/stop", func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.StopZone{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}, nil
	})

	r.Register("zone/{zoneIndex}/next", func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.NextTrack{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}, nil
	})

	r.Register("zone/{zoneIndex}/previous", func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.PreviousTrack{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}, nil
	})

	r.Register("zone/{zoneIndex}/playlist_next", func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.NextPlaylist{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}, nil
	})

	r.Register("zone/{zoneIndex}/playlist_previous", func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.PreviousPlaylist{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi}, nil
	})

	r.Register("zone/{zoneIndex}/volume", func(caps Captures, payload []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		d, err := ParseVolumeDelta(string(payload))
		if err != nil {
			return nil, err
		}
		return domain.SetZoneVolume{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Delta: toDomainDelta(d)}, nil
	})

	r.Register("zone/{zoneIndex}/volume_up", func(caps Captures, payload []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		step := optionalStep(payload)
		return domain.VolumeUpZone{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Step: step}, nil
	})

	r.Register("zone/{zoneIndex}/volume_down", func(caps Captures, payload []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		step := optionalStep(payload)
		return domain.VolumeDownZone{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Step: step}, nil
	})

	registerZoneToggle(r, "mute_on", domain.MuteOn, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetZoneMute{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "mute_off", domain.MuteOff, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetZoneMute{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "mute_toggle", domain.MuteToggle, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetZoneMute{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})

	registerZoneToggle(r, "track_repeat_on", domain.MuteOn, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetTrackRepeat{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "track_repeat_off", domain.MuteOff, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetTrackRepeat{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "track_repeat_toggle", domain.MuteToggle, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetTrackRepeat{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})

	registerZoneToggle(r, "shuffle_on", domain.MuteOn, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetPlaylistShuffle{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "shuffle_off", domain.MuteOff, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetPlaylistShuffle{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "shuffle_toggle", domain.MuteToggle, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetPlaylistShuffle{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})

	registerZoneToggle(r, "repeat_on", domain.MuteOn, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetPlaylistRepeat{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "repeat_off", domain.MuteOff, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetPlaylistRepeat{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})
	registerZoneToggle(r, "repeat_toggle", domain.MuteToggle, func(zi domain.ZoneIndex, a domain.MuteAction) domain.Command {
		return domain.SetPlaylistRepeat{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Action: a}
	})

	r.Register("zone/{zoneIndex}/track", func(caps Captures, payload []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		n, err := ParsePositiveIndex(string(payload))
		if err != nil {
			return nil, err
		}
		return domain.SetTrack{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Track: n}, nil
	})

	r.Register("zone/{zoneIndex}/playlist", func(caps Captures, payload []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		n, err := ParsePositiveIndex(string(payload))
		if err != nil {
			return nil, err
		}
		return domain.SetPlaylist{CommandBase: domain.NewBase(domain.SourceMQTT), Zone: zi, Playlist: n}, nil
	})
}

func registerZoneToggle(r *Registry[topicFactory], cmdName string, action domain.MuteAction, build func(domain.ZoneIndex, domain.MuteAction) domain.Command) {
	r.Register("zone/{zoneIndex}/"+cmdName, func(caps Captures, _ []byte) (domain.Command, error) {
		zi, err := zoneIndex(caps)
		if err != nil {
			return nil, err
		}
		return build(zi, action), nil
	})
}

func optionalStep(payload []byte) int {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return 0
	}
	v, err := ParseInt(text)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func registerClientTopics(r *Registry[topicFactory]) {
	r.Register("client/{clientIndex}/volume", func(caps Captures, payload []byte) (domain.Command, error) {
		ci, err := clientIndex(caps)
		if err != nil {
			return nil, err
		}
		v, err := ParseInt(string(payload))
		if err != nil {
			return nil, err
		}
		if !domain.InVolumeRange(v) {
			return nil, fmt.Errorf("client volume out of range [0,100]: %d", v)
		}
		return domain.SetClientVolume{CommandBase: domain.NewBase(domain.SourceMQTT), Client: ci, Volume: v}, nil
	})

	registerClientToggle(r, "mute_on", domain.MuteOn)
	registerClientToggle(r, "mute_off", domain.MuteOff)
	registerClientToggle(r, "mute_toggle", domain.MuteToggle)

	r.Register("client/{clientIndex}/zone", func(caps Captures, payload []byte) (domain.Command, error) {
		ci, err := clientIndex(caps)
		if err != nil {
			return nil, err
		}
		n, err := ParsePositiveIndex(string(payload))
		if err != nil {
			return nil, err
		}
		return domain.AssignClientZone{CommandBase: domain.NewBase(domain.SourceMQTT), Client: ci, HasZone: true, Zone: domain.ZoneIndex(n)}, nil
	})

	r.Register("client/{clientIndex}/latency", func(caps Captures, payload []byte) (domain.Command, error) {
		ci, err := clientIndex(caps)
		if err != nil {
			return nil, err
		}
		ms, err := ParseInt(string(payload))
		if err != nil {
			return nil, err
		}
		if ms < 0 {
			return nil, fmt.Errorf("latency must be >= 0: %d", ms)
		}
		return domain.SetClientLatency{CommandBase: domain.NewBase(domain.SourceMQTT), Client: ci, LatencyMs: ms}, nil
	})
}

func registerClientToggle(r *Registry[topicFactory], cmdName string, action domain.MuteAction) {
	r.Register("client/{clientIndex}/"+cmdName, func(caps Captures, _ []byte) (domain.Command, error) {
		ci, err := clientIndex(caps)
		if err != nil {
			return nil, err
		}
		return domain.SetClientMute{CommandBase: domain.NewBase(domain.SourceMQTT), Client: ci, Action: action}, nil
	})
}
