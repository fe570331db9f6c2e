package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/mqtt"
	"github.com/snapdog-io/integration-core/internal/resilience"
)

// mqttSink adapts an *mqtt.Transport to the Sink interface, choosing the
// retained flag for each publish from its topic (MQTTPublisher.isRetained).
type mqttSink struct {
	transport *mqtt.Transport
	retained  func(topic string) bool
}

func (s *mqttSink) Connected() bool { return s.transport.Connected() }

func (s *mqttSink) Send(ctx context.Context, topic string, payload any) error {
	var raw []byte
	switch v := payload.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal mqtt payload for %s: %w", topic, err)
		}
		raw = b
	}
	return s.transport.Publish(ctx, topic, raw, mqtt.QoSAtLeastOnce, s.retained(topic))
}

// zoneStateView and clientStateView are the lower-camel-case JSON shapes
// published on the /state topics.
type zoneStateView struct {
	Index           int    `json:"index"`
	Name            string `json:"name"`
	Volume          int    `json:"volume"`
	Muted           bool   `json:"muted"`
	PlaybackState   string `json:"playbackState"`
	TrackRepeat     bool   `json:"trackRepeat"`
	PlaylistRepeat  bool   `json:"playlistRepeat"`
	PlaylistShuffle bool   `json:"playlistShuffle"`
	TrackIndex      int    `json:"trackIndex,omitempty"`
	TrackTitle      string `json:"trackTitle,omitempty"`
	PlaylistIndex   int    `json:"playlistIndex,omitempty"`
	PlaylistName    string `json:"playlistName,omitempty"`
}

type clientStateView struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Volume    int    `json:"volume"`
	Muted     bool   `json:"muted"`
	Connected bool   `json:"connected"`
	LatencyMs int    `json:"latencyMs"`
	Zone      int    `json:"zone,omitempty"`
}

// MQTTPublisher publishes zone/client change events and full-state
// snapshots onto the MQTT topic surface, via a SmartPublisher carrying
// the circuit-breaker/fallback-queue behaviour.
type MQTTPublisher struct {
	baseTopic string
	enabled   bool
	transport *mqtt.Transport
	smart     *SmartPublisher
	logger    *zap.Logger
}

// NewMQTTPublisher builds the publisher. Start the returned SmartPublisher
// separately via Start/Stop.
func NewMQTTPublisher(baseTopic string, enabled bool, transport *mqtt.Transport, policy resilience.Policy, logger *zap.Logger) *MQTTPublisher {
	p := &MQTTPublisher{baseTopic: baseTopic, enabled: enabled, transport: transport, logger: logger}
	sink := &mqttSink{transport: transport, retained: p.isRetained}
	p.smart = New("mqtt", sink, policy, logger)
	return p
}

func (p *MQTTPublisher) Name() string              { return "mqtt" }
func (p *MQTTPublisher) IsEnabled() bool           { return p.enabled }
func (p *MQTTPublisher) Start(ctx context.Context) { p.smart.Start(ctx) }
func (p *MQTTPublisher) Stop()                     { p.smart.Stop() }

func (p *MQTTPublisher) isRetained(topic string) bool {
	return !strings.HasSuffix(topic, "/system/error")
}

func (p *MQTTPublisher) zoneTopic(idx domain.ZoneIndex, suffix string) string {
	return fmt.Sprintf("%s/zone/%d/%s", p.baseTopic, idx, suffix)
}

func (p *MQTTPublisher) clientTopic(idx domain.ClientIndex, suffix string) string {
	return fmt.Sprintf("%s/client/%d/%s", p.baseTopic, idx, suffix)
}

// PublishZoneChanged maps a single zone field change onto its scalar
// topic(s). Track and playlist changes fan out to both their index topic
// and their name/title topic, matching the outbound topic surface.
func (p *MQTTPublisher) PublishZoneChanged(ctx context.Context, ev domain.ChangeEvent) error {
	switch ev.Field {
	case domain.FieldTrack:
		t, _ := ev.NewValue.(domain.Track)
		if err := p.smart.Publish(ctx, domain.ScopeZone, p.zoneTopic(ev.ZoneIndex, "track"), FormatScalar(t.Index)); err != nil {
			return err
		}
		return p.smart.Publish(ctx, domain.ScopeZone, p.zoneTopic(ev.ZoneIndex, "track/title"), FormatScalar(t.Title))
	case domain.FieldPlaylist:
		pl, _ := ev.NewValue.(domain.Playlist)
		if err := p.smart.Publish(ctx, domain.ScopeZone, p.zoneTopic(ev.ZoneIndex, "playlist"), FormatScalar(pl.Index)); err != nil {
			return err
		}
		return p.smart.Publish(ctx, domain.ScopeZone, p.zoneTopic(ev.ZoneIndex, "playlist/name"), FormatScalar(pl.Name))
	}
	topic, scalar, ok := zoneFieldTopic(ev)
	if !ok {
		return nil
	}
	return p.smart.Publish(ctx, domain.ScopeZone, p.zoneTopic(ev.ZoneIndex, topic), FormatScalar(scalar))
}

// PublishClientChanged maps a single client field change onto its scalar
// topic.
func (p *MQTTPublisher) PublishClientChanged(ctx context.Context, ev domain.ChangeEvent) error {
	topic, scalar, ok := clientFieldTopic(ev)
	if !ok {
		return nil
	}
	return p.smart.Publish(ctx, domain.ScopeClient, p.clientTopic(ev.ClientIndex, topic), FormatScalar(scalar))
}

func zoneFieldTopic(ev domain.ChangeEvent) (topic string, scalar any, ok bool) {
	switch ev.Field {
	case domain.FieldVolume:
		return "volume", ev.NewValue, true
	case domain.FieldMute:
		return "mute", ev.NewValue, true
	case domain.FieldPlaybackState:
		state, _ := ev.NewValue.(domain.PlaybackState)
		return "playing", state == domain.PlaybackPlaying, true
	case domain.FieldTrackRepeat:
		return "track/repeat", ev.NewValue, true
	case domain.FieldPlaylistRepeat:
		return "playlist/repeat", ev.NewValue, true
	case domain.FieldPlaylistShuffle:
		return "playlist/shuffle", ev.NewValue, true
	default:
		return "", nil, false
	}
}

func clientFieldTopic(ev domain.ChangeEvent) (topic string, scalar any, ok bool) {
	switch ev.Field {
	case domain.FieldVolume:
		return "volume", ev.NewValue, true
	case domain.FieldMute:
		return "mute", ev.NewValue, true
	case domain.FieldConnected:
		return "connected", ev.NewValue, true
	case domain.FieldLatency:
		return "latency", ev.NewValue, true
	case domain.FieldName:
		return "name", ev.NewValue, true
	case domain.FieldZoneAssignment:
		return "zone", ev.NewValue, true
	default:
		return "", nil, false
	}
}

// PublishZoneState publishes a zone's full /state snapshot.
func (p *MQTTPublisher) PublishZoneState(ctx context.Context, z domain.Zone) error {
	view := zoneStateView{
		Index:           int(z.Index),
		Name:            z.Name,
		Volume:          z.Volume,
		Muted:           z.Muted,
		PlaybackState:   string(z.PlaybackState),
		TrackRepeat:     z.TrackRepeat,
		PlaylistRepeat:  z.PlaylistRepeat,
		PlaylistShuffle: z.PlaylistShuffle,
	}
	if z.CurrentTrack != nil {
		view.TrackIndex = z.CurrentTrack.Index
		view.TrackTitle = z.CurrentTrack.Title
	}
	if z.CurrentPlaylist != nil {
		view.PlaylistIndex = z.CurrentPlaylist.Index
		view.PlaylistName = z.CurrentPlaylist.Name
	}
	return p.smart.Publish(ctx, domain.ScopeZone, p.zoneTopic(z.Index, "state"), view)
}

// PublishClientState publishes a client's full /state snapshot.
func (p *MQTTPublisher) PublishClientState(ctx context.Context, c domain.Client) error {
	view := clientStateView{
		Index:     int(c.Index),
		Name:      c.Name,
		Volume:    c.Volume,
		Muted:     c.Muted,
		Connected: c.Connected,
		LatencyMs: c.LatencyMs,
	}
	if zone, has := c.AssignedZoneIndex(); has {
		view.Zone = int(zone)
	}
	return p.smart.Publish(ctx, domain.ScopeClient, p.clientTopic(c.Index, "state"), view)
}

// PublishSystemStatus publishes the global system/status topic.
func (p *MQTTPublisher) PublishSystemStatus(ctx context.Context, status string) error {
	return p.smart.Publish(ctx, domain.ScopeGlobal, p.baseTopic+"/system/status", status)
}

