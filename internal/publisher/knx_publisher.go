package publisher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/decoder"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/knx"
	"github.com/snapdog-io/integration-core/internal/resilience"
)

// knxSink adapts a *knx.Transport to the Sink interface. The payload
// handed to Send is always a knx.Value; the group address is carried in
// the key.
type knxSink struct {
	transport *knx.Transport
}

func (s *knxSink) Connected() bool { return s.transport.Connected() }

func (s *knxSink) Send(ctx context.Context, groupAddress string, payload any) error {
	v, ok := payload.(knx.Value)
	if !ok {
		return fmt.Errorf("knx publish %s: payload is not a knx.Value", groupAddress)
	}
	return s.transport.SendGroupValue(ctx, groupAddress, v)
}

// KNXPublisher publishes zone/client change events as group-value writes
// for every field with a configured status binding. Fields without one
// are silently skipped — KNX exposure is opt-in per field, unlike MQTT's
// blanket topic surface.
type KNXPublisher struct {
	enabled   bool
	transport *knx.Transport
	smart     *SmartPublisher
	logger    *zap.Logger
}

// NewKNXPublisher builds the publisher. Start the returned SmartPublisher
// separately via Start/Stop.
func NewKNXPublisher(enabled bool, transport *knx.Transport, policy resilience.Policy, logger *zap.Logger) *KNXPublisher {
	p := &KNXPublisher{enabled: enabled, transport: transport, logger: logger}
	p.smart = New("knx", &knxSink{transport: transport}, policy, logger)
	return p
}

func (p *KNXPublisher) Name() string              { return "knx" }
func (p *KNXPublisher) IsEnabled() bool           { return p.enabled }
func (p *KNXPublisher) Start(ctx context.Context) { p.smart.Start(ctx) }
func (p *KNXPublisher) Stop()                     { p.smart.Stop() }

// PublishZoneChanged writes the event's new value to the zone/field's
// configured group address, if any.
func (p *KNXPublisher) PublishZoneChanged(ctx context.Context, ev domain.ChangeEvent) error {
	binding, ok := decoder.LookupZoneStatusBinding(ev.ZoneIndex, ev.Field)
	if !ok {
		return nil
	}
	v, err := valueForEvent(ev)
	if err != nil {
		p.logger.Warn("knx publish: cannot represent field as a group value",
			zap.String("field", ev.Field), zap.Error(err))
		return nil
	}
	return p.smart.Publish(ctx, domain.ScopeZone, binding.GroupAddress, v)
}

// PublishClientChanged writes the event's new value to the client/field's
// configured group address, if any.
func (p *KNXPublisher) PublishClientChanged(ctx context.Context, ev domain.ChangeEvent) error {
	binding, ok := decoder.LookupClientStatusBinding(ev.ClientIndex, ev.Field)
	if !ok {
		return nil
	}
	v, err := valueForEvent(ev)
	if err != nil {
		p.logger.Warn("knx publish: cannot represent field as a group value",
			zap.String("field", ev.Field), zap.Error(err))
		return nil
	}
	return p.smart.Publish(ctx, domain.ScopeClient, binding.GroupAddress, v)
}

// valueForEvent converts a ChangeEvent's NewValue into the typed knx.Value
// the transport expects, based on its Go type.
func valueForEvent(ev domain.ChangeEvent) (knx.Value, error) {
	switch v := ev.NewValue.(type) {
	case bool:
		return knx.Value{Kind: knx.KindBool, Bool: v}, nil
	case int:
		return knx.Value{Kind: knx.KindInt, Int: int64(v)}, nil
	case string:
		return knx.Value{Kind: knx.KindText, Text: v}, nil
	case domain.PlaybackState:
		return knx.Value{Kind: knx.KindBool, Bool: v == domain.PlaybackPlaying}, nil
	case domain.Track:
		return knx.Value{Kind: knx.KindInt, Int: int64(v.Index)}, nil
	case domain.Playlist:
		return knx.Value{Kind: knx.KindInt, Int: int64(v.Index)}, nil
	case domain.ZoneIndex:
		return knx.Value{Kind: knx.KindInt, Int: int64(v)}, nil
	default:
		return knx.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}
