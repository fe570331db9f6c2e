package commandbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/clientstore"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/resilience"
	"github.com/snapdog-io/integration-core/internal/snapcast"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

func newTestBus() (*Bus, *zonestore.Store, *clientstore.Store) {
	logger := zap.NewNop()
	zones := zonestore.New([]domain.Zone{{Index: 1, Name: "Living Room", Volume: 50}}, logger)
	clients := clientstore.New([]domain.Client{{Index: 1, Name: "Speaker"}}, logger)
	repo := snapcast.NewRepository(nil, logger)
	rpc := snapcast.NewClient("ws://127.0.0.1:1/jsonrpc", resilience.Policy{}, 0, logger)
	svc := snapcast.NewService(repo, rpc, clients, zones, logger)
	return New(zones, clients, svc, logger), zones, clients
}

func TestDispatchPlayZoneWithTrack(t *testing.T) {
	bus, zones, _ := newTestBus()
	cmd := domain.PlayZone{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 1, HasTrack: true, Track: 3}

	res := bus.Dispatch(context.Background(), cmd)
	require.True(t, res.IsOk())

	z, _ := zones.Get(1).Value()
	assert.Equal(t, domain.PlaybackPlaying, z.PlaybackState)
	require.NotNil(t, z.CurrentTrack)
	assert.Equal(t, 3, z.CurrentTrack.Index)
}

func TestDispatchPauseZone(t *testing.T) {
	bus, zones, _ := newTestBus()
	res := bus.Dispatch(context.Background(), domain.PauseZone{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 1})
	require.True(t, res.IsOk())
	z, _ := zones.Get(1).Value()
	assert.Equal(t, domain.PlaybackPaused, z.PlaybackState)
}

func TestDispatchSetZoneVolumeAbsolute(t *testing.T) {
	bus, zones, _ := newTestBus()
	cmd := domain.SetZoneVolume{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 1, Delta: domain.VolumeDelta{Absolute: true, Value: 77}}
	res := bus.Dispatch(context.Background(), cmd)
	require.True(t, res.IsOk())
	z, _ := zones.Get(1).Value()
	assert.Equal(t, 77, z.Volume)
}

func TestDispatchSetZoneVolumeRelative(t *testing.T) {
	bus, zones, _ := newTestBus()
	cmd := domain.SetZoneVolume{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 1, Delta: domain.VolumeDelta{Relative: true, DefaultStep: true}}
	res := bus.Dispatch(context.Background(), cmd)
	require.True(t, res.IsOk())
	z, _ := zones.Get(1).Value()
	assert.Equal(t, 55, z.Volume) // 50 + default step 5
}

func TestDispatchSetZoneVolumeRelativeNegative(t *testing.T) {
	bus, zones, _ := newTestBus()
	cmd := domain.SetZoneVolume{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 1, Delta: domain.VolumeDelta{Relative: true, Negative: true, DefaultStep: true}}
	res := bus.Dispatch(context.Background(), cmd)
	require.True(t, res.IsOk())
	z, _ := zones.Get(1).Value()
	assert.Equal(t, 45, z.Volume)
}

func TestDispatchSetZoneMuteToggleWithNoBoundClients(t *testing.T) {
	bus, zones, _ := newTestBus()
	cmd := domain.SetZoneMute{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 1, Action: domain.MuteToggle}
	res := bus.Dispatch(context.Background(), cmd)
	require.True(t, res.IsOk())
	z, _ := zones.Get(1).Value()
	assert.True(t, z.Muted)
}

func TestDispatchSetClientVolumeWithoutSnapcastBinding(t *testing.T) {
	bus, _, clients := newTestBus()
	cmd := domain.SetClientVolume{CommandBase: domain.NewBase(domain.SourceAPI), Client: 1, Volume: 33}
	res := bus.Dispatch(context.Background(), cmd)
	require.True(t, res.IsOk())
	c, _ := clients.Get(1).Value()
	assert.Equal(t, 33, c.Volume)
}

func TestDispatchUnknownCommandType(t *testing.T) {
	bus, _, _ := newTestBus()
	res := bus.Dispatch(context.Background(), fakeCommand{})
	assert.False(t, res.IsOk())
	assert.Equal(t, "internal", string(res.Error().Kind))
}

type fakeCommand struct{}

func (fakeCommand) CommandSource() domain.Source { return domain.SourceAPI }
func (fakeCommand) CorrelationID() string        { return "fake" }

func TestDispatchUnknownZoneNotFound(t *testing.T) {
	bus, _, _ := newTestBus()
	res := bus.Dispatch(context.Background(), domain.PauseZone{CommandBase: domain.NewBase(domain.SourceAPI), Zone: 99})
	assert.False(t, res.IsOk())
}
