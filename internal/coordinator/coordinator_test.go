package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/clientstore"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

type fakePublisher struct {
	name       string
	enabled    bool
	failZone   bool
	failClient bool

	mu            sync.Mutex
	zoneEvents    []domain.ChangeEvent
	clientEvents  []domain.ChangeEvent
}

func (p *fakePublisher) Name() string    { return p.name }
func (p *fakePublisher) IsEnabled() bool { return p.enabled }

func (p *fakePublisher) PublishZoneChanged(ctx context.Context, ev domain.ChangeEvent) error {
	if p.failZone {
		return errors.New("simulated zone publish failure")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zoneEvents = append(p.zoneEvents, ev)
	return nil
}

func (p *fakePublisher) PublishClientChanged(ctx context.Context, ev domain.ChangeEvent) error {
	if p.failClient {
		return errors.New("simulated client publish failure")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientEvents = append(p.clientEvents, ev)
	return nil
}

func (p *fakePublisher) zoneEventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.zoneEvents)
}

func (p *fakePublisher) clientEventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clientEvents)
}

func TestCoordinatorFansOutZoneEventsToEnabledPublishers(t *testing.T) {
	logger := zap.NewNop()
	zones := zonestore.New([]domain.Zone{{Index: 1, Name: "Living Room", Volume: 50}}, logger)
	clients := clientstore.New(nil, logger)

	p1 := &fakePublisher{name: "mqtt", enabled: true}
	p2 := &fakePublisher{name: "knx", enabled: true}
	c := New(zones, clients, []Publisher{p1, p2}, logger)
	c.Start(context.Background())
	defer c.Stop()

	res := zones.SetVolume(1, 80)
	require.True(t, res.IsOk())

	require.Eventually(t, func() bool {
		return p1.zoneEventCount() == 1 && p2.zoneEventCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinatorSkipsDisabledPublishers(t *testing.T) {
	logger := zap.NewNop()
	zones := zonestore.New([]domain.Zone{{Index: 1, Name: "Living Room", Volume: 50}}, logger)
	clients := clientstore.New(nil, logger)

	enabled := &fakePublisher{name: "mqtt", enabled: true}
	disabled := &fakePublisher{name: "knx", enabled: false}
	c := New(zones, clients, []Publisher{enabled, disabled}, logger)
	c.Start(context.Background())
	defer c.Stop()

	res := zones.SetVolume(1, 80)
	require.True(t, res.IsOk())

	require.Eventually(t, func() bool {
		return enabled.zoneEventCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, disabled.zoneEventCount())
}

func TestCoordinatorOnePublisherFailureDoesNotBlockOthers(t *testing.T) {
	logger := zap.NewNop()
	zones := zonestore.New([]domain.Zone{{Index: 1, Name: "Living Room", Volume: 50}}, logger)
	clients := clientstore.New(nil, logger)

	failing := &fakePublisher{name: "mqtt", enabled: true, failZone: true}
	healthy := &fakePublisher{name: "knx", enabled: true}
	c := New(zones, clients, []Publisher{failing, healthy}, logger)
	c.Start(context.Background())
	defer c.Stop()

	res := zones.SetVolume(1, 80)
	require.True(t, res.IsOk())

	require.Eventually(t, func() bool {
		return healthy.zoneEventCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, failing.zoneEventCount())
}

func TestCoordinatorFansOutClientEvents(t *testing.T) {
	logger := zap.NewNop()
	zones := zonestore.New(nil, logger)
	clients := clientstore.New([]domain.Client{{Index: 1, Name: "Speaker"}}, logger)

	p := &fakePublisher{name: "mqtt", enabled: true}
	c := New(zones, clients, []Publisher{p}, logger)
	c.Start(context.Background())
	defer c.Stop()

	res := clients.SetVolume(1, 60)
	require.True(t, res.IsOk())

	require.Eventually(t, func() bool {
		return p.clientEventCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinatorStopWaitsForGoroutines(t *testing.T) {
	logger := zap.NewNop()
	zones := zonestore.New(nil, logger)
	clients := clientstore.New(nil, logger)
	c := New(zones, clients, nil, logger)
	c.Start(context.Background())
	c.Stop() // must return without hanging
}
