// Package coordinator subscribes once to every zone/client change-event
// stream at startup and fans each event out to every enabled publisher
// in parallel, with per-publisher error isolation.
package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/clientstore"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

// Publisher is anything the smart publisher exposes to the coordinator:
// one method per entity kind, since the wire shape (MQTT topic vs KNX
// group address) differs enough per entity that a single
// PublishChanged(event) would just re-dispatch internally anyway.
type Publisher interface {
	Name() string
	IsEnabled() bool
	PublishZoneChanged(ctx context.Context, ev domain.ChangeEvent) error
	PublishClientChanged(ctx context.Context, ev domain.ChangeEvent) error
}

// Coordinator owns the subscription lifetime for the lifetime of a run.
type Coordinator struct {
	zones      *zonestore.Store
	clients    *clientstore.Store
	publishers []Publisher
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Coordinator over the zone/client stores and the full set
// of publishers (enabled or not — IsEnabled is checked per event).
func New(zones *zonestore.Store, clients *clientstore.Store, publishers []Publisher, logger *zap.Logger) *Coordinator {
	return &Coordinator{zones: zones, clients: clients, publishers: publishers, logger: logger}
}

// Start subscribes to both stores and begins fanning out events. Events
// published before Start is called are lost; stores are not replayed.
func (c *Coordinator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	zoneEvents := c.zones.Subscribe()
	clientEvents := c.clients.Subscribe()

	c.wg.Add(2)
	go c.consumeZoneEvents(runCtx, zoneEvents)
	go c.consumeClientEvents(runCtx, clientEvents)
}

// Stop cancels the fan-out goroutines and waits for them to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Coordinator) consumeZoneEvents(ctx context.Context, events <-chan domain.ChangeEvent) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.fanOut(ctx, ev, func(ctx context.Context, p Publisher, ev domain.ChangeEvent) error {
				return p.PublishZoneChanged(ctx, ev)
			})
		}
	}
}

func (c *Coordinator) consumeClientEvents(ctx context.Context, events <-chan domain.ChangeEvent) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.fanOut(ctx, ev, func(ctx context.Context, p Publisher, ev domain.ChangeEvent) error {
				return p.PublishClientChanged(ctx, ev)
			})
		}
	}
}

// fanOut calls publish for every enabled publisher in parallel; one
// publisher's failure is logged and never blocks or fails the others.
func (c *Coordinator) fanOut(ctx context.Context, ev domain.ChangeEvent, publish func(context.Context, Publisher, domain.ChangeEvent) error) {
	var wg sync.WaitGroup
	for _, p := range c.publishers {
		if !p.IsEnabled() {
			continue
		}
		wg.Add(1)
		go func(p Publisher) {
			defer wg.Done()
			if err := publish(ctx, p, ev); err != nil {
				c.logger.Warn("publisher failed",
					zap.String("publisher", p.Name()),
					zap.String("eventId", ev.ID),
					zap.String("entity", string(ev.Entity)),
					zap.String("field", ev.Field),
					zap.Error(err))
			}
		}(p)
	}
	wg.Wait()
}
