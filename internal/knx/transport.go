// Package knx implements the KNX group-telegram transport, wrapping
// github.com/vapourismo/knx-go — like paho, the pack
// carries no KNX dependency of its own, so this library is named here
// rather than grounded on an example (see DESIGN.md). DPT encode/decode
// lives in dpt.go, behind a typed-value surface contract: raw bytes
// never cross into the rest of the core.
package knx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vapourismo/knx-go/knx"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/resilience"
)

// Telegram is an inbound group-value event, already DPT-decoded into a
// typed Value by the time it reaches the rest of the core.
type Telegram struct {
	GroupAddress string
	Value        Value
}

// Transport owns the KNX/IP tunnel connection, reconnecting with the same
// policy shape as the other transports.
type Transport struct {
	gatewayAddr string
	policy      resilience.Policy
	logger      *zap.Logger

	mu     sync.Mutex
	client *knx.GroupTunnel

	onTelegram func(Telegram)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Transport targeting gatewayHost:port, a KNX/IP interface.
func New(gatewayHost string, port int, policy resilience.Policy, logger *zap.Logger) *Transport {
	return &Transport{
		gatewayAddr: fmt.Sprintf("%s:%d", gatewayHost, port),
		policy:      policy,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Connected reports whether the tunnel currently has a live client.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil
}

// OnTelegram registers the handler for inbound group-write/response
// telegrams. Must be called before Connect.
func (t *Transport) OnTelegram(handler func(Telegram)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTelegram = handler
}

// Connect dials the KNX/IP gateway and starts the inbound telegram loop.
func (t *Transport) Connect(ctx context.Context) error {
	if err := t.dial(ctx); err != nil {
		return err
	}
	t.wg.Add(1)
	go t.readLoop()
	return nil
}

func (t *Transport) dial(ctx context.Context) error {
	client, err := knx.NewGroupTunnel(t.gatewayAddr, knx.DefaultTunnelConfig)
	if err != nil {
		return fmt.Errorf("dial knx gateway %s: %w", t.gatewayAddr, err)
	}
	t.mu.Lock()
	t.client = &client
	t.mu.Unlock()
	return nil
}

// readLoop drains the gateway's inbound event channel and decodes each
// group-write telegram, mirroring the Snapcast RPC client's
// decode-route-repeat read loop shape and reconnect policy.
func (t *Transport) readLoop() {
	defer t.wg.Done()
	for {
		t.mu.Lock()
		client := t.client
		t.mu.Unlock()
		if client == nil {
			return
		}

		select {
		case <-t.stopCh:
			return
		case event, ok := <-client.Inbound():
			if !ok {
				t.handleDisconnect()
				return
			}
			t.handleEvent(event)
		}
	}
}

func (t *Transport) handleEvent(event knx.GroupEvent) {
	if event.Command != knx.GroupWrite && event.Command != knx.GroupResponse {
		return
	}
	ga := event.Destination.String()
	value, err := DecodeRaw(ga, event.Data)
	if err != nil {
		t.logger.Warn("undecodable knx telegram, dropping", zap.String("groupAddress", ga), zap.Error(err))
		return
	}
	t.mu.Lock()
	handler := t.onTelegram
	t.mu.Unlock()
	if handler == nil {
		return
	}
	handler(Telegram{GroupAddress: ga, Value: value})
}

func (t *Transport) handleDisconnect() {
	select {
	case <-t.stopCh:
		return
	default:
	}
	t.logger.Warn("knx tunnel closed, reconnecting")
	go t.reconnectLoop()
}

func (t *Transport) reconnectLoop() {
	ctx := context.Background()
	policy := t.policy
	policy.OnAttempt = func(attempt int, lastErr error) {
		if lastErr != nil {
			t.logger.Warn("knx reconnect attempt", zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}
	}
	err := resilience.Retry(ctx, policy, func(ctx context.Context) error {
		select {
		case <-t.stopCh:
			return nil
		default:
		}
		return t.dial(ctx)
	})
	if err != nil {
		t.logger.Error("knx reconnect exhausted retries, giving up", zap.Error(err))
		return
	}
	select {
	case <-t.stopCh:
		return
	default:
	}
	t.wg.Add(1)
	go t.readLoop()
}

// SendGroupValue writes a DPT-encoded value to a group address. Telegrams
// go out at the tunnel's default transport priority; SnapDog's traffic
// has no need to distinguish system/alarm/urgent priority classes.
func (t *Transport) SendGroupValue(ctx context.Context, groupAddress string, value Value) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return fmt.Errorf("knx send %s: not connected", groupAddress)
	}
	dest, err := ParseGroupAddress(groupAddress)
	if err != nil {
		return err
	}
	data, err := Encode(groupAddress, value)
	if err != nil {
		return fmt.Errorf("encode knx value for %s: %w", groupAddress, err)
	}
	event := knx.GroupEvent{
		Command:     knx.GroupWrite,
		Destination: dest,
		Data:        data,
	}
	done := make(chan error, 1)
	go func() { done <- client.Send(event) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	case <-time.After(t.policy.BaseDelay + t.policy.MaxDelay):
		return fmt.Errorf("knx send %s: timed out", groupAddress)
	}
}

// Close stops the telegram loop and tears down the tunnel.
func (t *Transport) Close() error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client != nil {
		client.Close()
	}
	return nil
}
