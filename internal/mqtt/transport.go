// Package mqtt implements the MQTT broker transport: connection
// lifecycle, publish/subscribe, and re-subscription on reconnect,
// wrapping github.com/eclipse/paho.mqtt.golang — the pack carries no
// MQTT dependency of its own, so this library is named here rather than
// grounded on an example (see DESIGN.md).
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/resilience"
)

// QoS mirrors the MQTT QoS levels the core cares about.
type QoS byte

const (
	QoSAtMostOnce  QoS = 0
	QoSAtLeastOnce QoS = 1 // default
	QoSExactlyOnce QoS = 2
)

// Message is an inbound MQTT publish delivered to OnMessage.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport wraps a paho client with a reconnect and re-subscription
// policy.
type Transport struct {
	brokerURL string
	clientID  string
	username  string
	password  string
	keepAlive time.Duration
	policy    resilience.Policy
	logger    *zap.Logger

	mu      sync.Mutex
	client  paho.Client
	onMsg   func(Message)

	subsMu sync.Mutex
	subs   map[string]byte // topic filter -> qos, re-applied on reconnect

	connected boolFlag
}

// boolFlag is a tiny mutex-guarded bool, used instead of atomic.Bool so
// reads and writes read naturally as get()/set() at call sites below.
type boolFlag struct {
	mu sync.RWMutex
	v  bool
}

func (b *boolFlag) set(v bool) {
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
}

func (b *boolFlag) get() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.v
}

// New builds a Transport. Connect must be called before Publish/Subscribe.
func New(brokerHost string, brokerPort int, clientID, username, password string, keepAlive time.Duration, policy resilience.Policy, logger *zap.Logger) *Transport {
	return &Transport{
		brokerURL: fmt.Sprintf("tcp://%s:%d", brokerHost, brokerPort),
		clientID:  clientID,
		username:  username,
		password:  password,
		keepAlive: keepAlive,
		policy:    policy,
		logger:    logger,
		subs:      make(map[string]byte),
	}
}

// OnMessage registers the handler invoked for every inbound publish across
// every subscribed filter. Must be called before Connect.
func (t *Transport) OnMessage(handler func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMsg = handler
}

// Connected reports the paho client's current connection state.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	c := t.client
	t.mu.Unlock()
	return c != nil && c.IsConnectionOpen()
}

// Connect dials the broker. Reconnection and re-subscription are handled
// by paho's AutoReconnect combined with OnConnect here, shaped by the
// same exponential-backoff-with-jitter policy as the other transports
// via the reconnect interval bounds.
func (t *Transport) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(t.brokerURL).
		SetClientID(t.clientID).
		SetKeepAlive(t.keepAlive).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(t.policy.MaxDelay).
		SetConnectRetry(true).
		SetConnectRetryInterval(t.policy.BaseDelay).
		SetConnectTimeout(t.policy.BaseDelay)
	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}
	opts.SetOnConnectHandler(func(paho.Client) {
		t.logger.Info("mqtt connected", zap.String("broker", t.brokerURL))
		t.connected.set(true)
		t.resubscribe()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.logger.Warn("mqtt connection lost, paho auto-reconnect engaged", zap.Error(err))
		t.connected.set(false)
	})
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		t.dispatch(Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})

	client := paho.NewClient(opts)
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	token := client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (t *Transport) dispatch(m Message) {
	t.mu.Lock()
	handler := t.onMsg
	t.mu.Unlock()
	if handler == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("mqtt message handler panicked", zap.Any("panic", r))
			}
		}()
		handler(m)
	}()
}

// Publish sends payload to topic at the given QoS, retained as requested:
// status topics retained, error/ephemeral topics not.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return fmt.Errorf("mqtt publish %s: not connected", topic)
	}
	token := client.Publish(topic, byte(qos), retain, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	return token.Error()
}

// Subscribe adds topic filters (remembered for re-subscription on
// reconnect) and subscribes immediately if connected.
func (t *Transport) Subscribe(ctx context.Context, filters map[string]QoS) error {
	t.subsMu.Lock()
	for f, q := range filters {
		t.subs[f] = byte(q)
	}
	t.subsMu.Unlock()

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || !client.IsConnectionOpen() {
		return nil
	}
	return t.subscribeFilters(ctx, client, filters)
}

// Unsubscribe removes topic filters both from the remembered set and the
// live subscription.
func (t *Transport) Unsubscribe(ctx context.Context, filters []string) error {
	t.subsMu.Lock()
	for _, f := range filters {
		delete(t.subs, f)
	}
	t.subsMu.Unlock()

	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil
	}
	token := client.Unsubscribe(filters...)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	return token.Error()
}

func (t *Transport) resubscribe() {
	t.subsMu.Lock()
	filters := make(map[string]QoS, len(t.subs))
	for f, q := range t.subs {
		filters[f] = QoS(q)
	}
	t.subsMu.Unlock()
	if len(filters) == 0 {
		return
	}
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return
	}
	if err := t.subscribeFilters(context.Background(), client, filters); err != nil {
		t.logger.Warn("mqtt re-subscribe after reconnect failed", zap.Error(err))
	}
}

func (t *Transport) subscribeFilters(ctx context.Context, client paho.Client, filters map[string]QoS) error {
	pahoFilters := make(map[string]byte, len(filters))
	for f, q := range filters {
		pahoFilters[f] = byte(q)
	}
	token := client.SubscribeMultiple(pahoFilters, func(_ paho.Client, msg paho.Message) {
		t.dispatch(Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	return token.Error()
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// work to drain.
func (t *Transport) Close() {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}
