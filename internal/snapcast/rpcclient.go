package snapcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/resilience"
)

// ConnectionEventKind distinguishes the two lifecycle events the client emits.
type ConnectionEventKind int

const (
	ConnectionEstablished ConnectionEventKind = iota
	ConnectionLost
)

// ConnectionEvent is emitted on the client's Events channel whenever the
// connection transitions.
type ConnectionEvent struct {
	Kind   ConnectionEventKind
	Reason error // set only for ConnectionLost
}

const healthCheckInterval = 30 * time.Second

// pendingCall is a single in-flight request awaiting its response frame.
type pendingCall struct {
	resultCh chan rpcFrame
}

// Client is the long-lived JSON-RPC 2.0 connection to the Snapcast
// server: a persistent WebSocket transport, monotonic per-connection
// request ids correlated through a pending-call map, a notification demux
// table, and an exponential-backoff-with-jitter reconnect loop with a
// periodic health check.
//
// The read loop here follows the same shape as this codebase's other
// long-lived stream readers: block on the next frame, switch on
// its shape, dispatch, repeat, with context cancellation checked every
// iteration.
type Client struct {
	url            string
	reconnectPolicy resilience.Policy
	requestTimeout time.Duration
	logger         *zap.Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	connected atomic.Bool
	nextID    atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	notifyMu sync.RWMutex
	notify   map[string]func(json.RawMessage)

	events chan ConnectionEvent

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewClient builds a Client targeting url (a ws:// or wss:// JSON-RPC
// endpoint) with the given reconnect policy and per-request timeout.
func NewClient(url string, reconnectPolicy resilience.Policy, requestTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:             url,
		reconnectPolicy: reconnectPolicy,
		requestTimeout:  requestTimeout,
		logger:          logger,
		pending:         make(map[int64]*pendingCall),
		notify:          make(map[string]func(json.RawMessage)),
		events:          make(chan ConnectionEvent, 16),
		stopCh:          make(chan struct{}),
	}
}

// Events returns the channel of connection lifecycle events.
func (c *Client) Events() <-chan ConnectionEvent { return c.events }

// Connected reports whether the transport currently believes it has a
// live connection.
func (c *Client) Connected() bool { return c.connected.Load() }

// OnNotification registers handler for the given notification method name.
// Must be called before Connect to avoid missing early notifications.
func (c *Client) OnNotification(method string, handler func(params json.RawMessage)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notify[method] = handler
}

// Connect dials the Snapcast server once and, on success, starts the
// reader loop and the health-check ticker; a failed dial is returned
// without retrying. Reconnects after a lost connection happen in the
// background and are reported via Events().
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.healthLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.requestTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial snapcast rpc: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.connected.Store(true)
	c.emit(ConnectionEvent{Kind: ConnectionEstablished})
	return nil
}

func (c *Client) emit(ev ConnectionEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("connection event channel full, dropping event")
	}
}

// Close tears down the connection and stops background loops. Pending
// requests are failed with a cancellation-like error.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.connected.Store(false)

	c.pendingMu.Lock()
	for id, call := range c.pending {
		close(call.resultCh)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// readLoop decodes one frame at a time and routes it by shape: frames with
// an id complete a pending call, frames without one are notifications
// dispatched to the registered handler table.
func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var frame rpcFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("malformed json-rpc frame, dropping", zap.Error(err))
			continue
		}

		if frame.ID != nil {
			c.completeCall(*frame.ID, frame)
			continue
		}
		if frame.Method != "" {
			c.dispatchNotification(frame.Method, frame.Params)
			continue
		}
		c.logger.Warn("json-rpc frame with neither id nor method, dropping")
	}
}

func (c *Client) completeCall(id int64, frame rpcFrame) {
	c.pendingMu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Warn("response for unknown request id, dropping", zap.Int64("id", id))
		return
	}
	call.resultCh <- frame
}

func (c *Client) dispatchNotification(method string, params json.RawMessage) {
	c.notifyMu.RLock()
	handler, ok := c.notify[method]
	c.notifyMu.RUnlock()
	if !ok {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("notification handler panicked", zap.String("method", method), zap.Any("panic", r))
			}
		}()
		handler(params)
	}()
}

// handleReadError transitions the client to Reconnecting and starts the
// background reconnect loop.
func (c *Client) handleReadError(err error) {
	select {
	case <-c.stopCh:
		return
	default:
	}

	c.connected.Store(false)
	c.emit(ConnectionEvent{Kind: ConnectionLost, Reason: err})
	c.failAllPending(fmt.Errorf("connection lost: %w", err))

	go c.reconnectLoop()
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, call := range c.pending {
		frame := rpcFrame{Error: &rpcError{Message: err.Error()}}
		call.resultCh <- frame
		delete(c.pending, id)
	}
}

func (c *Client) reconnectLoop() {
	ctx := context.Background()
	attempt := 0
	policy := c.reconnectPolicy
	policy.OnAttempt = func(a int, lastErr error) {
		attempt = a
		if lastErr != nil {
			c.logger.Warn("snapcast reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Int("maxAttempts", c.reconnectPolicy.MaxRetries),
				zap.Error(lastErr))
		}
	}

	err := resilience.Retry(ctx, policy, func(ctx context.Context) error {
		select {
		case <-c.stopCh:
			return nil
		default:
		}
		return c.dial(ctx)
	})
	if err != nil {
		c.logger.Error("snapcast reconnect exhausted retries, giving up", zap.Error(err))
		return
	}

	select {
	case <-c.stopCh:
		return
	default:
	}

	c.wg.Add(1)
	go c.readLoop()
}

func (c *Client) healthLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
			var out wireGetRPCVersionResult
			err := c.SendRequest(ctx, MethodServerGetRPCVersion, nil, &out)
			cancel()
			if err != nil {
				c.logger.Warn("snapcast health check failed, forcing reconnect", zap.Error(err))
				c.connMu.RLock()
				conn := c.conn
				c.connMu.RUnlock()
				if conn != nil {
					_ = conn.Close()
				}
			}
		}
	}
}

// SendRequest issues a JSON-RPC request and decodes its result into out
// (which should be a pointer). Cancelling ctx cancels only this in-flight
// request — never the underlying connection.
func (c *Client) SendRequest(ctx context.Context, method string, params any, out any) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil || !c.Connected() {
		return fmt.Errorf("snapcast rpc: not connected")
	}

	id := c.nextID.Add(1)
	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = b
	}

	call := &pendingCall{resultCh: make(chan rpcFrame, 1)}
	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams}
	data, err := json.Marshal(req)
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("marshal request: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("snapcast rpc %s cancelled: %w", method, ctx.Err())
	case frame, ok := <-call.resultCh:
		if !ok {
			return fmt.Errorf("snapcast rpc %s: connection closed", method)
		}
		if frame.Error != nil {
			return fmt.Errorf("snapcast rpc %s: %s (code %d)", method, frame.Error.Message, frame.Error.Code)
		}
		if out != nil && len(frame.Result) > 0 {
			if err := json.Unmarshal(frame.Result, out); err != nil {
				return fmt.Errorf("unmarshal result for %s: %w", method, err)
			}
		}
		return nil
	}
}
