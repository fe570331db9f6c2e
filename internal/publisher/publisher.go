// Package publisher implements a hybrid direct/queue publish path gated
// by a per-(publisher, scope) circuit breaker, guaranteeing every event
// leads to at least one publish attempt, in order, per (scope, entity,
// field).
package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/resilience"
)

// resetTickSpec ticks at a quarter of the cooldown, so a breaker that
// opened right after a tick still resets within one extra interval.
var resetTickSpec = fmt.Sprintf("@every %s", defaultCooldown/4)

// Sink is the transport-level publish primitive a SmartPublisher wraps —
// MQTT or KNX, each behind their own adapter (mqtt_publisher.go,
// knx_publisher.go).
type Sink interface {
	Connected() bool
	Send(ctx context.Context, key string, payload any) error
}

// SmartPublisher implements the hybrid algorithm once, parameterised by a
// Sink and a name used only for logging/metrics labels.
type SmartPublisher struct {
	name   string
	sink   Sink
	policy resilience.Policy
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[domain.Scope]*circuitBreaker
	queues   map[domain.Scope]*scopeQueue

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cron.Cron
}

// New builds a SmartPublisher. Start must be called once before Publish.
func New(name string, sink Sink, policy resilience.Policy, logger *zap.Logger) *SmartPublisher {
	return &SmartPublisher{
		name:     name,
		sink:     sink,
		policy:   policy,
		logger:   logger,
		breakers: make(map[domain.Scope]*circuitBreaker),
		queues:   make(map[domain.Scope]*scopeQueue),
		cron:     cron.New(),
	}
}

// Start launches the per-scope drainers and schedules the circuit-breaker
// auto-reset tick.
func (p *SmartPublisher) Start(ctx context.Context) {
	p.runCtx, p.cancel = context.WithCancel(ctx)
	for _, scope := range []domain.Scope{domain.ScopeZone, domain.ScopeClient, domain.ScopeGlobal} {
		q := p.queueFor(scope)
		p.wg.Add(1)
		go func(q *scopeQueue) {
			defer p.wg.Done()
			q.drain(p.runCtx)
		}(q)
	}
	if _, err := p.cron.AddFunc(resetTickSpec, p.CheckCircuitBreakerReset); err != nil {
		p.logger.Warn("failed to schedule circuit breaker reset tick",
			zap.String("publisher", p.name), zap.Error(err))
	}
	p.cron.Start()
}

// Stop cancels the drainers and halts the reset tick, waiting for any
// in-flight tick and all drainers to finish.
func (p *SmartPublisher) Stop() {
	<-p.cron.Stop().Done()
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *SmartPublisher) breakerFor(scope domain.Scope) *circuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.breakers[scope]
	if !ok {
		cb = newCircuitBreaker(defaultCooldown)
		p.breakers[scope] = cb
	}
	return cb
}

func (p *SmartPublisher) queueFor(scope domain.Scope) *scopeQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[scope]
	if !ok {
		q = newScopeQueue(scope, p.sink.Send, p.policy, p.logger)
		p.queues[scope] = q
	}
	return q
}

// Publish attempts a direct send, falling back to the scope's durable
// queue on failure or when the circuit is open. It always returns nil:
// the fallback path guarantees eventual delivery, so a transport failure
// here is never the caller's problem to handle.
func (p *SmartPublisher) Publish(ctx context.Context, scope domain.Scope, key string, payload any) error {
	cb := p.breakerFor(scope)

	if cb.allowDirect() && p.sink.Connected() {
		if err := p.sink.Send(ctx, key, payload); err == nil {
			cb.recordSuccess()
			return nil
		} else {
			count := cb.recordFailure(time.Now())
			p.logger.Warn("direct publish failed",
				zap.String("publisher", p.name), zap.String("scope", string(scope)),
				zap.String("key", key), zap.Int("consecutiveFailures", count), zap.Error(err))
			if count >= failureThreshold {
				p.logger.Warn("circuit breaker open, falling back to queue",
					zap.String("publisher", p.name), zap.String("scope", string(scope)))
			}
		}
	}

	p.queueFor(scope).enqueue(queuedItem{key: key, payload: payload})
	return nil
}

// CheckCircuitBreakerReset re-closes any breaker whose cooldown has
// elapsed. Exposed for tests; the background tick calls it every
// cooldown/4.
func (p *SmartPublisher) CheckCircuitBreakerReset() {
	now := time.Now()
	p.mu.Lock()
	breakers := make(map[domain.Scope]*circuitBreaker, len(p.breakers))
	for scope, cb := range p.breakers {
		breakers[scope] = cb
	}
	p.mu.Unlock()

	for scope, cb := range breakers {
		if cb.checkReset(now) {
			p.logger.Info("circuit breaker reset, direct publish re-enabled",
				zap.String("publisher", p.name), zap.String("scope", string(scope)))
		}
	}
}

// FormatScalar renders a value the way outbound MQTT scalar topics expect:
// a single primitive as text.
func FormatScalar(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
