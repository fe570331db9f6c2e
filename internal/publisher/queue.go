package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/resilience"
)

// queueCapacity bounds each scope's fallback queue. Enqueue never blocks
// in practice at this capacity; it is documented, not silently dropped,
// if ever exceeded (logged at warning).
const queueCapacity = 4096

type queuedItem struct {
	key     string
	payload any
}

// scopeQueue is a single-producer-single-drainer FIFO per scope: enqueue
// is a non-blocking channel send; the drainer goroutine retries each item
// until it succeeds before moving to the next, which is what gives the
// queue its no-reorder guarantee.
type scopeQueue struct {
	scope  domain.Scope
	items  chan queuedItem
	send   func(ctx context.Context, key string, payload any) error
	policy resilience.Policy
	logger *zap.Logger
}

func newScopeQueue(scope domain.Scope, send func(ctx context.Context, key string, payload any) error, policy resilience.Policy, logger *zap.Logger) *scopeQueue {
	return &scopeQueue{scope: scope, items: make(chan queuedItem, queueCapacity), send: send, policy: policy, logger: logger}
}

func (q *scopeQueue) enqueue(item queuedItem) {
	select {
	case q.items <- item:
	default:
		q.logger.Warn("publish fallback queue full, dropping oldest-equivalent item",
			zap.String("scope", string(q.scope)), zap.String("key", item.key))
		// Make room by discarding the head, then retry once; never blocks.
		select {
		case <-q.items:
		default:
		}
		select {
		case q.items <- item:
		default:
		}
	}
}

// drain runs until ctx is cancelled, retrying each item with the shared
// resilience policy before moving to the next.
func (q *scopeQueue) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			q.drainOne(ctx, item)
		}
	}
}

func (q *scopeQueue) drainOne(ctx context.Context, item queuedItem) {
	policy := q.policy
	policy.MaxRetries = 0 // unbounded: the queue must never silently drop an item
	policy.OnAttempt = func(attempt int, lastErr error) {
		if lastErr != nil {
			q.logger.Warn("retrying queued publish",
				zap.String("scope", string(q.scope)), zap.String("key", item.key),
				zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}
	}
	_ = resilience.Retry(ctx, policy, func(ctx context.Context) error {
		return q.send(ctx, item.key, item.payload)
	})
}
