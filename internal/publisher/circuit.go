package publisher

import (
	"sync"
	"time"
)

// failureThreshold and defaultCooldown are the circuit breaker's defaults:
// three consecutive direct-publish failures open the circuit; it
// re-closes 60s after the last failure.
const (
	failureThreshold = 3
	defaultCooldown  = 60 * time.Second
)

// circuitBreaker is per-(publisher, scope) state gating the direct
// publish path. Modelled as a single mutex since the three fields always
// change together.
type circuitBreaker struct {
	mu                  sync.Mutex
	directEnabled       bool
	consecutiveFailures int
	lastFailure         time.Time
	cooldown            time.Duration
}

func newCircuitBreaker(cooldown time.Duration) *circuitBreaker {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &circuitBreaker{directEnabled: true, cooldown: cooldown}
}

func (cb *circuitBreaker) allowDirect() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.directEnabled
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
}

// recordFailure increments the failure count and opens the circuit once
// the threshold is reached. Returns the new failure count for logging.
func (cb *circuitBreaker) recordFailure(now time.Time) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	cb.lastFailure = now
	if cb.consecutiveFailures >= failureThreshold {
		cb.directEnabled = false
	}
	return cb.consecutiveFailures
}

// checkReset re-enables the direct path if the cooldown has elapsed since
// the last failure. Returns true if it just transitioned open->closed.
func (cb *circuitBreaker) checkReset(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.directEnabled {
		return false
	}
	if now.Sub(cb.lastFailure) < cb.cooldown {
		return false
	}
	cb.directEnabled = true
	cb.consecutiveFailures = 0
	return true
}
