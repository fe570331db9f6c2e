// Package startup validates preconditions, brings every integration up in
// parallel with a global timeout, and performs the initial full-state
// publish, following the same exponential-backoff-with-jitter shape as
// the transports themselves.
package startup

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/resilience"
)

// Integration is one bring-up-able service: Snapcast, MQTT, KNX, or a
// future media-source. Initialize is called once, in parallel with every
// other integration, bounded by a global timeout.
type Integration struct {
	Name     string
	Critical bool
	Initialize func(ctx context.Context) error
}

// Dependency is a soft network reachability probe: a TCP connect attempt
// that only ever produces a warning, never a fatal error.
type Dependency struct {
	Name string
	Addr string
}

// portCheck is a local service port registered via WithPort for the
// preflight bind-test.
type portCheck struct {
	Name string
	Port int
}

// Outcome summarises the integration bring-up pass.
type Outcome struct {
	Connected []string
	Failed    []string
	Disabled  []string // non-critical integrations taken out of service
	Degraded  bool
}

// TerminateError is returned when a critical integration failed to come
// up; main is expected to log it and exit non-zero itself — the
// orchestrator never calls os.Exit.
type TerminateError struct {
	Failed []string
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("critical integration(s) failed to start: %v", e.Failed)
}

// retryPolicy is ExecuteWithRetry's fixed shape: base 1s, cap 30s, max 5
// attempts, jittered.
var retryPolicy = resilience.Policy{
	MaxRetries: 5,
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
	UseJitter:  true,
}

// ExecuteWithRetry runs op under the fixed startup retry policy, logging
// each attempt at the given step name.
func ExecuteWithRetry(ctx context.Context, logger *zap.Logger, step string, op func(ctx context.Context) error) error {
	policy := retryPolicy
	policy.OnAttempt = func(attempt int, lastErr error) {
		if lastErr != nil {
			logger.Warn("startup step retrying", zap.String("step", step), zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}
	}
	return resilience.Retry(ctx, policy, op)
}

// Orchestrator runs the startup sequence: port checks, soft connectivity
// probes, directory checks, parallel integration bring-up, and the
// initial full-state publish.
type Orchestrator struct {
	logger              *zap.Logger
	environment         string
	ports               []portCheck
	dependencies        []Dependency
	requiredDirectories []string
}

// New builds an Orchestrator. environment == "Testing" skips the
// directory-existence check.
func New(logger *zap.Logger, environment string, requiredDirectories []string) *Orchestrator {
	return &Orchestrator{logger: logger, environment: environment, requiredDirectories: requiredDirectories}
}

// WithPort registers a local service port to bind-test before bring-up.
func (o *Orchestrator) WithPort(name string, port int) *Orchestrator {
	o.ports = append(o.ports, portCheck{Name: name, Port: port})
	return o
}

// WithDependency registers a soft TCP-reachability probe.
func (o *Orchestrator) WithDependency(name, addr string) *Orchestrator {
	o.dependencies = append(o.dependencies, Dependency{Name: name, Addr: addr})
	return o
}

// Preflight runs the port/connectivity/directory checks. A port conflict
// is the only fatal outcome here; everything else is logged and continues.
func (o *Orchestrator) Preflight(ctx context.Context) error {
	for _, p := range o.ports {
		if err := o.checkPort(p); err != nil {
			return err
		}
	}
	for _, d := range o.dependencies {
		o.probeDependency(ctx, d)
	}
	if o.environment != "Testing" {
		o.checkDirectories()
	}
	return nil
}

// checkPort bind-tests p.Port on loopback; on conflict it scans
// port+1..port+100 for a free alternative to report, then fails.
func (o *Orchestrator) checkPort(p portCheck) error {
	addr := fmt.Sprintf("127.0.0.1:%d", p.Port)
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		ln.Close()
		return nil
	}

	for candidate := p.Port + 1; candidate <= p.Port+100; candidate++ {
		altAddr := fmt.Sprintf("127.0.0.1:%d", candidate)
		if altLn, altErr := net.Listen("tcp", altAddr); altErr == nil {
			altLn.Close()
			o.logger.Error("port conflict, alternative available",
				zap.String("service", p.Name), zap.Int("configuredPort", p.Port), zap.Int("alternativePort", candidate))
			return fmt.Errorf("port %d for %s is in use (try %d): %w", p.Port, p.Name, candidate, err)
		}
	}
	o.logger.Error("port conflict, no alternative found in range",
		zap.String("service", p.Name), zap.Int("configuredPort", p.Port))
	return fmt.Errorf("port %d for %s is in use, no free port in range: %w", p.Port, p.Name, err)
}

// probeDependency attempts a 5s TCP connect; failure is a warning only.
func (o *Orchestrator) probeDependency(ctx context.Context, d Dependency) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", d.Addr)
	if err != nil {
		o.logger.Warn("dependency unreachable at startup, proceeding anyway",
			zap.String("dependency", d.Name), zap.String("addr", d.Addr), zap.Error(err))
		return
	}
	conn.Close()
}

func (o *Orchestrator) checkDirectories() {
	for _, dir := range o.requiredDirectories {
		info, err := os.Stat(dir)
		if err != nil {
			o.logger.Warn("required directory missing", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if !info.IsDir() {
			o.logger.Warn("required path is not a directory", zap.String("dir", dir))
			continue
		}
		probe := dir + "/.snapdog-write-probe"
		if f, err := os.Create(probe); err != nil {
			o.logger.Warn("required directory not writable", zap.String("dir", dir), zap.Error(err))
		} else {
			f.Close()
			os.Remove(probe)
		}
	}
}

// BringUp calls Initialize on every integration in parallel, bounded by a
// 30s global timeout, and classifies the result once every Initialize has
// returned. An integration that fails because the timeout cancelled its
// context is classified like any other failure: a critical one still
// yields a TerminateError. BringUp never terminates the process itself.
func (o *Orchestrator) BringUp(ctx context.Context, integrations []Integration) (Outcome, error) {
	bringUpCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	type outcome struct {
		name     string
		critical bool
		err      error
	}
	results := make(chan outcome, len(integrations))
	for _, in := range integrations {
		go func(in Integration) {
			err := in.Initialize(bringUpCtx)
			results <- outcome{name: in.Name, critical: in.Critical, err: err}
		}(in)
	}

	var out Outcome
	var criticalFailed []string
	for i := 0; i < len(integrations); i++ {
		r := <-results
		if r.err != nil {
			out.Failed = append(out.Failed, r.name)
			if r.critical {
				criticalFailed = append(criticalFailed, r.name)
				o.logger.Error("critical integration failed to initialize", zap.String("integration", r.name), zap.Error(r.err))
			} else {
				out.Disabled = append(out.Disabled, r.name)
				o.logger.Warn("non-critical integration failed to initialize, continuing in degraded mode",
					zap.String("integration", r.name), zap.Error(r.err))
			}
			continue
		}
		out.Connected = append(out.Connected, r.name)
	}

	if len(criticalFailed) > 0 {
		return out, &TerminateError{Failed: criticalFailed}
	}
	out.Degraded = len(out.Disabled) > 0
	return out, nil
}

// PublishInitialState waits a 2s grace period after bring-up, then runs
// publish — the caller supplies the closure that pushes every zone,
// client, and global status through the coordinator's publishers, so
// downstream consumers converge without relying on retained topics.
func (o *Orchestrator) PublishInitialState(ctx context.Context, publish func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	return publish(ctx)
}
