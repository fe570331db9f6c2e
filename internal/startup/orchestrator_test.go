package startup

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPreflightDetectsPortConflictAndSuggestsAlternative(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	o := New(zap.NewNop(), "Production", nil).WithPort("snapcast", port)
	err = o.Preflight(context.Background())
	assert.Error(t, err)
}

func TestPreflightPassesWhenPortFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // released, should be free again

	o := New(zap.NewNop(), "Production", nil).WithPort("snapcast", port)
	assert.NoError(t, o.Preflight(context.Background()))
}

func TestPreflightDependencyProbeNeverFailsPreflight(t *testing.T) {
	o := New(zap.NewNop(), "Production", nil).WithDependency("mqtt-broker", "127.0.0.1:1")
	assert.NoError(t, o.Preflight(context.Background()))
}

func TestPreflightSkipsDirectoryCheckInTestingEnvironment(t *testing.T) {
	o := New(zap.NewNop(), "Testing", []string{"/path/that/does/not/exist"})
	assert.NoError(t, o.Preflight(context.Background()))
}

func TestBringUpAllSucceed(t *testing.T) {
	o := New(zap.NewNop(), "Production", nil)
	integrations := []Integration{
		{Name: "snapcast", Critical: true, Initialize: func(ctx context.Context) error { return nil }},
		{Name: "mqtt", Critical: true, Initialize: func(ctx context.Context) error { return nil }},
	}
	out, err := o.BringUp(context.Background(), integrations)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"snapcast", "mqtt"}, out.Connected)
	assert.Empty(t, out.Failed)
	assert.False(t, out.Degraded)
}

func TestBringUpCriticalFailureReturnsTerminateError(t *testing.T) {
	o := New(zap.NewNop(), "Production", nil)
	integrations := []Integration{
		{Name: "snapcast", Critical: true, Initialize: func(ctx context.Context) error { return errors.New("connect refused") }},
		{Name: "mqtt", Critical: true, Initialize: func(ctx context.Context) error { return nil }},
	}
	out, err := o.BringUp(context.Background(), integrations)
	require.Error(t, err)
	var term *TerminateError
	require.ErrorAs(t, err, &term)
	assert.Equal(t, []string{"snapcast"}, term.Failed)
	assert.Contains(t, out.Failed, "snapcast")
}

func TestBringUpNonCriticalFailureDegradesButDoesNotTerminate(t *testing.T) {
	o := New(zap.NewNop(), "Production", nil)
	integrations := []Integration{
		{Name: "snapcast", Critical: true, Initialize: func(ctx context.Context) error { return nil }},
		{Name: "knx", Critical: false, Initialize: func(ctx context.Context) error { return errors.New("no gateway") }},
	}
	out, err := o.BringUp(context.Background(), integrations)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, []string{"knx"}, out.Disabled)
	assert.Equal(t, []string{"snapcast"}, out.Connected)
}

func TestExecuteWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := retryPolicy
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond
	oldPolicy := retryPolicy
	retryPolicy = policy
	defer func() { retryPolicy = oldPolicy }()

	attempts := 0
	err := ExecuteWithRetry(context.Background(), zap.NewNop(), "test step", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPublishInitialStateRunsPublishAfterGracePeriod(t *testing.T) {
	o := New(zap.NewNop(), "Production", nil)
	called := false
	start := time.Now()
	err := o.PublishInitialState(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestPublishInitialStateReturnsContextErrorOnCancel(t *testing.T) {
	o := New(zap.NewNop(), "Production", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.PublishInitialState(ctx, func(ctx context.Context) error {
		t.Fatal("publish should not be called when context is already cancelled")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
