package clientstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
)

func newTestStore() *Store {
	return New([]domain.Client{
		{Index: 1, Name: "Kitchen Speaker", Volume: 60, MacAddress: "aa:bb:cc:dd:ee:ff"},
	}, zap.NewNop())
}

func drain(t *testing.T, ch <-chan domain.ChangeEvent, n int) []domain.ChangeEvent {
	t.Helper()
	out := make([]domain.ChangeEvent, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return out
}

func TestSetVolumeWhileMutedOnlyUpdatesCache(t *testing.T) {
	s := newTestStore()
	require.True(t, s.SetMute(1, true).IsOk())
	events := s.Subscribe()

	res := s.SetVolume(1, 80)
	require.True(t, res.IsOk())
	c, _ := res.Value()
	assert.Equal(t, 60, c.Volume) // unchanged while muted
	assert.True(t, c.Muted)

	select {
	case ev := <-events:
		t.Fatalf("expected no event while muted, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnmuteRestoresCachedVolumeAndEmitsBoth(t *testing.T) {
	s := newTestStore()
	events := s.Subscribe()

	require.True(t, s.SetMute(1, true).IsOk())
	drain(t, events, 1) // mute event

	require.True(t, s.SetVolume(1, 90).IsOk()) // cached, no event while muted

	res := s.SetMute(1, false)
	require.True(t, res.IsOk())
	c, _ := res.Value()
	assert.Equal(t, 90, c.Volume)
	assert.False(t, c.Muted)

	evs := drain(t, events, 2)
	assert.Equal(t, domain.FieldVolume, evs[0].Field)
	assert.Equal(t, 90, evs[0].NewValue)
	assert.Equal(t, domain.FieldMute, evs[1].Field)
	assert.Equal(t, false, evs[1].NewValue)
}

func TestAssignZoneThenUnassign(t *testing.T) {
	s := newTestStore()
	events := s.Subscribe()

	res := s.AssignZone(1, 3, true)
	require.True(t, res.IsOk())
	c, _ := res.Value()
	zone, has := c.AssignedZoneIndex()
	assert.True(t, has)
	assert.Equal(t, domain.ZoneIndex(3), zone)

	ev := <-events
	assert.False(t, ev.HasPrevious)

	res = s.AssignZone(1, 0, false)
	require.True(t, res.IsOk())
	c, _ = res.Value()
	_, has = c.AssignedZoneIndex()
	assert.False(t, has)

	ev = <-events
	assert.True(t, ev.HasPrevious)
	assert.Equal(t, domain.ZoneIndex(3), ev.PreviousValue)
}

func TestGetBySnapcastID(t *testing.T) {
	s := newTestStore()
	s.BindSnapcastID(1, "snap-client-1", true)

	c, ok := s.GetBySnapcastID("snap-client-1")
	require.True(t, ok)
	assert.Equal(t, domain.ClientIndex(1), c.Index)

	_, ok = s.GetBySnapcastID("unknown")
	assert.False(t, ok)
}

func TestSetLatencyRejectsNegative(t *testing.T) {
	s := newTestStore()
	res := s.SetLatency(1, -5)
	assert.False(t, res.IsOk())
	assert.Equal(t, "validation", string(res.Error().Kind))
}
