package zonestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
)

func newTestStore() *Store {
	return New([]domain.Zone{
		{Index: 1, Name: "Living Room", Volume: 40},
		{Index: 2, Name: "Kitchen", Volume: 20},
	}, zap.NewNop())
}

func TestSetVolumeEmitsChangeEvent(t *testing.T) {
	s := newTestStore()
	events := s.Subscribe()

	res := s.SetVolume(1, 55)
	require.True(t, res.IsOk())

	select {
	case ev := <-events:
		assert.Equal(t, domain.FieldVolume, ev.Field)
		assert.Equal(t, 55, ev.NewValue)
		assert.Equal(t, 40, ev.PreviousValue)
		assert.True(t, ev.HasPrevious)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}
}

func TestSetVolumeOutOfRangeRejected(t *testing.T) {
	s := newTestStore()
	res := s.SetVolume(1, 101)
	assert.False(t, res.IsOk())
	assert.Equal(t, "validation", string(res.Error().Kind))
}

func TestSetVolumeNoOpEmitsNoEvent(t *testing.T) {
	s := newTestStore()
	events := s.Subscribe()

	res := s.SetVolume(1, 40) // already 40
	require.True(t, res.IsOk())

	select {
	case ev := <-events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVolumeUpClampsAtMax(t *testing.T) {
	s := newTestStore()
	s.SetVolume(1, 98)
	res := s.VolumeUp(1, 5)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 100, z.Volume)
}

func TestVolumeDownClampsAtMin(t *testing.T) {
	s := newTestStore()
	s.SetVolume(1, 3)
	res := s.VolumeDown(1, 10)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 0, z.Volume)
}

func TestSetMuteIdempotentEmitsNoFurtherEvents(t *testing.T) {
	s := newTestStore()
	events := s.Subscribe()

	require.True(t, s.SetMute(1, true).IsOk())
	drainEvents(events, 2) // volume(0) + mute(true) from the first call

	require.True(t, s.SetMute(1, true).IsOk())
	assert.Equal(t, 0, len(events))
}

func TestSetMuteCachesZeroesAndRestoresVolume(t *testing.T) {
	// Mirrors spec scenario S2: prior {muted:false, volume:40} -> toggle
	// mute -> {muted:true, volume:0, cached:40}, emitting both a mute and
	// a volume event; unmuting restores the cached volume.
	s := newTestStore()
	events := s.Subscribe()

	res := s.SetMute(1, true)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.True(t, z.Muted)
	assert.Equal(t, 0, z.Volume)
	assert.Equal(t, 40, z.MutedVolumeCache())

	muteEvents := drainEvents(events, 2)
	assertHasFieldEvent(t, muteEvents, domain.FieldVolume, 0)
	assertHasFieldEvent(t, muteEvents, domain.FieldMute, true)

	res = s.SetMute(1, false)
	require.True(t, res.IsOk())
	z, _ = res.Value()
	assert.False(t, z.Muted)
	assert.Equal(t, 40, z.Volume)

	unmuteEvents := drainEvents(events, 2)
	assertHasFieldEvent(t, unmuteEvents, domain.FieldVolume, 40)
	assertHasFieldEvent(t, unmuteEvents, domain.FieldMute, false)
}

func TestSetVolumeWhileMutedOnlyUpdatesCache(t *testing.T) {
	s := newTestStore()
	require.True(t, s.SetMute(1, true).IsOk())
	events := s.Subscribe()

	res := s.SetVolume(1, 77)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 0, z.Volume) // still muted, observable volume unchanged
	assert.Equal(t, 77, z.MutedVolumeCache())

	select {
	case ev := <-events:
		t.Fatalf("expected no event while muted, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	res = s.SetMute(1, false)
	require.True(t, res.IsOk())
	z, _ = res.Value()
	assert.Equal(t, 77, z.Volume)
}

func TestToggleMute(t *testing.T) {
	s := newTestStore()
	res := s.ToggleMute(1)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.True(t, z.Muted)
	assert.Equal(t, 0, z.Volume)

	res = s.ToggleMute(1)
	require.True(t, res.IsOk())
	z, _ = res.Value()
	assert.False(t, z.Muted)
	assert.Equal(t, 40, z.Volume)
}

func drainEvents(ch <-chan domain.ChangeEvent, n int) []domain.ChangeEvent {
	out := make([]domain.ChangeEvent, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(time.Second):
			return out
		}
	}
	return out
}

func assertHasFieldEvent(t *testing.T, events []domain.ChangeEvent, field string, value any) {
	t.Helper()
	for _, ev := range events {
		if ev.Field == field && ev.NewValue == value {
			return
		}
	}
	t.Fatalf("expected an event with field %q and value %v in %+v", field, value, events)
}

func TestNextTrackStopsAtEndWithoutRepeat(t *testing.T) {
	s := newTestStore()
	s.SetTrack(1, domain.Track{Index: 3})
	res := s.NextTrack(1, 3)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 3, z.CurrentTrack.Index)
}

func TestNextTrackWrapsWithRepeat(t *testing.T) {
	s := newTestStore()
	s.SetTrackRepeat(1, true)
	s.SetTrack(1, domain.Track{Index: 3})
	res := s.NextTrack(1, 3)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 1, z.CurrentTrack.Index)
}

func TestPreviousTrackRestartsWhenElapsedPastThreshold(t *testing.T) {
	s := newTestStore()
	s.SetTrack(1, domain.Track{Index: 5})
	res := s.PreviousTrack(1, 3*time.Second)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 5, z.CurrentTrack.Index)
}

func TestPreviousTrackGoesBackWhenWithinThreshold(t *testing.T) {
	s := newTestStore()
	s.SetTrack(1, domain.Track{Index: 5})
	res := s.PreviousTrack(1, time.Second)
	require.True(t, res.IsOk())
	z, _ := res.Value()
	assert.Equal(t, 4, z.CurrentTrack.Index)
}

func TestGetUnknownZoneNotFound(t *testing.T) {
	s := newTestStore()
	res := s.Get(99)
	assert.False(t, res.IsOk())
	assert.Equal(t, "not_found", string(res.Error().Kind))
}

func TestSubscribersReceiveEventsInMutationOrder(t *testing.T) {
	s := newTestStore()
	events := s.Subscribe()

	s.SetVolume(1, 41)
	s.SetVolume(1, 42)
	s.SetVolume(1, 43)

	var got []int
	for i := 0; i < 3; i++ {
		ev := <-events
		got = append(got, ev.NewValue.(int))
	}
	assert.Equal(t, []int{41, 42, 43}, got)
}
