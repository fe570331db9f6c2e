// Package zonestore is the authoritative zone state store. It is the
// only writer of Zone state; every successful mutation emits a
// domain.ChangeEvent to every current subscriber, in the order mutations
// were applied.
package zonestore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/result"
)

const defaultVolumeStep = 5

// subscriberBuffer bounds how far a slow subscriber can lag before the
// store blocks on it; emission order is still exact because the store
// emits synchronously while holding its lock (see emitLocked).
const subscriberBuffer = 256

// Store is the authoritative zone state store.
type Store struct {
	mu    sync.Mutex
	zones map[domain.ZoneIndex]domain.Zone

	subsMu sync.Mutex
	subs   []chan domain.ChangeEvent

	logger *zap.Logger
	now    func() time.Time
}

// New builds a Store seeded with one Zone per config entry. Zones are
// created at startup from configuration and destroyed only on shutdown.
func New(zones []domain.Zone, logger *zap.Logger) *Store {
	m := make(map[domain.ZoneIndex]domain.Zone, len(zones))
	for _, z := range zones {
		m[z.Index] = z
	}
	return &Store{zones: m, logger: logger, now: time.Now}
}

// Subscribe registers a new subscriber and returns its event channel.
// Subscriptions live for the lifetime of the coordinator that owns them;
// there is no Unsubscribe because only the coordinator subscribes, at
// startup, once.
func (s *Store) Subscribe() <-chan domain.ChangeEvent {
	ch := make(chan domain.ChangeEvent, subscriberBuffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

// emitLocked sends ev to every subscriber. Called while s.mu is held so
// that, across all goroutines mutating this store, subscribers observe
// events in exactly the order mutations were applied.
func (s *Store) emitLocked(ev domain.ChangeEvent) {
	s.subsMu.Lock()
	subs := s.subs
	s.subsMu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// Get returns the current state of a zone.
func (s *Store) Get(idx domain.ZoneIndex) result.Result[domain.Zone] {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return result.Ok(z)
}

// All returns every configured zone, for the startup full-state publish.
func (s *Store) All() []domain.Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	return out
}

// SetVolume sets the zone's volume to v. Out-of-range values are rejected
// with no state change.
func (s *Store) SetVolume(idx domain.ZoneIndex, v int) result.Result[domain.Zone] {
	if !domain.InVolumeRange(v) {
		return result.Err[domain.Zone](result.KindValidation, "volume out of range [0,100]")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	if z.Muted {
		z = z.WithMutedVolumeCache(v)
		s.zones[idx] = z
		return result.Ok(z)
	}
	if z.Volume == v {
		return result.Ok(z)
	}
	prev := z.Volume
	z.Volume = v
	s.zones[idx] = z
	s.emitLocked(domain.NewZoneEvent(idx, domain.FieldVolume, v, prev, true, s.now()))
	return result.Ok(z)
}

// VolumeUp raises the zone's volume by step, clamped at 100.
func (s *Store) VolumeUp(idx domain.ZoneIndex, step int) result.Result[domain.Zone] {
	if step <= 0 {
		step = defaultVolumeStep
	}
	z, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return s.SetVolume(idx, domain.ClampVolume(z.Volume+step))
}

// VolumeDown lowers the zone's volume by step, clamped at 0.
func (s *Store) VolumeDown(idx domain.ZoneIndex, step int) result.Result[domain.Zone] {
	if step <= 0 {
		step = defaultVolumeStep
	}
	z, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return s.SetVolume(idx, domain.ClampVolume(z.Volume-step))
}

// SetMute mutes or unmutes the zone. Muting caches the current volume and
// zeroes it so downstream consumers see volume 0 while muted; unmuting
// restores the cached volume. Both transitions emit a mute event and, when
// the volume actually changes, a volume event alongside it.
func (s *Store) SetMute(idx domain.ZoneIndex, muted bool) result.Result[domain.Zone] {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	if z.Muted == muted {
		return result.Ok(z)
	}
	prevMuted := z.Muted
	if muted {
		z = z.WithMutedVolumeCache(z.Volume)
		z.Muted = true
		if z.Volume != 0 {
			prevVol := z.Volume
			z.Volume = 0
			s.zones[idx] = z
			s.emitLocked(domain.NewZoneEvent(idx, domain.FieldVolume, 0, prevVol, true, s.now()))
		}
	} else {
		restore := z.MutedVolumeCache()
		z.Muted = false
		if restore != z.Volume {
			prevVol := z.Volume
			z.Volume = restore
			s.zones[idx] = z
			s.emitLocked(domain.NewZoneEvent(idx, domain.FieldVolume, restore, prevVol, true, s.now()))
		}
	}
	s.zones[idx] = z
	s.emitLocked(domain.NewZoneEvent(idx, domain.FieldMute, muted, prevMuted, true, s.now()))
	return result.Ok(z)
}

// ToggleMute flips the zone's mute flag.
func (s *Store) ToggleMute(idx domain.ZoneIndex) result.Result[domain.Zone] {
	z, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return s.SetMute(idx, !z.Muted)
}

// SetPlaybackState sets the zone's transport state.
func (s *Store) SetPlaybackState(idx domain.ZoneIndex, state domain.PlaybackState) result.Result[domain.Zone] {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	if z.PlaybackState == state {
		return result.Ok(z)
	}
	prev := z.PlaybackState
	z.PlaybackState = state
	s.zones[idx] = z
	s.emitLocked(domain.NewZoneEvent(idx, domain.FieldPlaybackState, state, prev, true, s.now()))
	return result.Ok(z)
}

// SetTrack sets the zone's current track index (1-based).
func (s *Store) SetTrack(idx domain.ZoneIndex, track domain.Track) result.Result[domain.Zone] {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	var prev *domain.Track
	if z.CurrentTrack != nil {
		cp := *z.CurrentTrack
		prev = &cp
	}
	t := track
	z.CurrentTrack = &t
	s.zones[idx] = z
	s.emitLocked(domain.NewZoneEvent(idx, domain.FieldTrack, t, prev, prev != nil, s.now()))
	return result.Ok(z)
}

// NextTrack advances to the next track index. Wrapping past the last
// track only happens when TrackRepeat is set; the caller (command
// handler) supplies totalTracks since the store does not own playlist
// contents.
func (s *Store) NextTrack(idx domain.ZoneIndex, totalTracks int) result.Result[domain.Zone] {
	s.mu.Lock()
	z, ok := s.zones[idx]
	if !ok {
		s.mu.Unlock()
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	cur := 0
	if z.CurrentTrack != nil {
		cur = z.CurrentTrack.Index
	}
	next := cur + 1
	if next > totalTracks {
		if !z.TrackRepeat {
			s.mu.Unlock()
			return result.Ok(z)
		}
		next = 1
	}
	s.mu.Unlock()
	return s.SetTrack(idx, domain.Track{Index: next})
}

// PreviousTrack moves to the previous track. elapsed is how long the
// current track has been playing; within the first 2s it goes to the
// actual previous track, otherwise it restarts the current one.
func (s *Store) PreviousTrack(idx domain.ZoneIndex, elapsed time.Duration) result.Result[domain.Zone] {
	s.mu.Lock()
	z, ok := s.zones[idx]
	if !ok {
		s.mu.Unlock()
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	cur := 1
	if z.CurrentTrack != nil {
		cur = z.CurrentTrack.Index
	}
	s.mu.Unlock()

	if elapsed >= 2*time.Second || cur <= 1 {
		return s.SetTrack(idx, domain.Track{Index: cur})
	}
	return s.SetTrack(idx, domain.Track{Index: cur - 1})
}

// SetPlaylist sets the zone's current playlist.
func (s *Store) SetPlaylist(idx domain.ZoneIndex, pl domain.Playlist) result.Result[domain.Zone] {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	var prev *domain.Playlist
	if z.CurrentPlaylist != nil {
		cp := *z.CurrentPlaylist
		prev = &cp
	}
	p := pl
	z.CurrentPlaylist = &p
	s.zones[idx] = z
	s.emitLocked(domain.NewZoneEvent(idx, domain.FieldPlaylist, p, prev, prev != nil, s.now()))
	return result.Ok(z)
}

// NextPlaylist / PreviousPlaylist step the playlist index by delta within
// [1,totalPlaylists], wrapping only if PlaylistRepeat is set.
func (s *Store) NextPlaylist(idx domain.ZoneIndex, totalPlaylists int) result.Result[domain.Zone] {
	return s.stepPlaylist(idx, totalPlaylists, 1)
}

func (s *Store) PreviousPlaylist(idx domain.ZoneIndex, totalPlaylists int) result.Result[domain.Zone] {
	return s.stepPlaylist(idx, totalPlaylists, -1)
}

func (s *Store) stepPlaylist(idx domain.ZoneIndex, totalPlaylists, delta int) result.Result[domain.Zone] {
	s.mu.Lock()
	z, ok := s.zones[idx]
	if !ok {
		s.mu.Unlock()
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	cur := 1
	if z.CurrentPlaylist != nil {
		cur = z.CurrentPlaylist.Index
	}
	repeat := z.PlaylistRepeat
	s.mu.Unlock()

	next := cur + delta
	if next < 1 {
		if !repeat {
			return s.Get(idx)
		}
		next = totalPlaylists
	}
	if next > totalPlaylists {
		if !repeat {
			return s.Get(idx)
		}
		next = 1
	}
	return s.SetPlaylist(idx, domain.Playlist{Index: next})
}

// SetTrackRepeat, ToggleTrackRepeat, SetPlaylistShuffle,
// TogglePlaylistShuffle, SetPlaylistRepeat, TogglePlaylistRepeat follow the
// same idempotent-emit pattern as SetMute.

func (s *Store) SetTrackRepeat(idx domain.ZoneIndex, on bool) result.Result[domain.Zone] {
	return s.setBoolField(idx, domain.FieldTrackRepeat, on, func(z *domain.Zone) *bool { return &z.TrackRepeat })
}

func (s *Store) ToggleTrackRepeat(idx domain.ZoneIndex) result.Result[domain.Zone] {
	z, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return s.SetTrackRepeat(idx, !z.TrackRepeat)
}

func (s *Store) SetPlaylistShuffle(idx domain.ZoneIndex, on bool) result.Result[domain.Zone] {
	return s.setBoolField(idx, domain.FieldPlaylistShuffle, on, func(z *domain.Zone) *bool { return &z.PlaylistShuffle })
}

func (s *Store) TogglePlaylistShuffle(idx domain.ZoneIndex) result.Result[domain.Zone] {
	z, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return s.SetPlaylistShuffle(idx, !z.PlaylistShuffle)
}

func (s *Store) SetPlaylistRepeat(idx domain.ZoneIndex, on bool) result.Result[domain.Zone] {
	return s.setBoolField(idx, domain.FieldPlaylistRepeat, on, func(z *domain.Zone) *bool { return &z.PlaylistRepeat })
}

func (s *Store) TogglePlaylistRepeat(idx domain.ZoneIndex) result.Result[domain.Zone] {
	z, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	return s.SetPlaylistRepeat(idx, !z.PlaylistRepeat)
}

func (s *Store) setBoolField(idx domain.ZoneIndex, field string, on bool, fieldRef func(*domain.Zone) *bool) result.Result[domain.Zone] {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return result.Err[domain.Zone](result.KindNotFound, "zone not found")
	}
	ref := fieldRef(&z)
	if *ref == on {
		return result.Ok(z)
	}
	prev := *ref
	*ref = on
	s.zones[idx] = z
	s.emitLocked(domain.NewZoneEvent(idx, field, on, prev, true, s.now()))
	return result.Ok(z)
}

// SetAssociatedGroup records (or clears) the Snapcast group backing a
// zone. Used by the reconciliation tick; it does not emit a publisher
// field event since the group id is internal bookkeeping, not a
// user-visible outbound field.
func (s *Store) SetAssociatedGroup(idx domain.ZoneIndex, groupID domain.GroupID, has bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[idx]
	if !ok {
		return
	}
	if has {
		z = z.WithGroup(groupID)
	} else {
		z = z.WithoutGroup()
	}
	s.zones[idx] = z
}
