// Package clientstore is the authoritative client state store: the
// mirror image of zonestore, scoped to client fields.
package clientstore

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/result"
)

const subscriberBuffer = 256

// Store is the authoritative client state store.
type Store struct {
	mu      sync.Mutex
	clients map[domain.ClientIndex]domain.Client

	subsMu sync.Mutex
	subs   []chan domain.ChangeEvent

	logger *zap.Logger
	now    func() time.Time
}

// New builds a Store seeded with one Client per config entry.
func New(clients []domain.Client, logger *zap.Logger) *Store {
	m := make(map[domain.ClientIndex]domain.Client, len(clients))
	for _, c := range clients {
		m[c.Index] = c
	}
	return &Store{clients: m, logger: logger, now: time.Now}
}

// Subscribe registers a new subscriber and returns its event channel.
func (s *Store) Subscribe() <-chan domain.ChangeEvent {
	ch := make(chan domain.ChangeEvent, subscriberBuffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) emitLocked(ev domain.ChangeEvent) {
	s.subsMu.Lock()
	subs := s.subs
	s.subsMu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// Get returns the current state of a client.
func (s *Store) Get(idx domain.ClientIndex) result.Result[domain.Client] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	return result.Ok(c)
}

// All returns every configured client.
func (s *Store) All() []domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// GetBySnapcastID finds the client bound to the given Snapcast client id.
func (s *Store) GetBySnapcastID(id domain.SnapcastClientID) (domain.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.HasSnapcastID() && c.SnapcastClientID == id {
			return c, true
		}
	}
	return domain.Client{}, false
}

// SetVolume sets the client's volume, rejecting out-of-range values. While
// the client is muted, setting volume only updates the restore cache, it
// does not unmute.
func (s *Store) SetVolume(idx domain.ClientIndex, v int) result.Result[domain.Client] {
	if !domain.InVolumeRange(v) {
		return result.Err[domain.Client](result.KindValidation, "volume out of range [0,100]")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	if c.Muted {
		c = c.WithMutedVolumeCache(v)
		s.clients[idx] = c
		return result.Ok(c)
	}
	if c.Volume == v {
		return result.Ok(c)
	}
	prev := c.Volume
	c.Volume = v
	s.clients[idx] = c
	s.emitLocked(domain.NewClientEvent(idx, domain.FieldVolume, v, prev, true, s.now()))
	return result.Ok(c)
}

// SetMute mutes or unmutes the client. Muting caches the current volume so
// unmuting can restore it; unmuting applies the cached volume and emits a
// volume event alongside the mute event.
func (s *Store) SetMute(idx domain.ClientIndex, muted bool) result.Result[domain.Client] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	if c.Muted == muted {
		return result.Ok(c)
	}
	prevMuted := c.Muted
	if muted {
		c = c.WithMutedVolumeCache(c.Volume)
		c.Muted = true
	} else {
		restore := c.MutedVolumeCache()
		c.Muted = false
		if restore != c.Volume {
			prevVol := c.Volume
			c.Volume = restore
			s.clients[idx] = c
			s.emitLocked(domain.NewClientEvent(idx, domain.FieldVolume, restore, prevVol, true, s.now()))
		}
	}
	s.clients[idx] = c
	s.emitLocked(domain.NewClientEvent(idx, domain.FieldMute, muted, prevMuted, true, s.now()))
	return result.Ok(c)
}

// ToggleMute flips the client's mute flag.
func (s *Store) ToggleMute(idx domain.ClientIndex) result.Result[domain.Client] {
	c, err := s.Get(idx).Unwrap()
	if err != nil {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	return s.SetMute(idx, !c.Muted)
}

// SetLatency sets the client's output latency. Negative values are
// rejected.
func (s *Store) SetLatency(idx domain.ClientIndex, ms int) result.Result[domain.Client] {
	if ms < 0 {
		return result.Err[domain.Client](result.KindValidation, "latency must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	if c.LatencyMs == ms {
		return result.Ok(c)
	}
	prev := c.LatencyMs
	c.LatencyMs = ms
	s.clients[idx] = c
	s.emitLocked(domain.NewClientEvent(idx, domain.FieldLatency, ms, prev, true, s.now()))
	return result.Ok(c)
}

// SetName sets the client's display name.
func (s *Store) SetName(idx domain.ClientIndex, name string) result.Result[domain.Client] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	if c.Name == name {
		return result.Ok(c)
	}
	prev := c.Name
	c.Name = name
	s.clients[idx] = c
	s.emitLocked(domain.NewClientEvent(idx, domain.FieldName, name, prev, true, s.now()))
	return result.Ok(c)
}

// SetConnected updates the client's connection flag.
func (s *Store) SetConnected(idx domain.ClientIndex, connected bool) result.Result[domain.Client] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	if c.Connected == connected {
		return result.Ok(c)
	}
	prev := c.Connected
	c.Connected = connected
	s.clients[idx] = c
	s.emitLocked(domain.NewClientEvent(idx, domain.FieldConnected, connected, prev, true, s.now()))
	return result.Ok(c)
}

// AssignZone assigns the client to a zone, or clears the assignment when
// has is false, which is a valid unassignment.
func (s *Store) AssignZone(idx domain.ClientIndex, zone domain.ZoneIndex, has bool) result.Result[domain.Client] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return result.Err[domain.Client](result.KindNotFound, "client not found")
	}
	prevZone, hadZone := c.AssignedZoneIndex()
	if has {
		c = c.WithAssignedZone(zone)
	} else {
		c = c.WithUnassignedZone()
	}
	s.clients[idx] = c
	var prevVal any
	if hadZone {
		prevVal = prevZone
	}
	s.emitLocked(domain.NewClientEvent(idx, domain.FieldZoneAssignment, zone, prevVal, hadZone, s.now()))
	return result.Ok(c)
}

// BindSnapcastID records (or clears) the runtime Snapcast client id behind
// a configured client. Internal bookkeeping, not a user-visible field, so
// it does not emit a change event (mirrors zonestore.SetAssociatedGroup).
func (s *Store) BindSnapcastID(idx domain.ClientIndex, id domain.SnapcastClientID, has bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[idx]
	if !ok {
		return
	}
	if has {
		c = c.WithSnapcastID(id)
	} else {
		c = c.WithoutSnapcastID()
	}
	s.clients[idx] = c
}
