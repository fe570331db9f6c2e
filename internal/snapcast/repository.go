// Package snapcast implements the Snapcast state repository, the
// JSON-RPC client, and the service that bridges between them and the
// rest of the core.
package snapcast

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
)

// Repository is the thread-safe projection of Snapcast server state: a
// keyed map of clients/groups/streams plus a singly-mutexed server-info
// record, with MAC-based identity resolution against configured clients.
//
// Readers are effectively lock-free: RWMutex read locks are cheap and
// held only for the map lookup + value copy, never across a callback.
// Writers replace one key at a time (or, for UpdateServerState, compute a
// to-remove set and apply removals then upserts) so concurrent readers
// observe a consistent-per-key, not consistent-globally, view.
type Repository struct {
	mu      sync.RWMutex
	clients map[domain.SnapcastClientID]domain.SnapcastClient
	groups  map[domain.GroupID]domain.SnapcastGroup
	streams map[domain.StreamID]domain.Stream

	infoMu sync.RWMutex
	info   domain.ServerInfo

	// macIndex maps canonicalised MAC -> Snapcast client id, rebuilt on
	// UpdateServerState and updated by UpdateClient/RemoveClient, to keep
	// GetClientByIndex's MAC lookup
	// O(1) instead of O(clients) per call.
	macIndex map[domain.MacAddress]domain.SnapcastClientID

	// configuredMacs maps ClientIndex -> configured MAC, supplied at
	// construction from the immutable config, used by GetClientByIndex.
	configuredMacs map[domain.ClientIndex]domain.MacAddress

	logger *zap.Logger
}

// NewRepository builds an empty repository. configuredMacs maps each
// configured ClientIndex to its (possibly empty) configured MAC address.
func NewRepository(configuredMacs map[domain.ClientIndex]domain.MacAddress, logger *zap.Logger) *Repository {
	return &Repository{
		clients:        make(map[domain.SnapcastClientID]domain.SnapcastClient),
		groups:         make(map[domain.GroupID]domain.SnapcastGroup),
		streams:        make(map[domain.StreamID]domain.Stream),
		macIndex:       make(map[domain.MacAddress]domain.SnapcastClientID),
		configuredMacs: configuredMacs,
		logger:         logger,
	}
}

// Snapshot is a full Snapcast server state as returned by Server.GetStatus.
type Snapshot struct {
	Clients []domain.SnapcastClient
	Groups  []domain.SnapcastGroup
	Streams []domain.Stream
	Info    domain.ServerInfo
}

// UpdateServerState atomically replaces the keyed collections from a full
// snapshot: to_remove = current_keys - new_keys, removals applied first,
// then upserts.
func (r *Repository) UpdateServerState(snap Snapshot) {
	r.mu.Lock()
	newClients := make(map[domain.SnapcastClientID]domain.SnapcastClient, len(snap.Clients))
	for _, c := range snap.Clients {
		newClients[c.ID] = c
	}
	for id := range r.clients {
		if _, ok := newClients[id]; !ok {
			delete(r.clients, id)
		}
	}
	for id, c := range newClients {
		r.clients[id] = c
	}

	newGroups := make(map[domain.GroupID]domain.SnapcastGroup, len(snap.Groups))
	for _, g := range snap.Groups {
		newGroups[g.ID] = g
	}
	for id := range r.groups {
		if _, ok := newGroups[id]; !ok {
			delete(r.groups, id)
		}
	}
	for id, g := range newGroups {
		r.groups[id] = g
	}

	newStreams := make(map[domain.StreamID]domain.Stream, len(snap.Streams))
	for _, s := range snap.Streams {
		newStreams[s.ID] = s
	}
	for id := range r.streams {
		if _, ok := newStreams[id]; !ok {
			delete(r.streams, id)
		}
	}
	for id, s := range newStreams {
		r.streams[id] = s
	}

	r.rebuildMacIndexLocked()
	r.mu.Unlock()

	r.infoMu.Lock()
	r.info = snap.Info
	r.infoMu.Unlock()
}

func (r *Repository) rebuildMacIndexLocked() {
	r.macIndex = make(map[domain.MacAddress]domain.SnapcastClientID, len(r.clients))
	for id, c := range r.clients {
		if c.MAC != "" {
			r.macIndex[c.MAC] = id
		}
	}
}

// UpdateClient upserts a single client record.
func (r *Repository) UpdateClient(c domain.SnapcastClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
	if c.MAC != "" {
		r.macIndex[c.MAC] = c.ID
	}
}

// RemoveClient deletes a client record by id.
func (r *Repository) RemoveClient(id domain.SnapcastClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		delete(r.macIndex, c.MAC)
	}
	delete(r.clients, id)
}

// UpdateGroup upserts a single group record.
func (r *Repository) UpdateGroup(g domain.SnapcastGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g
}

// RemoveGroup deletes a group record by id.
func (r *Repository) RemoveGroup(id domain.GroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, id)
}

// UpdateStream upserts a single stream record.
func (r *Repository) UpdateStream(s domain.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.ID] = s
}

// RemoveStream deletes a stream record by id.
func (r *Repository) RemoveStream(id domain.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

// GetClient looks up a Snapcast client by id.
func (r *Repository) GetClient(id domain.SnapcastClientID) (domain.SnapcastClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// GetGroup looks up a Snapcast group by id.
func (r *Repository) GetGroup(id domain.GroupID) (domain.SnapcastGroup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// GetStream looks up a Snapcast stream by id.
func (r *Repository) GetStream(id domain.StreamID) (domain.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	return s, ok
}

// AllGroups returns a snapshot slice of every currently known group.
func (r *Repository) AllGroups() []domain.SnapcastGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SnapcastGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

// ServerInfo returns the cached server-info record.
func (r *Repository) ServerInfo() domain.ServerInfo {
	r.infoMu.RLock()
	defer r.infoMu.RUnlock()
	return r.info
}

// GetClientByIndex resolves a configured ClientIndex's MAC to the
// Snapcast client whose MAC matches case-insensitively, returning absent
// if no MAC is configured for that index or no Snapcast client matches.
// Mismatches are never an error — only logged at warning.
func (r *Repository) GetClientByIndex(idx domain.ClientIndex) (domain.SnapcastClient, bool) {
	mac, ok := r.configuredMacs[idx]
	if !ok || mac == "" {
		return domain.SnapcastClient{}, false
	}
	norm := domain.NormalizeMac(string(mac))

	r.mu.RLock()
	id, ok := r.macIndex[norm]
	if !ok {
		r.mu.RUnlock()
		r.logger.Warn("no Snapcast client matches configured MAC",
			zap.Int("clientIndex", int(idx)), zap.String("mac", string(norm)))
		return domain.SnapcastClient{}, false
	}
	c := r.clients[id]
	r.mu.RUnlock()
	return c, true
}

// GetClientIndexBySnapcastID performs the reverse resolution: Snapcast
// client id -> configured ClientIndex, via MAC.
func (r *Repository) GetClientIndexBySnapcastID(id domain.SnapcastClientID) (domain.ClientIndex, bool) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok || c.MAC == "" {
		return 0, false
	}
	for idx, mac := range r.configuredMacs {
		if strings.EqualFold(string(mac), string(c.MAC)) {
			return idx, true
		}
	}
	return 0, false
}
