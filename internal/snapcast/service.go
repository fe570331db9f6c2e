package snapcast

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/clientstore"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/result"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

// Service translates domain operations into Snapcast RPC calls and
// bridges RPC notifications back into the repository (mirrored server
// state) and the zone/client stores (domain-level change events),
// resolving Snapcast identity through the repository's MAC index.
type Service struct {
	repo    *Repository
	rpc     *Client
	clients *clientstore.Store
	zones   *zonestore.Store
	logger  *zap.Logger
}

// NewService wires the service over an already-constructed repository,
// rpc client, and the two domain stores. RegisterNotificationHandlers
// must be called before rpc.Connect.
func NewService(repo *Repository, rpc *Client, clients *clientstore.Store, zones *zonestore.Store, logger *zap.Logger) *Service {
	return &Service{repo: repo, rpc: rpc, clients: clients, zones: zones, logger: logger}
}

// RegisterNotificationHandlers binds every Snapcast notification this core
// understands to a bridge function. Called once at startup, before Connect.
func (s *Service) RegisterNotificationHandlers() {
	s.rpc.OnNotification(NotifyClientOnVolumeChanged, s.onClientVolumeChanged)
	s.rpc.OnNotification(NotifyClientOnLatencyChanged, s.onClientLatencyChanged)
	s.rpc.OnNotification(NotifyClientOnNameChanged, s.onClientNameChanged)
	s.rpc.OnNotification(NotifyClientOnConnect, s.onClientConnect)
	s.rpc.OnNotification(NotifyClientOnDisconnect, s.onClientDisconnect)
	s.rpc.OnNotification(NotifyGroupOnMute, s.onGroupMute)
	s.rpc.OnNotification(NotifyGroupOnStreamChanged, s.onGroupStreamChanged)
	s.rpc.OnNotification(NotifyGroupOnNameChanged, s.onGroupNameChanged)
	s.rpc.OnNotification(NotifyStreamOnUpdate, s.onStreamUpdate)
	s.rpc.OnNotification(NotifyStreamOnProperties, s.onStreamProperties)
	s.rpc.OnNotification(NotifyServerOnUpdate, s.onServerUpdate)
}

// Initialize fetches a full server snapshot and seeds the repository.
// Call after Connect succeeds, and again after every reconnect.
func (s *Service) Initialize(ctx context.Context) result.Result[domain.ServerInfo] {
	var out wireGetStatusResult
	if err := s.rpc.SendRequest(ctx, MethodServerGetStatus, nil, &out); err != nil {
		return result.ErrWrap[domain.ServerInfo](result.KindTransport, "fetch server status", err)
	}
	snap := snapshotFromWire(out.Server)
	s.repo.UpdateServerState(snap)
	return result.Ok(snap.Info)
}

func snapshotFromWire(w wireServer) Snapshot {
	snap := Snapshot{
		Info: domain.ServerInfo{
			Version:     w.Server.Snapserver.Version,
			ProtocolVer: w.Server.Snapserver.ProtocolVersion,
			HostName:    w.Server.Host.Name,
		},
	}
	for _, g := range w.Groups {
		group := domain.SnapcastGroup{
			ID:       domain.GroupID(g.ID),
			Name:     g.Name,
			Muted:    g.Muted,
			StreamID: domain.StreamID(g.StreamID),
		}
		for _, c := range g.Clients {
			group.Clients = append(group.Clients, domain.SnapcastClientID(c.ID))
			snap.Clients = append(snap.Clients, clientFromWire(c, domain.GroupID(g.ID)))
		}
		snap.Groups = append(snap.Groups, group)
	}
	for _, st := range w.Streams {
		snap.Streams = append(snap.Streams, domain.Stream{
			ID:         domain.StreamID(st.ID),
			Status:     domain.StreamStatus(st.Status),
			URI:        st.URI.Raw,
			Properties: st.Properties,
		})
	}
	return snap
}

func clientFromWire(c wireClient, groupID domain.GroupID) domain.SnapcastClient {
	return domain.SnapcastClient{
		ID:        domain.SnapcastClientID(c.ID),
		MAC:       domain.NormalizeMac(c.Host.MAC),
		Name:      c.Config.Name,
		Connected: c.Connected,
		VolumePct: c.Volume.Percent,
		Muted:     c.Volume.Muted,
		LatencyMs: c.Latency,
		GroupID:   groupID,
	}
}

// GetRpcVersion returns the server's reported RPC protocol version.
func (s *Service) GetRpcVersion(ctx context.Context) result.Result[string] {
	var out wireGetRPCVersionResult
	if err := s.rpc.SendRequest(ctx, MethodServerGetRPCVersion, nil, &out); err != nil {
		return result.ErrWrap[string](result.KindTransport, "fetch rpc version", err)
	}
	return result.Ok(fmt.Sprintf("%d.%d.%d", out.Major, out.Minor, out.Patch))
}

// SetClientVolume sets a Snapcast client's volume percentage.
func (s *Service) SetClientVolume(ctx context.Context, id domain.SnapcastClientID, pct int) result.Result[struct{}] {
	if !domain.InVolumeRange(pct) {
		return result.Err[struct{}](result.KindValidation, "volume out of range [0,100]")
	}
	current, _ := s.repo.GetClient(id)
	params := map[string]any{
		"id": string(id),
		"volume": wireClientVolume{
			Percent: pct,
			Muted:   current.Muted,
		},
	}
	if err := s.rpc.SendRequest(ctx, MethodClientSetVolume, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set client volume", err)
	}
	return result.Ok(struct{}{})
}

// SetClientMute mutes or unmutes a Snapcast client, preserving its last
// known volume across the round trip.
func (s *Service) SetClientMute(ctx context.Context, id domain.SnapcastClientID, muted bool) result.Result[struct{}] {
	current, ok := s.repo.GetClient(id)
	if !ok {
		return result.Err[struct{}](result.KindNotFound, "unknown snapcast client")
	}
	params := map[string]any{
		"id": string(id),
		"volume": wireClientVolume{
			Percent: current.VolumePct,
			Muted:   muted,
		},
	}
	if err := s.rpc.SendRequest(ctx, MethodClientSetVolume, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set client mute", err)
	}
	return result.Ok(struct{}{})
}

// SetClientLatency sets a Snapcast client's output latency in milliseconds.
func (s *Service) SetClientLatency(ctx context.Context, id domain.SnapcastClientID, ms int) result.Result[struct{}] {
	if ms < 0 {
		return result.Err[struct{}](result.KindValidation, "latency must be >= 0")
	}
	params := map[string]any{"id": string(id), "latency": ms}
	if err := s.rpc.SendRequest(ctx, MethodClientSetLatency, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set client latency", err)
	}
	return result.Ok(struct{}{})
}

// SetClientName sets a Snapcast client's display name.
func (s *Service) SetClientName(ctx context.Context, id domain.SnapcastClientID, name string) result.Result[struct{}] {
	params := map[string]any{"id": string(id), "name": name}
	if err := s.rpc.SendRequest(ctx, MethodClientSetName, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set client name", err)
	}
	return result.Ok(struct{}{})
}

// SetClientGroup moves a Snapcast client into the given group by adding it
// to that group's membership list (Snapcast has no single "move client"
// RPC; membership is always expressed via Group.SetClients).
func (s *Service) SetClientGroup(ctx context.Context, id domain.SnapcastClientID, groupID domain.GroupID) result.Result[struct{}] {
	group, ok := s.repo.GetGroup(groupID)
	if !ok {
		return result.Err[struct{}](result.KindNotFound, "unknown snapcast group")
	}
	members := make([]string, 0, len(group.Clients)+1)
	found := false
	for _, m := range group.Clients {
		members = append(members, string(m))
		if m == id {
			found = true
		}
	}
	if !found {
		members = append(members, string(id))
	}
	return s.SetGroupClients(ctx, groupID, members)
}

// DeleteClient removes a client from the Snapcast server's roster.
func (s *Service) DeleteClient(ctx context.Context, id domain.SnapcastClientID) result.Result[struct{}] {
	params := map[string]any{"id": string(id)}
	if err := s.rpc.SendRequest(ctx, MethodServerDeleteClient, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "delete client", err)
	}
	s.repo.RemoveClient(id)
	return result.Ok(struct{}{})
}

// SetGroupMute mutes or unmutes an entire group.
func (s *Service) SetGroupMute(ctx context.Context, id domain.GroupID, muted bool) result.Result[struct{}] {
	params := map[string]any{"id": string(id), "mute": muted}
	if err := s.rpc.SendRequest(ctx, MethodGroupSetMute, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set group mute", err)
	}
	return result.Ok(struct{}{})
}

// SetGroupStream assigns a stream to a group.
func (s *Service) SetGroupStream(ctx context.Context, id domain.GroupID, streamID domain.StreamID) result.Result[struct{}] {
	params := map[string]any{"id": string(id), "stream_id": string(streamID)}
	if err := s.rpc.SendRequest(ctx, MethodGroupSetStream, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set group stream", err)
	}
	return result.Ok(struct{}{})
}

// SetGroupName renames a group (used by the reconciliation tick).
func (s *Service) SetGroupName(ctx context.Context, id domain.GroupID, name string) result.Result[struct{}] {
	params := map[string]any{"id": string(id), "name": name}
	if err := s.rpc.SendRequest(ctx, MethodGroupSetName, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set group name", err)
	}
	return result.Ok(struct{}{})
}

// SetGroupClients replaces a group's client membership list wholesale.
func (s *Service) SetGroupClients(ctx context.Context, id domain.GroupID, clientIDs []string) result.Result[struct{}] {
	params := map[string]any{"id": string(id), "clients": clientIDs}
	if err := s.rpc.SendRequest(ctx, MethodGroupSetClients, params, nil); err != nil {
		return result.ErrWrap[struct{}](result.KindTransport, "set group clients", err)
	}
	return result.Ok(struct{}{})
}

// --- notification bridges ---
//
// Every bridge follows the same shape: decode, update the repository
// (the raw Snapcast mirror), resolve to a configured ClientIndex/ZoneIndex, and if
// resolved, push the change into the matching store so it emits a domain
// ChangeEvent. Resolution failure is never an error — it means the
// Snapcast entity isn't one this core's configuration cares about. The
// volume, latency and connect bridges log it at warning; the name and
// disconnect bridges drop it without logging.

func (s *Service) onClientVolumeChanged(raw json.RawMessage) {
	var n notifyClientVolume
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Client.OnVolumeChanged", zap.Error(err))
		return
	}
	id := domain.SnapcastClientID(n.ID)
	c, ok := s.repo.GetClient(id)
	if !ok {
		return
	}
	c.VolumePct = n.Volume.Percent
	c.Muted = n.Volume.Muted
	s.repo.UpdateClient(c)

	idx, ok := s.repo.GetClientIndexBySnapcastID(id)
	if !ok {
		s.logger.Warn("volume change for unconfigured snapcast client", zap.String("id", n.ID))
		return
	}
	s.clients.SetVolume(idx, n.Volume.Percent)
	s.clients.SetMute(idx, n.Volume.Muted)
}

func (s *Service) onClientLatencyChanged(raw json.RawMessage) {
	var n notifyClientLatency
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Client.OnLatencyChanged", zap.Error(err))
		return
	}
	id := domain.SnapcastClientID(n.ID)
	c, ok := s.repo.GetClient(id)
	if !ok {
		return
	}
	c.LatencyMs = n.Latency
	s.repo.UpdateClient(c)

	idx, ok := s.repo.GetClientIndexBySnapcastID(id)
	if !ok {
		s.logger.Warn("latency change for unconfigured snapcast client", zap.String("id", n.ID))
		return
	}
	s.clients.SetLatency(idx, n.Latency)
}

func (s *Service) onClientNameChanged(raw json.RawMessage) {
	var n notifyClientName
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Client.OnNameChanged", zap.Error(err))
		return
	}
	id := domain.SnapcastClientID(n.ID)
	c, ok := s.repo.GetClient(id)
	if !ok {
		return
	}
	c.Name = n.Name
	s.repo.UpdateClient(c)

	idx, ok := s.repo.GetClientIndexBySnapcastID(id)
	if !ok {
		return
	}
	s.clients.SetName(idx, n.Name)
}

func (s *Service) onClientConnect(raw json.RawMessage) {
	var n notifyClientConnection
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Client.OnConnect", zap.Error(err))
		return
	}
	groupID, _ := s.groupIDForClient(n.Client)
	c := clientFromWire(n.Client, groupID)
	c.Connected = true
	s.repo.UpdateClient(c)

	idx, ok := s.repo.GetClientIndexBySnapcastID(c.ID)
	if !ok {
		s.logger.Warn("connect from unconfigured snapcast client", zap.String("id", n.ID), zap.String("mac", string(c.MAC)))
		return
	}
	s.clients.BindSnapcastID(idx, c.ID, true)
	s.clients.SetConnected(idx, true)
}

func (s *Service) onClientDisconnect(raw json.RawMessage) {
	var n notifyClientConnection
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Client.OnDisconnect", zap.Error(err))
		return
	}
	id := domain.SnapcastClientID(n.ID)
	c, ok := s.repo.GetClient(id)
	if ok {
		c.Connected = false
		s.repo.UpdateClient(c)
	}

	idx, ok := s.repo.GetClientIndexBySnapcastID(id)
	if !ok {
		return
	}
	s.clients.SetConnected(idx, false)
}

// groupIDForClient finds the group a raw wire client record belongs to by
// scanning the mirrored groups; the OnConnect payload does not itself
// carry the owning group id.
func (s *Service) groupIDForClient(c wireClient) (domain.GroupID, bool) {
	for _, g := range s.repo.AllGroups() {
		for _, member := range g.Clients {
			if string(member) == c.ID {
				return g.ID, true
			}
		}
	}
	return "", false
}

func (s *Service) onGroupMute(raw json.RawMessage) {
	var n notifyGroupMute
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Group.OnMute", zap.Error(err))
		return
	}
	g, ok := s.repo.GetGroup(domain.GroupID(n.ID))
	if !ok {
		return
	}
	g.Muted = n.Mute
	s.repo.UpdateGroup(g)

	if idx, ok := s.zoneForGroup(domain.GroupID(n.ID)); ok {
		s.zones.SetMute(idx, n.Mute)
	}
}

func (s *Service) onGroupStreamChanged(raw json.RawMessage) {
	var n notifyGroupStream
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Group.OnStreamChanged", zap.Error(err))
		return
	}
	g, ok := s.repo.GetGroup(domain.GroupID(n.ID))
	if !ok {
		return
	}
	g.StreamID = domain.StreamID(n.StreamID)
	s.repo.UpdateGroup(g)
}

func (s *Service) onGroupNameChanged(raw json.RawMessage) {
	var n notifyGroupName
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Group.OnNameChanged", zap.Error(err))
		return
	}
	g, ok := s.repo.GetGroup(domain.GroupID(n.ID))
	if !ok {
		return
	}
	g.Name = n.Name
	s.repo.UpdateGroup(g)
}

func (s *Service) onStreamUpdate(raw json.RawMessage) {
	var n notifyStreamUpdate
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Stream.OnUpdate", zap.Error(err))
		return
	}
	s.repo.UpdateStream(domain.Stream{
		ID:         domain.StreamID(n.Stream.ID),
		Status:     domain.StreamStatus(n.Stream.Status),
		URI:        n.Stream.URI.Raw,
		Properties: n.Stream.Properties,
	})
}

func (s *Service) onStreamProperties(raw json.RawMessage) {
	var n notifyStreamProperties
	if err := json.Unmarshal(raw, &n); err != nil {
		s.logger.Warn("malformed Stream.OnProperties", zap.Error(err))
		return
	}
	st, ok := s.repo.GetStream(domain.StreamID(n.ID))
	if !ok {
		return
	}
	st.Properties = n.Properties
	s.repo.UpdateStream(st)
}

// onServerUpdate re-fetches the whole server status; Snapcast sends this
// when its topology changes in a way no single notification captures
// on reconnect.
func (s *Service) onServerUpdate(_ json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.rpc.requestTimeout)
	defer cancel()
	if res := s.Initialize(ctx); !res.IsOk() {
		s.logger.Warn("failed to reconcile after Server.OnUpdate", zap.Error(res.Error()))
	}
}

// zoneForGroup finds the configured zone currently associated with a
// Snapcast group id.
func (s *Service) zoneForGroup(groupID domain.GroupID) (domain.ZoneIndex, bool) {
	for _, z := range s.zones.All() {
		if z.HasGroup() && z.AssociatedGroupID == groupID {
			return z.Index, true
		}
	}
	return 0, false
}
