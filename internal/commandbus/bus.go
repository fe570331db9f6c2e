// Package commandbus resolves and runs one handler per concrete
// domain.Command type, translating each into
// zone/client store mutations and, where the change is audible to
// Snapcast, the matching Snapcast service RPC calls.
package commandbus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/clientstore"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/result"
	"github.com/snapdog-io/integration-core/internal/snapcast"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

// defaultPlaylistCount is the ceiling Next/PreviousPlaylist wraps against
// when no media-source integration (out of scope here) has reported the
// real playlist count for a zone.
const defaultPlaylistCount = 1

// Bus never panics: every handler failure is returned as a failed
// result.Result.
type Bus struct {
	zones    *zonestore.Store
	clients  *clientstore.Store
	snapcast *snapcast.Service
	logger   *zap.Logger
}

// New builds a Bus over the zone/client stores and the Snapcast service.
func New(zones *zonestore.Store, clients *clientstore.Store, svc *snapcast.Service, logger *zap.Logger) *Bus {
	return &Bus{zones: zones, clients: clients, snapcast: svc, logger: logger}
}

// Dispatch resolves cmd's concrete type and runs its handler.
func (b *Bus) Dispatch(ctx context.Context, cmd domain.Command) result.Result[struct{}] {
	switch c := cmd.(type) {
	case domain.PlayZone:
		return b.handlePlayZone(ctx, c)
	case domain.PauseZone:
		return b.simpleZoneState(c.Zone, domain.PlaybackPaused)
	case domain.StopZone:
		return b.simpleZoneState(c.Zone, domain.PlaybackStopped)
	case domain.NextTrack:
		return b.handleNextTrack(c)
	case domain.PreviousTrack:
		return b.handlePreviousTrack(c)
	case domain.NextPlaylist:
		return b.toUnit(b.zones.NextPlaylist(c.Zone, defaultPlaylistCount))
	case domain.PreviousPlaylist:
		return b.toUnit(b.zones.PreviousPlaylist(c.Zone, defaultPlaylistCount))
	case domain.SetZoneVolume:
		return b.handleSetZoneVolume(ctx, c)
	case domain.VolumeUpZone:
		return b.handleZoneVolumeStep(ctx, c.Zone, c.Step, true)
	case domain.VolumeDownZone:
		return b.handleZoneVolumeStep(ctx, c.Zone, c.Step, false)
	case domain.SetZoneMute:
		return b.handleSetZoneMute(ctx, c)
	case domain.SetTrackRepeat:
		return b.toUnit(applyMuteAction(c.Action, func(v bool) result.Result[domain.Zone] { return b.zones.SetTrackRepeat(c.Zone, v) }, func() result.Result[domain.Zone] { return b.zones.ToggleTrackRepeat(c.Zone) }))
	case domain.SetPlaylistShuffle:
		return b.toUnit(applyMuteAction(c.Action, func(v bool) result.Result[domain.Zone] { return b.zones.SetPlaylistShuffle(c.Zone, v) }, func() result.Result[domain.Zone] { return b.zones.TogglePlaylistShuffle(c.Zone) }))
	case domain.SetPlaylistRepeat:
		return b.toUnit(applyMuteAction(c.Action, func(v bool) result.Result[domain.Zone] { return b.zones.SetPlaylistRepeat(c.Zone, v) }, func() result.Result[domain.Zone] { return b.zones.TogglePlaylistRepeat(c.Zone) }))
	case domain.SetTrack:
		return b.toUnit(b.zones.SetTrack(c.Zone, domain.Track{Index: c.Track}))
	case domain.SetPlaylist:
		return b.toUnit(b.zones.SetPlaylist(c.Zone, domain.Playlist{Index: c.Playlist}))
	case domain.SetClientVolume:
		return b.handleSetClientVolume(ctx, c)
	case domain.SetClientMute:
		return b.handleSetClientMute(ctx, c)
	case domain.AssignClientZone:
		return b.handleAssignClientZone(ctx, c)
	case domain.SetClientLatency:
		return b.handleSetClientLatency(ctx, c)
	default:
		return result.Err[struct{}](result.KindInternal, fmt.Sprintf("no handler registered for command type %T", cmd))
	}
}

func (b *Bus) toUnit(err interface{ Error() *result.CoreError }) result.Result[struct{}] {
	if ce := err.Error(); ce != nil {
		return result.ErrWrap[struct{}](ce.Kind, ce.Message, ce.Cause)
	}
	return result.Ok(struct{}{})
}

func applyMuteAction(action domain.MuteAction, set func(bool) result.Result[domain.Zone], toggle func() result.Result[domain.Zone]) result.Result[domain.Zone] {
	switch action {
	case domain.MuteOn:
		return set(true)
	case domain.MuteOff:
		return set(false)
	default:
		return toggle()
	}
}

func (b *Bus) simpleZoneState(zone domain.ZoneIndex, state domain.PlaybackState) result.Result[struct{}] {
	return b.toUnit(b.zones.SetPlaybackState(zone, state))
}

func (b *Bus) handlePlayZone(ctx context.Context, c domain.PlayZone) result.Result[struct{}] {
	if c.HasTrack {
		if res := b.zones.SetTrack(c.Zone, domain.Track{Index: c.Track}); !res.IsOk() {
			return b.toUnit(res)
		}
	}
	return b.simpleZoneState(c.Zone, domain.PlaybackPlaying)
}

func (b *Bus) handleNextTrack(c domain.NextTrack) result.Result[struct{}] {
	z, err := b.zones.Get(c.Zone).Unwrap()
	if err != nil {
		return result.Err[struct{}](result.KindNotFound, "zone not found")
	}
	total := 1
	if z.CurrentPlaylist != nil && z.CurrentPlaylist.TrackCount > 0 {
		total = z.CurrentPlaylist.TrackCount
	}
	return b.toUnit(b.zones.NextTrack(c.Zone, total))
}

func (b *Bus) handlePreviousTrack(c domain.PreviousTrack) result.Result[struct{}] {
	// The store's 2s-elapsed policy needs playback position, which lives
	// in the media-source integration (out of scope here); lacking it,
	// previous always goes to the prior track rather than restarting the
	// current one.
	return b.toUnit(b.zones.PreviousTrack(c.Zone, 0))
}

func (b *Bus) handleSetZoneVolume(ctx context.Context, c domain.SetZoneVolume) result.Result[struct{}] {
	z, err := b.zones.Get(c.Zone).Unwrap()
	if err != nil {
		return result.Err[struct{}](result.KindNotFound, "zone not found")
	}
	target := resolveVolumeDelta(c.Delta, z.Volume, 5)
	res := b.zones.SetVolume(c.Zone, target)
	if !res.IsOk() {
		return b.toUnit(res)
	}
	b.propagateZoneVolume(ctx, c.Zone, target)
	return result.Ok(struct{}{})
}

func (b *Bus) handleZoneVolumeStep(ctx context.Context, zone domain.ZoneIndex, step int, up bool) result.Result[struct{}] {
	var res result.Result[domain.Zone]
	if up {
		res = b.zones.VolumeUp(zone, step)
	} else {
		res = b.zones.VolumeDown(zone, step)
	}
	if !res.IsOk() {
		return b.toUnit(res)
	}
	z, _ := res.Value()
	b.propagateZoneVolume(ctx, zone, z.Volume)
	return result.Ok(struct{}{})
}

func resolveVolumeDelta(d domain.VolumeDelta, current, defaultStep int) int {
	if d.Absolute {
		return domain.ClampVolume(d.Value)
	}
	step := d.Value
	if d.DefaultStep || step <= 0 {
		step = defaultStep
	}
	if d.Negative {
		return domain.ClampVolume(current - step)
	}
	return domain.ClampVolume(current + step)
}

// propagateZoneVolume pushes a zone-level volume change to every client
// currently assigned to that zone, since Snapcast has no notion of zone
// volume — only per-client volume. A Zone is a logical grouping over
// Clients.
func (b *Bus) propagateZoneVolume(ctx context.Context, zone domain.ZoneIndex, volume int) {
	for _, c := range b.clients.All() {
		assigned, ok := c.AssignedZoneIndex()
		if !ok || assigned != zone || !c.HasSnapcastID() {
			continue
		}
		if res := b.snapcast.SetClientVolume(ctx, c.SnapcastClientID, volume); !res.IsOk() {
			b.logger.Warn("failed to propagate zone volume to client",
				zap.Int("zone", int(zone)), zap.Int("client", int(c.Index)), zap.Error(res.Error()))
		}
	}
}

func (b *Bus) handleSetZoneMute(ctx context.Context, c domain.SetZoneMute) result.Result[struct{}] {
	res := applyMuteAction(c.Action, func(v bool) result.Result[domain.Zone] { return b.zones.SetMute(c.Zone, v) }, func() result.Result[domain.Zone] { return b.zones.ToggleMute(c.Zone) })
	if !res.IsOk() {
		return b.toUnit(res)
	}
	z, _ := res.Value()
	for _, cl := range b.clients.All() {
		assigned, ok := cl.AssignedZoneIndex()
		if !ok || assigned != c.Zone || !cl.HasSnapcastID() {
			continue
		}
		if r := b.snapcast.SetClientMute(ctx, cl.SnapcastClientID, z.Muted); !r.IsOk() {
			b.logger.Warn("failed to propagate zone mute to client",
				zap.Int("zone", int(c.Zone)), zap.Int("client", int(cl.Index)), zap.Error(r.Error()))
		}
	}
	return result.Ok(struct{}{})
}

func (b *Bus) handleSetClientVolume(ctx context.Context, c domain.SetClientVolume) result.Result[struct{}] {
	res := b.clients.SetVolume(c.Client, c.Volume)
	if !res.IsOk() {
		return b.toUnit(res)
	}
	cl, _ := res.Value()
	if cl.HasSnapcastID() {
		if r := b.snapcast.SetClientVolume(ctx, cl.SnapcastClientID, c.Volume); !r.IsOk() {
			return b.toUnit(r)
		}
	}
	return result.Ok(struct{}{})
}

func (b *Bus) handleSetClientMute(ctx context.Context, c domain.SetClientMute) result.Result[struct{}] {
	res := applyClientMuteAction(c.Action, b.clients, c.Client)
	if !res.IsOk() {
		return b.toUnit(res)
	}
	cl, _ := res.Value()
	if cl.HasSnapcastID() {
		if r := b.snapcast.SetClientMute(ctx, cl.SnapcastClientID, cl.Muted); !r.IsOk() {
			return b.toUnit(r)
		}
	}
	return result.Ok(struct{}{})
}

func applyClientMuteAction(action domain.MuteAction, store *clientstore.Store, idx domain.ClientIndex) result.Result[domain.Client] {
	switch action {
	case domain.MuteOn:
		return store.SetMute(idx, true)
	case domain.MuteOff:
		return store.SetMute(idx, false)
	default:
		return store.ToggleMute(idx)
	}
}

func (b *Bus) handleAssignClientZone(ctx context.Context, c domain.AssignClientZone) result.Result[struct{}] {
	res := b.clients.AssignZone(c.Client, c.Zone, c.HasZone)
	if !res.IsOk() {
		return b.toUnit(res)
	}
	cl, _ := res.Value()
	if !c.HasZone || !cl.HasSnapcastID() {
		return result.Ok(struct{}{})
	}
	zone, err := b.zones.Get(c.Zone).Unwrap()
	if err != nil || !zone.HasGroup() {
		return result.Ok(struct{}{})
	}
	if r := b.snapcast.SetClientGroup(ctx, cl.SnapcastClientID, zone.AssociatedGroupID); !r.IsOk() {
		return b.toUnit(r)
	}
	return result.Ok(struct{}{})
}

func (b *Bus) handleSetClientLatency(ctx context.Context, c domain.SetClientLatency) result.Result[struct{}] {
	res := b.clients.SetLatency(c.Client, c.LatencyMs)
	if !res.IsOk() {
		return b.toUnit(res)
	}
	cl, _ := res.Value()
	if cl.HasSnapcastID() {
		if r := b.snapcast.SetClientLatency(ctx, cl.SnapcastClientID, c.LatencyMs); !r.IsOk() {
			return b.toUnit(r)
		}
	}
	return result.Ok(struct{}{})
}
