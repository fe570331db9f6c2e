package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies what a ChangeEvent describes.
type EntityKind string

const (
	EntityZone   EntityKind = "zone"
	EntityClient EntityKind = "client"
)

// Field names used by ChangeEvent.Field — kept as a closed vocabulary so
// the publisher side (internal/publisher) can switch on them exhaustively.
const (
	FieldVolume          = "volume"
	FieldMute            = "mute"
	FieldPlaybackState   = "playback_state"
	FieldTrack           = "track"
	FieldPlaylist        = "playlist"
	FieldTrackRepeat     = "track_repeat"
	FieldPlaylistRepeat  = "playlist_repeat"
	FieldPlaylistShuffle = "playlist_shuffle"
	FieldLatency         = "latency"
	FieldName            = "name"
	FieldConnected       = "connected"
	FieldZoneAssignment  = "zone"
	FieldState           = "state" // whole-entity JSON snapshot
)

// ChangeEvent is ephemeral: it is never persisted, only fanned out by the
// stores to the integration coordinator. ID is a fresh correlation id per
// event, so a publisher failure log line can be tied back to the exact
// mutation that produced it.
type ChangeEvent struct {
	ID            string
	Entity        EntityKind
	ZoneIndex     ZoneIndex
	ClientIndex   ClientIndex
	Field         string
	NewValue      any
	PreviousValue any
	HasPrevious   bool
	Timestamp     time.Time
}

// NewZoneEvent builds a ChangeEvent for a zone field.
func NewZoneEvent(idx ZoneIndex, field string, newValue, previous any, hasPrevious bool, now time.Time) ChangeEvent {
	return ChangeEvent{
		ID:            uuid.NewString(),
		Entity:        EntityZone,
		ZoneIndex:     idx,
		Field:         field,
		NewValue:      newValue,
		PreviousValue: previous,
		HasPrevious:   hasPrevious,
		Timestamp:     now,
	}
}

// NewClientEvent builds a ChangeEvent for a client field.
func NewClientEvent(idx ClientIndex, field string, newValue, previous any, hasPrevious bool, now time.Time) ChangeEvent {
	return ChangeEvent{
		ID:            uuid.NewString(),
		Entity:        EntityClient,
		ClientIndex:   idx,
		Field:         field,
		NewValue:      newValue,
		PreviousValue: previous,
		HasPrevious:   hasPrevious,
		Timestamp:     now,
	}
}
