package domain

import "github.com/google/uuid"

// Command is the tagged union of every operation the core can dispatch.
// Each variant carries its target (a ZoneIndex or ClientIndex) and a
// Source. Handlers are resolved by the bus one-per-concrete-type (see
// internal/commandbus), replacing reflection-based dispatch with an
// explicit type switch.
type Command interface {
	CommandSource() Source
	CorrelationID() string
}

type CommandBase struct {
	Source      Source
	correlation string
}

func (b CommandBase) CommandSource() Source  { return b.Source }
func (b CommandBase) CorrelationID() string { return b.correlation }

// --- Zone commands ---

type PlayZone struct {
	CommandBase
	Zone ZoneIndex
	// Payload variants: bare play, play a specific track, or play a URL.
	HasTrack bool
	Track    int
	HasURL   bool
	URL      string
}

type PauseZone struct {
	CommandBase
	Zone ZoneIndex
}

type StopZone struct {
	CommandBase
	Zone ZoneIndex
}

type NextTrack struct {
	CommandBase
	Zone ZoneIndex
}

type PreviousTrack struct {
	CommandBase
	Zone ZoneIndex
}

type NextPlaylist struct {
	CommandBase
	Zone ZoneIndex
}

type PreviousPlaylist struct {
	CommandBase
	Zone ZoneIndex
}

// VolumeDelta describes a relative-or-absolute zone/client volume change,
// as produced by the `volume` command's payload grammar ("75", "+", "-",
// "+5", "-5").
type VolumeDelta struct {
	Absolute    bool
	Value       int // absolute target, or the magnitude of a relative step
	Relative    bool
	Negative    bool
	DefaultStep bool // true when payload was bare "+"/"-" with no magnitude
}

type SetZoneVolume struct {
	CommandBase
	Zone  ZoneIndex
	Delta VolumeDelta
}

type VolumeUpZone struct {
	CommandBase
	Zone ZoneIndex
	Step int
}

type VolumeDownZone struct {
	CommandBase
	Zone ZoneIndex
	Step int
}

type MuteAction int

const (
	MuteOn MuteAction = iota
	MuteOff
	MuteToggle
)

type SetZoneMute struct {
	CommandBase
	Zone   ZoneIndex
	Action MuteAction
}

type SetTrackRepeat struct {
	CommandBase
	Zone   ZoneIndex
	Action MuteAction // reused on/off/toggle vocabulary
}

type SetPlaylistShuffle struct {
	CommandBase
	Zone   ZoneIndex
	Action MuteAction
}

type SetPlaylistRepeat struct {
	CommandBase
	Zone   ZoneIndex
	Action MuteAction
}

type SetTrack struct {
	CommandBase
	Zone  ZoneIndex
	Track int
}

type SetPlaylist struct {
	CommandBase
	Zone     ZoneIndex
	Playlist int
}

// --- Client commands ---

type SetClientVolume struct {
	CommandBase
	Client ClientIndex
	Volume int
}

type SetClientMute struct {
	CommandBase
	Client ClientIndex
	Action MuteAction
}

type AssignClientZone struct {
	CommandBase
	Client       ClientIndex
	HasZone      bool
	Zone         ZoneIndex
}

type SetClientLatency struct {
	CommandBase
	Client    ClientIndex
	LatencyMs int
}

// NewBase constructs the embeddable base carrying a command's source and a
// fresh correlation id. The id stays on the command; the ChangeEvent(s) the
// command produces carry their own, separate ids (see NewZoneEvent).
func NewBase(source Source) CommandBase {
	return CommandBase{Source: source, correlation: uuid.NewString()}
}
