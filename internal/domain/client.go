package domain

// Client is a physical Snapcast endpoint device: identified in
// configuration by MAC address, at runtime by Snapcast's opaque client
// id.
type Client struct {
	Index            ClientIndex
	Name             string
	MacAddress       MacAddress
	SnapcastClientID SnapcastClientID
	hasSnapcastID    bool
	Connected        bool
	Volume           int
	Muted            bool
	// mutedVolumeCache holds the volume to restore on unmute; it is set
	// from the current volume when muting, left alone by a repeated
	// SetMute(true), and updated by SetVolume while muted.
	mutedVolumeCache int
	LatencyMs        int
	AssignedZone     ZoneIndex
	hasAssignedZone  bool
}

// HasSnapcastID reports whether the repository has resolved this client to a live
// Snapcast client id.
func (c Client) HasSnapcastID() bool { return c.hasSnapcastID }

// WithSnapcastID returns a copy of c bound to the given Snapcast client id.
func (c Client) WithSnapcastID(id SnapcastClientID) Client {
	c.SnapcastClientID = id
	c.hasSnapcastID = true
	return c
}

// WithoutSnapcastID returns a copy of c with its Snapcast binding cleared
// (the underlying Snapcast entry disappeared).
func (c Client) WithoutSnapcastID() Client {
	c.SnapcastClientID = ""
	c.hasSnapcastID = false
	return c
}

// AssignedZoneIndex returns the assigned zone and whether one is set.
func (c Client) AssignedZoneIndex() (ZoneIndex, bool) {
	return c.AssignedZone, c.hasAssignedZone
}

// WithAssignedZone returns a copy of c assigned to zone.
func (c Client) WithAssignedZone(zone ZoneIndex) Client {
	c.AssignedZone = zone
	c.hasAssignedZone = true
	return c
}

// WithUnassignedZone returns a copy of c with no zone assignment.
func (c Client) WithUnassignedZone() Client {
	c.AssignedZone = 0
	c.hasAssignedZone = false
	return c
}

// MutedVolumeCache returns the cached pre-mute volume.
func (c Client) MutedVolumeCache() int { return c.mutedVolumeCache }

// WithMutedVolumeCache returns a copy of c with the pre-mute volume cache set.
func (c Client) WithMutedVolumeCache(v int) Client {
	c.mutedVolumeCache = v
	return c
}
