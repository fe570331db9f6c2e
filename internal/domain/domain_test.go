package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMac(t *testing.T) {
	assert.Equal(t, MacAddress("aa:bb:cc:dd:ee:ff"), NormalizeMac("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, MacAddress("aa:bb:cc:dd:ee:ff"), NormalizeMac("  aa:bb:cc:dd:ee:ff  "))
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0, ClampVolume(-10))
	assert.Equal(t, 100, ClampVolume(150))
	assert.Equal(t, 50, ClampVolume(50))
}

func TestInVolumeRange(t *testing.T) {
	assert.True(t, InVolumeRange(0))
	assert.True(t, InVolumeRange(100))
	assert.False(t, InVolumeRange(-1))
	assert.False(t, InVolumeRange(101))
}

func TestZoneWithGroupAndWithoutGroup(t *testing.T) {
	z := Zone{Index: 1, Name: "Living Room"}
	assert.False(t, z.HasGroup())

	withGroup := z.WithGroup(GroupID("g1"))
	assert.True(t, withGroup.HasGroup())
	assert.Equal(t, GroupID("g1"), withGroup.AssociatedGroupID)
	assert.False(t, z.HasGroup()) // original untouched

	withoutGroup := withGroup.WithoutGroup()
	assert.False(t, withoutGroup.HasGroup())
	assert.Equal(t, GroupID(""), withoutGroup.AssociatedGroupID)
}

func TestClientSnapcastIDBinding(t *testing.T) {
	c := Client{Index: 1, Name: "Speaker"}
	assert.False(t, c.HasSnapcastID())

	bound := c.WithSnapcastID(SnapcastClientID("sc-1"))
	assert.True(t, bound.HasSnapcastID())
	assert.Equal(t, SnapcastClientID("sc-1"), bound.SnapcastClientID)

	unbound := bound.WithoutSnapcastID()
	assert.False(t, unbound.HasSnapcastID())
}

func TestClientZoneAssignment(t *testing.T) {
	c := Client{Index: 1, Name: "Speaker"}
	_, has := c.AssignedZoneIndex()
	assert.False(t, has)

	assigned := c.WithAssignedZone(ZoneIndex(3))
	zone, has := assigned.AssignedZoneIndex()
	require.True(t, has)
	assert.Equal(t, ZoneIndex(3), zone)

	unassigned := assigned.WithUnassignedZone()
	_, has = unassigned.AssignedZoneIndex()
	assert.False(t, has)
}

func TestClientMutedVolumeCache(t *testing.T) {
	c := Client{Index: 1, Name: "Speaker"}
	assert.Equal(t, 0, c.MutedVolumeCache())

	cached := c.WithMutedVolumeCache(70)
	assert.Equal(t, 70, cached.MutedVolumeCache())
}

func TestZoneMutedVolumeCache(t *testing.T) {
	z := Zone{Index: 1, Name: "Living Room"}
	assert.Equal(t, 0, z.MutedVolumeCache())

	cached := z.WithMutedVolumeCache(40)
	assert.Equal(t, 40, cached.MutedVolumeCache())
}

func TestCommandBaseFreshCorrelationPerCall(t *testing.T) {
	a := NewBase(SourceMQTT)
	b := NewBase(SourceMQTT)
	assert.NotEmpty(t, a.CorrelationID())
	assert.NotEmpty(t, b.CorrelationID())
	assert.NotEqual(t, a.CorrelationID(), b.CorrelationID())
	assert.Equal(t, SourceMQTT, a.CommandSource())
}
