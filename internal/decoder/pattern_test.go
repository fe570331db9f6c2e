package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatchLiteralAndCapture(t *testing.T) {
	p := ParsePattern("zone/{zoneIndex}/volume/set")
	caps, ok := p.Match([]string{"zone", "3", "volume", "set"})
	require.True(t, ok)
	assert.Equal(t, "3", caps["zoneIndex"])
}

func TestPatternMatchCaseInsensitiveLiteral(t *testing.T) {
	p := ParsePattern("zone/{zoneIndex}/volume/set")
	_, ok := p.Match([]string{"ZONE", "3", "VOLUME", "SET"})
	assert.True(t, ok)
}

func TestPatternMatchWrongLengthFails(t *testing.T) {
	p := ParsePattern("zone/{zoneIndex}/volume/set")
	_, ok := p.Match([]string{"zone", "3", "volume"})
	assert.False(t, ok)
}

func TestPatternMatchLiteralMismatchFails(t *testing.T) {
	p := ParsePattern("zone/{zoneIndex}/volume/set")
	_, ok := p.Match([]string{"client", "3", "volume", "set"})
	assert.False(t, ok)
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := &Registry[string]{}
	r.Register("zone/{zoneIndex}/volume/set", "specific")
	r.Register("zone/{zoneIndex}/{field}", "generic")

	factory, caps, ok := r.Lookup([]string{"zone", "1", "volume", "set"})
	require.True(t, ok)
	assert.Equal(t, "specific", factory)
	assert.Equal(t, "1", caps["zoneIndex"])
}

func TestRegistryNoMatch(t *testing.T) {
	r := &Registry[string]{}
	r.Register("zone/{zoneIndex}/volume/set", "specific")

	_, _, ok := r.Lookup([]string{"client", "1", "volume", "set"})
	assert.False(t, ok)
}

func TestSplitSegmentsDropsEmpties(t *testing.T) {
	assert.Equal(t, []string{"snapdog", "zone", "1"}, SplitSegments("/snapdog//zone/1/"))
}
