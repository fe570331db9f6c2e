package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdog-io/integration-core/internal/domain"
)

func TestDecodeMQTTTopicPlayBare(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "snapdog/zone/1/play", nil)
	require.NoError(t, err)
	play, ok := cmd.(domain.PlayZone)
	require.True(t, ok)
	assert.Equal(t, domain.ZoneIndex(1), play.Zone)
	assert.False(t, play.HasTrack)
	assert.False(t, play.HasURL)
}

func TestDecodeMQTTTopicPlayTrack(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "snapdog/zone/2/play", []byte("track 5"))
	require.NoError(t, err)
	play := cmd.(domain.PlayZone)
	assert.True(t, play.HasTrack)
	assert.Equal(t, 5, play.Track)
}

func TestDecodeMQTTTopicVolumeSetSuffixStripped(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "snapdog/zone/1/volume/set", []byte("42"))
	require.NoError(t, err)
	v := cmd.(domain.SetZoneVolume)
	assert.Equal(t, 42, v.Delta.Value)
	assert.True(t, v.Delta.Absolute)
}

func TestDecodeMQTTTopicUnknownTopicNoCommandNoError(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "snapdog/zone/1/unknown_thing", nil)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestDecodeMQTTTopicWrongBaseNoCommand(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "otherbase/zone/1/play", nil)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestDecodeMQTTTopicClientVolumeOutOfRangeErrors(t *testing.T) {
	_, err := DecodeMQTTTopic("snapdog", "snapdog/client/1/volume", []byte("150"))
	assert.Error(t, err)
}

func TestDecodeMQTTTopicClientMuteToggle(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "snapdog/client/3/mute_toggle", nil)
	require.NoError(t, err)
	m := cmd.(domain.SetClientMute)
	assert.Equal(t, domain.ClientIndex(3), m.Client)
	assert.Equal(t, domain.MuteToggle, m.Action)
}

func TestDecodeMQTTTopicClientZoneAssignment(t *testing.T) {
	cmd, err := DecodeMQTTTopic("snapdog", "snapdog/client/2/zone", []byte("4"))
	require.NoError(t, err)
	a := cmd.(domain.AssignClientZone)
	assert.True(t, a.HasZone)
	assert.Equal(t, domain.ZoneIndex(4), a.Zone)
}
