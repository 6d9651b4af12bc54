package mixvol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioSharesEndpointWithResolver(t *testing.T) {
	handle := &fakeHandle{pid: 7, relative: 0.5, state: uint32(SessionStateActive)}
	audio, _ := newTestAudio(80, fakeProcesses{7: "spotify.exe"}, handle)

	session, err := audio.Resolver.Bind("spotify.exe")
	require.NoError(t, err)
	defer session.Release()

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 40, level)

	require.NoError(t, audio.Endpoint.SetLevel(40))

	level, err = session.Level()
	require.NoError(t, err)
	assert.Equal(t, 20, level, "session level follows the endpoint")
}

func TestAudioRelease(t *testing.T) {
	audio, backend := newTestAudio(50, fakeProcesses{})

	require.NoError(t, audio.Release())
	assert.True(t, backend.released)
}
