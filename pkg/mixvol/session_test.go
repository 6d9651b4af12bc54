package mixvol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	device    *fakeDevice
	directory *fakeDirectory
	endpoint  *Endpoint
	resolver  *Resolver
}

func newSessionFixture(endpointLevel int, processes fakeProcesses, handles ...*fakeHandle) *sessionFixture {
	f := &sessionFixture{
		device:    newFakeDevice(endpointLevel),
		directory: &fakeDirectory{handles: handles},
	}
	f.endpoint = NewEndpoint(nopLogger(), f.device)
	f.resolver = NewResolver(nopLogger(), f.endpoint, f.directory, processes)

	return f
}

func TestBindFindsSession(t *testing.T) {
	handle := &fakeHandle{pid: 20, relative: 0.5, muted: true, state: uint32(SessionStateActive)}
	f := newSessionFixture(50, fakeProcesses{10: "explorer.exe", 20: "spotify.exe"},
		&fakeHandle{pid: 10}, handle)

	session, err := f.resolver.Bind("spotify.exe")
	require.NoError(t, err)
	assert.Equal(t, "spotify.exe", session.ProcessName())

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 25, level)

	muted, err := session.Muted()
	require.NoError(t, err)
	assert.True(t, muted)

	state, err := session.State()
	require.NoError(t, err)
	assert.Equal(t, SessionStateActive, state)
}

func TestBindSessionNotFound(t *testing.T) {
	f := newSessionFixture(50, fakeProcesses{10: "explorer.exe"}, &fakeHandle{pid: 10})

	_, err := f.resolver.Bind("spotify.exe")

	var notFound *SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "spotify.exe", notFound.ProcessName)
	assert.Contains(t, err.Error(), "spotify.exe")
}

func TestBindIsCaseSensitive(t *testing.T) {
	f := newSessionFixture(50, fakeProcesses{10: "Spotify.exe"}, &fakeHandle{pid: 10})

	_, err := f.resolver.Bind("spotify.exe")

	var notFound *SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestBindFirstMatchWinsAndReleasesOthers(t *testing.T) {
	other := &fakeHandle{pid: 1}
	first := &fakeHandle{pid: 2, relative: 0.2}
	second := &fakeHandle{pid: 3, relative: 0.8}
	f := newSessionFixture(100, fakeProcesses{1: "game.exe", 2: "chrome.exe", 3: "chrome.exe"}, other, first, second)

	session, err := f.resolver.Bind("chrome.exe")
	require.NoError(t, err)

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 20, level)

	assert.True(t, other.released)
	assert.False(t, first.released)
	assert.True(t, second.released)

	session.Release()
	assert.True(t, first.released)
}

func TestBindAbortsOnUnresolvableProcess(t *testing.T) {
	exited := &fakeHandle{pid: 99}
	target := &fakeHandle{pid: 20}
	f := newSessionFixture(50, fakeProcesses{20: "spotify.exe"}, exited, target)

	_, err := f.resolver.Bind("spotify.exe")
	require.ErrorIs(t, err, ErrProcessNotFound)

	var notFound *SessionNotFoundError
	assert.False(t, errors.As(err, &notFound))

	assert.True(t, exited.released)
	assert.True(t, target.released)
}

func TestBindSkipsUnresolvableWhenHardened(t *testing.T) {
	exited := &fakeHandle{pid: 99}
	target := &fakeHandle{pid: 20, relative: 1}
	f := newSessionFixture(40, fakeProcesses{20: "spotify.exe"}, exited, target)
	f.resolver.SkipUnresolvable = true

	session, err := f.resolver.Bind("spotify.exe")
	require.NoError(t, err)
	assert.True(t, exited.released)

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 40, level)
}

func TestBindPropagatesEnumerationError(t *testing.T) {
	f := newSessionFixture(50, fakeProcesses{})
	f.directory.err = errDeviceGone

	_, err := f.resolver.Bind("spotify.exe")
	assert.ErrorIs(t, err, errDeviceGone)
}

func TestSessionSetLevelAboveEndpointRaisesEndpoint(t *testing.T) {
	handle := &fakeHandle{pid: 1, relative: 0.5}
	f := newSessionFixture(50, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 25, level)

	require.NoError(t, session.SetLevel(80))

	endpointLevel, err := f.endpoint.Level()
	require.NoError(t, err)
	assert.Equal(t, 80, endpointLevel)
	assert.Equal(t, float32(1), handle.relative)

	level, err = session.Level()
	require.NoError(t, err)
	assert.Equal(t, 80, level)
}

func TestSessionSetLevelWithinEndpoint(t *testing.T) {
	handle := &fakeHandle{pid: 1, relative: 1}
	f := newSessionFixture(60, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	require.NoError(t, session.SetLevel(30))
	assert.InDelta(t, 0.5, handle.relative, 1e-6)

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 30, level)

	endpointLevel, err := f.endpoint.Level()
	require.NoError(t, err)
	assert.Equal(t, 60, endpointLevel)
}

func TestSessionSetLevelZeroWithSilentEndpoint(t *testing.T) {
	handle := &fakeHandle{pid: 1, relative: 0.7}
	f := newSessionFixture(0, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	require.NoError(t, session.SetLevel(0))
	assert.Equal(t, float32(0), handle.relative)
	assert.Zero(t, f.device.volumeWrites)
}

func TestSessionSetLevelRoundTrip(t *testing.T) {
	handle := &fakeHandle{pid: 1}
	f := newSessionFixture(70, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	for v := 0; v <= 70; v++ {
		require.NoError(t, session.SetLevel(v))

		got, err := session.Level()
		require.NoError(t, err)
		assert.InDelta(t, v, got, 1, "level %d", v)
	}
}

func TestSessionSetLevelRejectsOutOfRange(t *testing.T) {
	handle := &fakeHandle{pid: 1, relative: 0.5}
	f := newSessionFixture(50, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	assert.ErrorIs(t, session.SetLevel(-5), ErrInvalidArgument)
	assert.ErrorIs(t, session.SetLevel(101), ErrInvalidArgument)
	assert.Equal(t, float32(0.5), handle.relative)
	assert.Zero(t, f.device.volumeWrites)
}

func TestSessionLevelTracksEndpoint(t *testing.T) {
	handle := &fakeHandle{pid: 1, relative: 0.5}
	f := newSessionFixture(80, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	first, err := session.Level()
	require.NoError(t, err)
	second, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 40, first)

	require.NoError(t, f.endpoint.SetLevel(20))

	level, err := session.Level()
	require.NoError(t, err)
	assert.Equal(t, 10, level)
}

func TestSessionMuteIsIndependentOfEndpoint(t *testing.T) {
	handle := &fakeHandle{pid: 1}
	f := newSessionFixture(50, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	require.NoError(t, session.SetMuted(true))
	assert.True(t, handle.muted)
	assert.False(t, f.device.muted)

	require.NoError(t, session.SetMuted(false))
	muted, err := session.Muted()
	require.NoError(t, err)
	assert.False(t, muted)
}

func TestSessionState(t *testing.T) {
	handle := &fakeHandle{pid: 1}
	f := newSessionFixture(50, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	for raw, want := range map[uint32]SessionState{
		0: SessionStateInactive,
		1: SessionStateActive,
		2: SessionStateExpired,
	} {
		handle.state = raw

		state, err := session.State()
		require.NoError(t, err)
		assert.Equal(t, want, state)
	}

	handle.state = 7
	_, err = session.State()

	var unknown *UnknownStateError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "session", unknown.Kind)
	assert.Equal(t, uint32(7), unknown.Raw)
}

func TestSessionPropagatesHandleErrors(t *testing.T) {
	handle := &fakeHandle{pid: 1}
	f := newSessionFixture(50, fakeProcesses{1: "vlc"}, handle)

	session, err := f.resolver.Bind("vlc")
	require.NoError(t, err)

	handle.err = errDeviceGone

	_, err = session.Level()
	assert.ErrorIs(t, err, errDeviceGone)
	assert.ErrorIs(t, session.SetLevel(10), errDeviceGone)
	assert.ErrorIs(t, session.SetMuted(true), errDeviceGone)

	_, err = session.State()
	assert.ErrorIs(t, err, errDeviceGone)
}
