package mixvol

import (
	"errors"

	"go.uber.org/zap"
)

var errDeviceGone = errors.New("device gone")

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type fakeDevice struct {
	volume float32
	muted  bool
	state  uint32
	err    error

	volumeWrites int
}

func newFakeDevice(level int) *fakeDevice {
	return &fakeDevice{volume: float32(level) / 100, state: uint32(DeviceStateActive)}
}

func (d *fakeDevice) ScalarVolume() (float32, error) { return d.volume, d.err }

func (d *fakeDevice) SetScalarVolume(v float32) error {
	if d.err != nil {
		return d.err
	}
	d.volume = v
	d.volumeWrites++
	return nil
}

func (d *fakeDevice) Mute() (bool, error) { return d.muted, d.err }

func (d *fakeDevice) SetMute(muted bool) error {
	if d.err != nil {
		return d.err
	}
	d.muted = muted
	return nil
}

func (d *fakeDevice) RawState() (uint32, error) { return d.state, d.err }

type fakeHandle struct {
	pid      uint32
	relative float32
	muted    bool
	state    uint32
	err      error

	released bool
}

func (h *fakeHandle) ProcessID() (uint32, error)       { return h.pid, nil }
func (h *fakeHandle) RelativeVolume() (float32, error) { return h.relative, h.err }

func (h *fakeHandle) SetRelativeVolume(v float32) error {
	if h.err != nil {
		return h.err
	}
	h.relative = v
	return nil
}

func (h *fakeHandle) Mute() (bool, error) { return h.muted, h.err }

func (h *fakeHandle) SetMute(muted bool) error {
	if h.err != nil {
		return h.err
	}
	h.muted = muted
	return nil
}

func (h *fakeHandle) RawState() (uint32, error) { return h.state, h.err }
func (h *fakeHandle) Release()                  { h.released = true }

type fakeDirectory struct {
	handles []*fakeHandle
	err     error

	enumerations int
}

func (d *fakeDirectory) Enumerate() ([]SessionHandle, error) {
	d.enumerations++
	if d.err != nil {
		return nil, d.err
	}

	handles := make([]SessionHandle, 0, len(d.handles))
	for _, h := range d.handles {
		handles = append(handles, h)
	}
	return handles, nil
}

// fakeProcesses maps pids to names; unknown pids are reported as exited
type fakeProcesses map[uint32]string

func (p fakeProcesses) ResolveName(pid uint32) (string, error) {
	name, ok := p[pid]
	if !ok {
		return "", ErrProcessNotFound
	}
	return name, nil
}

type fakeBackend struct {
	device    *fakeDevice
	directory *fakeDirectory

	released bool
}

func (b *fakeBackend) DefaultEndpoint() DeviceEndpoint    { return b.device }
func (b *fakeBackend) SessionDirectory() SessionDirectory { return b.directory }

func (b *fakeBackend) Release() error {
	b.released = true
	return nil
}

// Compile-time checks.
var (
	_ DeviceEndpoint   = (*fakeDevice)(nil)
	_ SessionHandle    = (*fakeHandle)(nil)
	_ SessionDirectory = (*fakeDirectory)(nil)
	_ ProcessDirectory = fakeProcesses(nil)
	_ AudioBackend     = (*fakeBackend)(nil)
)
