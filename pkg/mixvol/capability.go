package mixvol

// DeviceEndpoint is the OS-level volume control of a single output device.
// Volumes are scalars in [0, 1].
type DeviceEndpoint interface {
	ScalarVolume() (float32, error)
	SetScalarVolume(v float32) error

	Mute() (bool, error)
	SetMute(muted bool) error

	// RawState returns the device's native connection state bitmask
	RawState() (uint32, error)
}

// SessionDirectory lists the live audio sessions of one output device
type SessionDirectory interface {
	// Enumerate returns a snapshot of the currently active sessions, in whatever order
	// the OS reports them. The caller owns every returned handle and must Release it.
	Enumerate() ([]SessionHandle, error)
}

// SessionHandle is the OS-level control of a single audio session.
// Its volume is relative to the owning device's master volume.
type SessionHandle interface {
	ProcessID() (uint32, error)

	RelativeVolume() (float32, error)
	SetRelativeVolume(v float32) error

	Mute() (bool, error)
	SetMute(muted bool) error

	// RawState returns the session's native activity state code
	RawState() (uint32, error)

	// Release frees any OS resources held by the handle
	Release()
}

// ProcessDirectory maps process ids to executable names.
// ResolveName fails with ErrProcessNotFound for stale pids.
type ProcessDirectory interface {
	ResolveName(pid uint32) (string, error)
}

// AudioBackend binds the capabilities of the default output device
type AudioBackend interface {
	DefaultEndpoint() DeviceEndpoint
	SessionDirectory() SessionDirectory

	Release() error
}
