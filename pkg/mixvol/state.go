package mixvol

// DeviceState is the connection state of an output device.
// The values match the OS bitmask flags; exactly one flag is expected to be set.
type DeviceState uint32

const (
	DeviceStateActive     DeviceState = 0x1
	DeviceStateDisabled   DeviceState = 0x2
	DeviceStateNotPresent DeviceState = 0x4
	DeviceStateUnplugged  DeviceState = 0x8
)

// SessionState is the activity state of an audio session
type SessionState uint32

const (
	SessionStateInactive SessionState = 0
	SessionStateActive   SessionState = 1
	SessionStateExpired  SessionState = 2
)

// multi-flag and zero values are rejected rather than guessed at
func deviceStateFromRaw(raw uint32) (DeviceState, error) {
	switch state := DeviceState(raw); state {
	case DeviceStateActive, DeviceStateDisabled, DeviceStateNotPresent, DeviceStateUnplugged:
		return state, nil
	default:
		return 0, &UnknownStateError{Kind: "device", Raw: raw}
	}
}

func sessionStateFromRaw(raw uint32) (SessionState, error) {
	switch state := SessionState(raw); state {
	case SessionStateInactive, SessionStateActive, SessionStateExpired:
		return state, nil
	default:
		return 0, &UnknownStateError{Kind: "session", Raw: raw}
	}
}

func (s DeviceState) String() string {
	switch s {
	case DeviceStateActive:
		return "active"
	case DeviceStateDisabled:
		return "disabled"
	case DeviceStateNotPresent:
		return "not present"
	case DeviceStateUnplugged:
		return "unplugged"
	default:
		return "unknown"
	}
}

func (s SessionState) String() string {
	switch s {
	case SessionStateInactive:
		return "inactive"
	case SessionStateActive:
		return "active"
	case SessionStateExpired:
		return "expired"
	default:
		return "unknown"
	}
}
