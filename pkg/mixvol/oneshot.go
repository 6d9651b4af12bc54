package mixvol

import (
	"fmt"
)

// TargetStatus is a snapshot of a single target after an adjustment
type TargetStatus struct {
	Target string
	Level  int
	Muted  bool
	State  fmt.Stringer
}

func (s TargetStatus) String() string {
	return fmt.Sprintf("%s: level %d, muted %t, %s", s.Target, s.Level, s.Muted, s.State)
}

// Adjust applies the optional level and mute changes to "master" or a process's session,
// then reports where the target ended up. nil arguments leave that property alone
func Adjust(audio *Audio, target string, level *int, muted *bool) (TargetStatus, error) {
	if target == masterTargetName {
		return adjustEndpoint(audio.Endpoint, level, muted)
	}

	session, err := audio.Resolver.Bind(target)
	if err != nil {
		return TargetStatus{}, fmt.Errorf("bind %s: %w", target, err)
	}
	defer session.Release()

	status := TargetStatus{Target: target}

	if err := applyAdjustment(session, level, muted); err != nil {
		return status, err
	}

	state, err := session.State()
	if err != nil {
		return status, fmt.Errorf("get session state: %w", err)
	}

	status.State = state

	return fillStatus(status, session)
}

func adjustEndpoint(endpoint *Endpoint, level *int, muted *bool) (TargetStatus, error) {
	status := TargetStatus{Target: masterTargetName}

	if err := applyAdjustment(endpoint, level, muted); err != nil {
		return status, err
	}

	state, err := endpoint.State()
	if err != nil {
		return status, fmt.Errorf("get endpoint state: %w", err)
	}

	status.State = state

	return fillStatus(status, endpoint)
}

func applyAdjustment(control volumeControl, level *int, muted *bool) error {
	if level != nil {
		if err := control.SetLevel(*level); err != nil {
			return fmt.Errorf("set level: %w", err)
		}
	}

	if muted != nil {
		if err := control.SetMuted(*muted); err != nil {
			return fmt.Errorf("set mute: %w", err)
		}
	}

	return nil
}

func fillStatus(status TargetStatus, control volumeControl) (TargetStatus, error) {
	level, err := control.Level()
	if err != nil {
		return status, fmt.Errorf("get level: %w", err)
	}

	muted, err := control.Muted()
	if err != nil {
		return status, fmt.Errorf("get mute: %w", err)
	}

	status.Level = level
	status.Muted = muted

	return status, nil
}
