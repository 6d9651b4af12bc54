package mixvol

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	sessionCreationLogMessage = "Bound audio session instance"

	sessionStringFormat = "<session: %s, level: %d>"
)

// Resolver binds audio sessions of the endpoint's device by process name
type Resolver struct {
	logger    *zap.SugaredLogger
	endpoint  *Endpoint
	sessions  SessionDirectory
	processes ProcessDirectory

	// SkipUnresolvable makes Bind skip sessions whose process exited mid-scan
	// (ErrProcessNotFound) instead of failing the whole lookup
	SkipUnresolvable bool
}

// NewResolver creates a Resolver. The session directory must belong to the same device as endpoint.
func NewResolver(logger *zap.SugaredLogger, endpoint *Endpoint, sessions SessionDirectory, processes ProcessDirectory) *Resolver {
	return &Resolver{
		logger:    logger.Named("sessions"),
		endpoint:  endpoint,
		sessions:  sessions,
		processes: processes,
	}
}

// Bind scans the live sessions in enumeration order and binds the first one whose
// owning process name equals processName exactly. It returns *SessionNotFoundError
// if none matches. The result is a point-in-time binding: it is not refreshed if the
// process exits or the session list changes afterwards.
func (r *Resolver) Bind(processName string) (*Session, error) {
	handles, err := r.sessions.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate audio sessions: %w", err)
	}

	for idx, handle := range handles {
		name, err := r.resolveName(handle)
		if err != nil {
			if r.SkipUnresolvable && errors.Is(err, ErrProcessNotFound) {
				r.logger.Debugw("Process already exited, skipping session", "sessionIdx", idx, "error", err)
				handle.Release()
				continue
			}

			releaseAll(handles[idx:])
			return nil, fmt.Errorf("resolve session %d process: %w", idx, err)
		}

		if name != processName {
			handle.Release()
			continue
		}

		releaseAll(handles[idx+1:])

		s := &Session{
			logger:      r.logger.Named(processName),
			endpoint:    r.endpoint,
			handle:      handle,
			processName: processName,
		}

		s.logger.Debugw(sessionCreationLogMessage, "sessionIdx", idx)

		return s, nil
	}

	return nil, &SessionNotFoundError{ProcessName: processName}
}

func (r *Resolver) resolveName(handle SessionHandle) (string, error) {
	pid, err := handle.ProcessID()
	if err != nil {
		return "", fmt.Errorf("get session pid: %w", err)
	}

	name, err := r.processes.ResolveName(pid)
	if err != nil {
		return "", fmt.Errorf("resolve pid %d: %w", pid, err)
	}

	return name, nil
}

func releaseAll(handles []SessionHandle) {
	for _, handle := range handles {
		handle.Release()
	}
}

// Session is a single application's audio session, bound by process name.
// Its level is expressed on the same 0-100 scale as the endpoint it plays through.
type Session struct {
	logger      *zap.SugaredLogger
	endpoint    *Endpoint
	handle      SessionHandle
	processName string
}

func (s *Session) ProcessName() string {
	return s.processName
}

// RelativeLevel returns the session volume as a fraction of the endpoint's current volume
func (s *Session) RelativeLevel() (float32, error) {
	relative, err := s.handle.RelativeVolume()
	if err != nil {
		return 0, fmt.Errorf("get session volume: %w", err)
	}

	return relative, nil
}

// Level returns round(relative level * endpoint level). It is derived on every call,
// so it changes whenever the endpoint level does.
func (s *Session) Level() (int, error) {
	relative, err := s.RelativeLevel()
	if err != nil {
		return 0, err
	}

	endpointLevel, err := s.endpoint.Level()
	if err != nil {
		return 0, err
	}

	return int(math.Round(float64(relative) * float64(endpointLevel))), nil
}

// SetLevel sets the session's effective level.
//
// If level is above the endpoint's current level, the session is set to its maximum
// relative volume and the endpoint itself is raised to level. This is the only
// operation through which a Session changes its Endpoint.
// A level of 0 sets a relative volume of 0 without consulting the endpoint level.
func (s *Session) SetLevel(level int) error {
	if level < 0 || level > 100 {
		return invalidLevel(level)
	}

	endpointLevel, err := s.endpoint.Level()
	if err != nil {
		return err
	}

	switch {
	case level > endpointLevel:
		if err := s.setRelative(1); err != nil {
			return err
		}

		if err := s.endpoint.SetLevel(level); err != nil {
			return fmt.Errorf("raise endpoint for session: %w", err)
		}

		s.logger.Debugw("Raised endpoint to fit session level", "from", endpointLevel, "to", level)

	case level == 0:
		if err := s.setRelative(0); err != nil {
			return err
		}

	default:
		if err := s.setRelative(float32(level) / float32(endpointLevel)); err != nil {
			return err
		}
	}

	s.logger.Debugw("Adjusted session level", "to", level)

	return nil
}

func (s *Session) setRelative(v float32) error {
	if err := s.handle.SetRelativeVolume(v); err != nil {
		return fmt.Errorf("set session volume: %w", err)
	}

	return nil
}

func (s *Session) Muted() (bool, error) {
	muted, err := s.handle.Mute()
	if err != nil {
		return false, fmt.Errorf("get session mute: %w", err)
	}

	return muted, nil
}

func (s *Session) SetMuted(muted bool) error {
	if err := s.handle.SetMute(muted); err != nil {
		return fmt.Errorf("set session mute: %w", err)
	}

	s.logger.Debugw("Adjusted session mute", "to", muted)

	return nil
}

func (s *Session) State() (SessionState, error) {
	raw, err := s.handle.RawState()
	if err != nil {
		return 0, fmt.Errorf("get session state: %w", err)
	}

	return sessionStateFromRaw(raw)
}

// Release frees the underlying session handle. The session must not be used afterwards.
func (s *Session) Release() {
	s.handle.Release()
	s.logger.Debug("Released audio session")
}

func (s *Session) String() string {
	level, err := s.Level()
	if err != nil {
		level = -1
	}

	return fmt.Sprintf(sessionStringFormat, s.processName, level)
}
