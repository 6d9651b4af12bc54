package mixvol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/MixyLabs/mixvol/pkg/mixvol/util"
)

const (
	masterTargetName = "master" // default output device volume

	// some targets need to be transformed before their correct audio sessions can be accessed.
	// this prefix identifies those targets to ensure they don't contradict with another similarly-named process
	specialTargetTransformPrefix = "mixvol."

	// targets the currently active window (Windows-only)
	specialTargetCurrentWindow = "current"

	audioFlyoutCooldown = time.Second
)

// volumeControl is what a mapped target can do, implemented by both Endpoint and Session
type volumeControl interface {
	Level() (int, error)
	SetLevel(level int) error
	Muted() (bool, error)
	SetMuted(muted bool) error
}

// mixer applies control events to the endpoint and to lazily bound sessions.
// it is not safe for concurrent use, run owns it exclusively once started
type mixer struct {
	logger *zap.SugaredLogger
	conf   func() *Config
	audio  *Audio

	currentWindowNames func() ([]string, error)
	showFlyout         func() error
	verbose            bool

	sessions             map[string]*Session
	lastAudioFlyoutShown time.Time
}

func newMixer(logger *zap.SugaredLogger, conf func() *Config, audio *Audio) *mixer {
	logger = logger.Named("mixer")

	m := &mixer{
		logger:             logger,
		conf:               conf,
		audio:              audio,
		currentWindowNames: util.GetCurrentWindowProcessNames,
		showFlyout:         ShowAudioFlyout,
		sessions:           make(map[string]*Session),
	}

	logger.Debug("Created mixer instance")

	return m
}

// run handles control events and config reloads until stop is closed
func (m *mixer) run(events <-chan ControlEvent, reloads <-chan bool, stop <-chan struct{}) {
	for {
		select {
		case event := <-events:
			m.handleControlEvent(event)
		case <-reloads:
			m.onConfigReloaded()
		case <-stop:
			m.logger.Debug("Mixer loop stopped")
			return
		}
	}
}

// warmUp binds every mapped process that is already playing so the first event doesn't pay for enumeration
func (m *mixer) warmUp() {
	m.audio.Resolver.SkipUnresolvable = m.conf().SkipExitedProcesses

	m.conf().ControlMapping.iterate(func(_ int, targets []string) {
		for _, target := range targets {
			if target == masterTargetName || m.targetHasSpecialTransform(target) {
				continue
			}

			m.session(target)
		}
	})

	m.logger.Infow("Bound mapped audio sessions", "mixer", m)
}

func (m *mixer) onConfigReloaded() {
	m.logger.Info("Detected config reload, dropping bound audio sessions")

	m.clear()
	m.warmUp()
}

func (m *mixer) handleControlEvent(event ControlEvent) {
	targets, ok := m.conf().ControlMapping.get(event.ControlID)
	if !ok || len(targets) == 0 {
		if m.verbose {
			m.logger.Debugw("Control isn't mapped to anything", "event", event)
		}

		return
	}

	for _, target := range targets {
		switch {
		case target == masterTargetName:
			m.applyTo(target, m.audio.Endpoint, event)
			m.maybeTriggerAudioFlyout()

		case target == specialTargetTransformPrefix+specialTargetCurrentWindow:
			m.applyToCurrentWindow(event)

		case m.targetHasSpecialTransform(target):
			m.logger.Debugw("Unknown special target, ignoring", "target", target)

		default:
			if session := m.session(target); session != nil {
				m.applyTo(target, session, event)
			}
		}
	}
}

func (m *mixer) applyToCurrentWindow(event ControlEvent) {
	processNames, err := m.currentWindowNames()
	if err != nil {
		m.logger.Debugw("Can't get current window process names", "error", err)
		return
	}

	for _, processName := range funk.UniqString(processNames) {
		if session := m.session(processName); session != nil {
			m.applyTo(processName, session, event)
		}
	}
}

func (m *mixer) applyTo(target string, control volumeControl, event ControlEvent) {
	if err := applyControlEvent(control, event, m.conf().Step); err != nil {
		m.logger.Warnw("Failed to apply control event",
			"target", target,
			"event", event,
			"error", err)

		return
	}

	if m.verbose {
		m.logger.Debugw("Applied control event", "target", target, "event", event)
	}
}

// applyControlEvent steps, sets or toggles the control. Stepping clamps to the 0-100 range
func applyControlEvent(control volumeControl, event ControlEvent, step int) error {
	switch event.Action {
	case ActionStepUp, ActionStepDown:
		level, err := control.Level()
		if err != nil {
			return fmt.Errorf("get level: %w", err)
		}

		if event.Action == ActionStepDown {
			step = -step
		}

		next := clampLevel(level + step)
		if next == level {
			return nil
		}

		return control.SetLevel(next)

	case ActionSet:
		return control.SetLevel(clampLevel(event.Value))

	case ActionToggleMute:
		muted, err := control.Muted()
		if err != nil {
			return fmt.Errorf("get mute: %w", err)
		}

		return control.SetMuted(!muted)

	default:
		return fmt.Errorf("unsupported control action %d", event.Action)
	}
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}

	if level > 100 {
		return 100
	}

	return level
}

// session returns a live session for the process, binding a fresh one if the cached
// session expired. nil means the process isn't playing anything right now
func (m *mixer) session(processName string) *Session {
	if cached, ok := m.sessions[processName]; ok {
		state, err := cached.State()
		if err == nil && state != SessionStateExpired {
			return cached
		}

		m.logger.Debugw("Cached session is gone, rebinding", "session", cached, "state", state, "error", err)
		cached.Release()
		delete(m.sessions, processName)
	}

	session, err := m.audio.Resolver.Bind(processName)
	if err != nil {
		var notFound *SessionNotFoundError
		if errors.As(err, &notFound) {
			if m.verbose {
				m.logger.Debugw("No audio session for target", "target", processName)
			}
		} else {
			m.logger.Warnw("Failed to bind audio session", "target", processName, "error", err)
		}

		return nil
	}

	m.sessions[processName] = session

	return session
}

func (m *mixer) maybeTriggerAudioFlyout() {
	if !m.conf().AudioFlyout {
		return
	}

	now := time.Now()
	if m.lastAudioFlyoutShown.Add(audioFlyoutCooldown).After(now) {
		return
	}

	m.logger.Debug("Showing audio flyout for master volume change")

	if err := m.showFlyout(); err != nil {
		m.logger.Warnw("Cannot display audio flyout", "error", err)
	}

	m.lastAudioFlyoutShown = now
}

func (m *mixer) targetHasSpecialTransform(target string) bool {
	return strings.HasPrefix(target, specialTargetTransformPrefix)
}

func (m *mixer) clear() {
	m.logger.Debug("Releasing and clearing all audio sessions")

	for key, session := range m.sessions {
		session.Release()
		delete(m.sessions, key)
	}
}

// release frees every bound session and then the audio backend itself
func (m *mixer) release() error {
	m.clear()

	if err := m.audio.Release(); err != nil {
		return fmt.Errorf("release audio: %w", err)
	}

	return nil
}

func (m *mixer) String() string {
	return fmt.Sprintf("<%d audio sessions>", len(m.sessions))
}
