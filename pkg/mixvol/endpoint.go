package mixvol

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Endpoint controls the absolute volume of the default output device on a 0-100 scale
type Endpoint struct {
	logger *zap.SugaredLogger
	device DeviceEndpoint
}

func NewEndpoint(logger *zap.SugaredLogger, device DeviceEndpoint) *Endpoint {
	e := &Endpoint{
		logger: logger.Named("endpoint"),
		device: device,
	}

	e.logger.Debug("Created endpoint instance")

	return e
}

// Level returns the device's master volume as a rounded percentage
func (e *Endpoint) Level() (int, error) {
	scalar, err := e.device.ScalarVolume()
	if err != nil {
		return 0, fmt.Errorf("get master volume: %w", err)
	}

	return scalarToLevel(scalar), nil
}

// SetLevel writes level/100 as the device's master volume
func (e *Endpoint) SetLevel(level int) error {
	if level < 0 || level > 100 {
		return invalidLevel(level)
	}

	if err := e.device.SetScalarVolume(levelToScalar(level)); err != nil {
		return fmt.Errorf("set master volume: %w", err)
	}

	e.logger.Debugw("Adjusted endpoint level", "to", level)

	return nil
}

func (e *Endpoint) Muted() (bool, error) {
	muted, err := e.device.Mute()
	if err != nil {
		return false, fmt.Errorf("get master mute: %w", err)
	}

	return muted, nil
}

func (e *Endpoint) SetMuted(muted bool) error {
	if err := e.device.SetMute(muted); err != nil {
		return fmt.Errorf("set master mute: %w", err)
	}

	e.logger.Debugw("Adjusted endpoint mute", "to", muted)

	return nil
}

func (e *Endpoint) State() (DeviceState, error) {
	raw, err := e.device.RawState()
	if err != nil {
		return 0, fmt.Errorf("get device state: %w", err)
	}

	return deviceStateFromRaw(raw)
}

func (e *Endpoint) String() string {
	level, err := e.Level()
	if err != nil {
		return "<endpoint: unavailable>"
	}

	return fmt.Sprintf("<endpoint: level %d>", level)
}

func scalarToLevel(v float32) int {
	return int(math.Round(float64(v) * 100))
}

func levelToScalar(level int) float32 {
	return float32(level) / 100.0
}
