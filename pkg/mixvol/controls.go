package mixvol

import (
	"fmt"
	"regexp"
	"strconv"
)

// ControlAction is what a physical control asks for
type ControlAction int

const (
	// ActionStepUp and ActionStepDown move the level by the configured step (rotary encoders)
	ActionStepUp ControlAction = iota
	ActionStepDown

	// ActionSet moves the level to ControlEvent.Value (sliders)
	ActionSet

	// ActionToggleMute flips the mute flag (encoder push switch)
	ActionToggleMute
)

// ControlEvent represents a single knob, slider or button event captured by mixvol
type ControlEvent struct {
	ControlID int
	Action    ControlAction
	Value     int // 0-100, only meaningful for ActionSet
}

// ControlIO is a source of control events from a physical mixer
type ControlIO interface {
	Start() error
	Stop()

	// SubscribeToControlEvents returns an unbuffered channel that receives every control event
	SubscribeToControlEvents() chan ControlEvent
}

// encoder firmware prints one line per detent or press, e.g. "0cw", "1acw", "1sw"
var encoderLinePattern = regexp.MustCompile(`^(\d{1,3})(cw|acw|sw)\r?\n?$`)

// ParseEncoderLine parses a single line of the rotary encoder protocol
func ParseEncoderLine(line string) (ControlEvent, error) {
	match := encoderLinePattern.FindStringSubmatch(line)
	if match == nil {
		return ControlEvent{}, fmt.Errorf("malformed encoder line %q", line)
	}

	controlID, err := strconv.Atoi(match[1])
	if err != nil {
		return ControlEvent{}, fmt.Errorf("parse encoder index %q: %w", match[1], err)
	}

	event := ControlEvent{ControlID: controlID}

	switch match[2] {
	case "cw":
		event.Action = ActionStepUp
	case "acw":
		event.Action = ActionStepDown
	case "sw":
		event.Action = ActionToggleMute
	}

	return event, nil
}

func (a ControlAction) String() string {
	switch a {
	case ActionStepUp:
		return "step up"
	case ActionStepDown:
		return "step down"
	case ActionSet:
		return "set"
	case ActionToggleMute:
		return "toggle mute"
	default:
		return "unknown"
	}
}
