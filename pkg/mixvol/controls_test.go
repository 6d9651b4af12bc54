package mixvol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoderLine(t *testing.T) {
	cases := []struct {
		line     string
		expected ControlEvent
	}{
		{"0cw\r\n", ControlEvent{ControlID: 0, Action: ActionStepUp}},
		{"1acw\r\n", ControlEvent{ControlID: 1, Action: ActionStepDown}},
		{"12acw\n", ControlEvent{ControlID: 12, Action: ActionStepDown}},
		{"3sw\r\n", ControlEvent{ControlID: 3, Action: ActionToggleMute}},
		{"255cw", ControlEvent{ControlID: 255, Action: ActionStepUp}},
	}

	for _, tc := range cases {
		event, err := ParseEncoderLine(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.expected, event, tc.line)
	}
}

func TestParseEncoderLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"\r\n",
		"cw\r\n",
		"1234cw\r\n",
		"-1cw\r\n",
		"1ccw\r\n",
		"1CW\r\n",
		"1cw\r\n\n",
		"1|2|3\r\n",
	} {
		_, err := ParseEncoderLine(line)
		assert.Error(t, err, "%q", line)
	}
}

func TestControlActionString(t *testing.T) {
	assert.Equal(t, "step up", ActionStepUp.String())
	assert.Equal(t, "step down", ActionStepDown.String())
	assert.Equal(t, "set", ActionSet.String())
	assert.Equal(t, "toggle mute", ActionToggleMute.String())
	assert.Equal(t, "unknown", ControlAction(9).String())
}
