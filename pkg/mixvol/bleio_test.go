package mixvol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMIDIParseCC(t *testing.T) {
	// header, timestamp, CC on channel 0: controller 1 = 64
	assert.Equal(t, CCMessages{{1, 64}}, MIDIParseCC([]byte{0x80, 0x80, 0xB0, 0x01, 0x40}))

	// two messages in one packet, each with its own timestamp
	assert.Equal(t, CCMessages{{0, 127}, {2, 0}},
		MIDIParseCC([]byte{0x80, 0x80, 0xB0, 0x00, 0x7F, 0x81, 0xB3, 0x02, 0x00}))
}

func TestMIDIParseCCSkipsOtherMessages(t *testing.T) {
	// note on
	assert.Empty(t, MIDIParseCC([]byte{0x80, 0x80, 0x90, 0x3C, 0x40}))

	// no header
	assert.Empty(t, MIDIParseCC([]byte{0x00, 0x80, 0xB0, 0x01, 0x40}))

	// truncated
	assert.Empty(t, MIDIParseCC([]byte{0x80, 0x80, 0xB0, 0x01}))

	assert.Empty(t, MIDIParseCC(nil))
}

func TestCCToControlEvents(t *testing.T) {
	events := ccToControlEvents(CCMessages{{0, 127}, {1, 0}, {2, 64}, {3, 200}}, false)

	assert.Equal(t, []ControlEvent{
		{ControlID: 0, Action: ActionSet, Value: 100},
		{ControlID: 1, Action: ActionSet, Value: 0},
		{ControlID: 2, Action: ActionSet, Value: 50},
	}, events)
}

func TestCCToControlEventsInverted(t *testing.T) {
	events := ccToControlEvents(CCMessages{{0, 127}, {1, 0}}, true)

	assert.Equal(t, []ControlEvent{
		{ControlID: 0, Action: ActionSet, Value: 0},
		{ControlID: 1, Action: ActionSet, Value: 100},
	}, events)
}

func TestEncodeMixyParams(t *testing.T) {
	conf := &Config{}
	conf.MixyParams.ChangeThreshold = 0x0102
	conf.MixyParams.SlowInterval = 500
	conf.MixyParams.FastInterval = 20
	conf.MixyParams.FastTimeout = 0xFFFF

	assert.Equal(t, []byte{0x02, 0x01, 0xF4, 0x01, 0x14, 0x00, 0xFF, 0xFF}, encodeMixyParams(conf))
}
