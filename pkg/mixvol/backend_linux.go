package mixvol

import (
	"fmt"
	"net"
	"strconv"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const (
	// PA_VOLUME_NORM, 100% without software amplification
	paVolumeNorm = 0x10000

	// PA_PORT_AVAILABLE_NO
	paPortAvailableNo = 1

	paProcessIDProperty = "application.process.id"
)

type paBackend struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn

	endpoint  *paEndpoint
	directory *paSessionDirectory
}

func newAudioBackend(logger *zap.SugaredLogger) (AudioBackend, error) {
	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("mixvol"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set PulseAudio client name: %w", err)
	}

	b := &paBackend{
		logger: logger.Named("pulse"),
		client: client,
		conn:   conn,
	}

	// bind the default sink once, later default sink changes don't move us
	sinkInfo := proto.GetSinkInfoReply{}
	if err := client.Request(&proto.GetSinkInfo{SinkIndex: proto.Undefined}, &sinkInfo); err != nil {
		b.logger.Warnw("Failed to get default sink info", "error", err)
		_ = conn.Close()
		return nil, fmt.Errorf("get default sink info: %w", err)
	}

	b.endpoint = &paEndpoint{
		client:    client,
		sinkIndex: sinkInfo.SinkIndex,
		channels:  sinkInfo.Channels,
	}
	b.directory = &paSessionDirectory{
		logger:    b.logger,
		client:    client,
		sinkIndex: sinkInfo.SinkIndex,
	}

	b.logger.Debugw("Created PA backend instance",
		"sinkIndex", sinkInfo.SinkIndex,
		"sinkName", sinkInfo.SinkName)

	return b, nil
}

func (b *paBackend) DefaultEndpoint() DeviceEndpoint {
	return b.endpoint
}

func (b *paBackend) SessionDirectory() SessionDirectory {
	return b.directory
}

func (b *paBackend) Release() error {
	if err := b.conn.Close(); err != nil {
		b.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	b.logger.Debug("Released PA backend instance")

	return nil
}

type paEndpoint struct {
	client    *proto.Client
	sinkIndex uint32
	channels  byte
}

func (e *paEndpoint) info() (*proto.GetSinkInfoReply, error) {
	reply := proto.GetSinkInfoReply{}
	if err := e.client.Request(&proto.GetSinkInfo{SinkIndex: e.sinkIndex}, &reply); err != nil {
		return nil, fmt.Errorf("get sink %d info: %w", e.sinkIndex, err)
	}

	return &reply, nil
}

func (e *paEndpoint) ScalarVolume() (float32, error) {
	info, err := e.info()
	if err != nil {
		return 0, err
	}

	return parseChannelVolumes(info.ChannelVolumes), nil
}

func (e *paEndpoint) SetScalarVolume(v float32) error {
	request := proto.SetSinkVolume{
		SinkIndex:      e.sinkIndex,
		ChannelVolumes: createChannelVolumes(e.channels, v),
	}

	return e.client.Request(&request, nil)
}

func (e *paEndpoint) Mute() (bool, error) {
	info, err := e.info()
	if err != nil {
		return false, err
	}

	return info.Mute, nil
}

func (e *paEndpoint) SetMute(muted bool) error {
	return e.client.Request(&proto.SetSinkMute{SinkIndex: e.sinkIndex, Mute: muted}, nil)
}

// RawState reports the sink as an endpoint bitmask: not present once the sink is gone,
// unplugged if its active port says nothing is connected, active otherwise
func (e *paEndpoint) RawState() (uint32, error) {
	reply := proto.GetSinkInfoListReply{}
	if err := e.client.Request(&proto.GetSinkInfoList{}, &reply); err != nil {
		return 0, fmt.Errorf("get sink list: %w", err)
	}

	for _, sink := range reply {
		if sink.SinkIndex != e.sinkIndex {
			continue
		}

		for _, port := range sink.Ports {
			if port.Name == sink.ActivePortName && port.Available == paPortAvailableNo {
				return uint32(DeviceStateUnplugged), nil
			}
		}

		return uint32(DeviceStateActive), nil
	}

	return uint32(DeviceStateNotPresent), nil
}

type paSessionDirectory struct {
	logger    *zap.SugaredLogger
	client    *proto.Client
	sinkIndex uint32
}

// Enumerate lists the sink inputs playing to our sink. Inputs without an owning
// process (e.g. network or loopback streams) are left out.
func (d *paSessionDirectory) Enumerate() ([]SessionHandle, error) {
	reply := proto.GetSinkInputInfoListReply{}
	if err := d.client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		d.logger.Warnw("Failed to get sink input list", "error", err)
		return nil, fmt.Errorf("get sink input list: %w", err)
	}

	handles := []SessionHandle{}

	for _, info := range reply {
		if info.SinkIndex != d.sinkIndex {
			continue
		}

		prop, ok := info.Properties[paProcessIDProperty]
		if !ok {
			d.logger.Debugw("Sink input has no owning process, skipping", "sinkInputIndex", info.SinkInputIndex)
			continue
		}

		pid, err := strconv.ParseUint(prop.String(), 10, 32)
		if err != nil {
			d.logger.Warnw("Failed to parse sink input's process id",
				"sinkInputIndex", info.SinkInputIndex,
				"value", prop.String())

			continue
		}

		handles = append(handles, &paSessionHandle{
			client:         d.client,
			sinkInputIndex: info.SinkInputIndex,
			channels:       info.Channels,
			pid:            uint32(pid),
		})
	}

	return handles, nil
}

type paSessionHandle struct {
	client         *proto.Client
	sinkInputIndex uint32
	channels       byte
	pid            uint32
}

func (h *paSessionHandle) info() (*proto.GetSinkInputInfoReply, error) {
	reply := proto.GetSinkInputInfoReply{}
	if err := h.client.Request(&proto.GetSinkInputInfo{SinkInputIndex: h.sinkInputIndex}, &reply); err != nil {
		return nil, fmt.Errorf("get sink input %d info: %w", h.sinkInputIndex, err)
	}

	return &reply, nil
}

func (h *paSessionHandle) ProcessID() (uint32, error) {
	return h.pid, nil
}

func (h *paSessionHandle) RelativeVolume() (float32, error) {
	info, err := h.info()
	if err != nil {
		return 0, err
	}

	return parseChannelVolumes(info.ChannelVolumes), nil
}

func (h *paSessionHandle) SetRelativeVolume(v float32) error {
	request := proto.SetSinkInputVolume{
		SinkInputIndex: h.sinkInputIndex,
		ChannelVolumes: createChannelVolumes(h.channels, v),
	}

	return h.client.Request(&request, nil)
}

func (h *paSessionHandle) Mute() (bool, error) {
	info, err := h.info()
	if err != nil {
		return false, err
	}

	return info.Muted, nil
}

func (h *paSessionHandle) SetMute(muted bool) error {
	return h.client.Request(&proto.SetSinkInputMute{SinkInputIndex: h.sinkInputIndex, Mute: muted}, nil)
}

// RawState uses the session state codes: 0 corked, 1 playing, 2 gone
func (h *paSessionHandle) RawState() (uint32, error) {
	reply := proto.GetSinkInputInfoListReply{}
	if err := h.client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return 0, fmt.Errorf("get sink input list: %w", err)
	}

	for _, info := range reply {
		if info.SinkInputIndex != h.sinkInputIndex {
			continue
		}

		if info.Corked {
			return uint32(SessionStateInactive), nil
		}

		return uint32(SessionStateActive), nil
	}

	return uint32(SessionStateExpired), nil
}

// sink inputs are owned by the server, there's nothing to free on our side
func (h *paSessionHandle) Release() {}

func createChannelVolumes(channels byte, v float32) proto.ChannelVolumes {
	volumes := make([]uint32, channels)
	for i := range volumes {
		volumes[i] = uint32(v * paVolumeNorm)
	}

	return volumes
}

// mean of all channels, clamped to 1 for amplified streams
func parseChannelVolumes(volumes []uint32) float32 {
	if len(volumes) == 0 {
		return 0
	}

	var total uint64
	for _, volume := range volumes {
		total += uint64(volume)
	}

	v := float32(total) / float32(len(volumes)) / float32(paVolumeNorm)
	if v > 1 {
		return 1
	}

	return v
}
