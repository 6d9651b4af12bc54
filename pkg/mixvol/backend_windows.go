package mixvol

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

const (
	randomGUID = "{1ec920a1-7db8-44ba-9779-e5d28ed9f330}"

	// AUDCLNT_S_NO_CURRENT_PROCESS, in decimal as it shows up in the error text
	noCurrentProcessCode = "143196173"
)

type wcaBackend struct {
	logger *zap.SugaredLogger

	eventCtx *ole.GUID // needed for some session actions to successfully notify other audio consumers

	mmDeviceEnumerator *wca.IMMDeviceEnumerator
	mmDevice           *wca.IMMDevice

	endpoint  *wcaEndpoint
	directory *wcaSessionDirectory
}

func newAudioBackend(logger *zap.SugaredLogger) (AudioBackend, error) {
	b := &wcaBackend{
		logger:   logger.Named("wca"),
		eventCtx: ole.NewGUID(randomGUID),
	}

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// E_FALSE means that the call was redundant.
		const eFalse = 1
		oleError := &ole.OleError{}

		if !errors.As(err, &oleError) || oleError.Code() != eFalse {
			b.logger.Warnw("Failed to call CoInitializeEx", "error", err)
			return nil, fmt.Errorf("call CoInitializeEx: %w", err)
		}

		b.logger.Warn("CoInitializeEx failed with E_FALSE due to redundant invocation")
	}

	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&b.mmDeviceEnumerator,
	); err != nil {
		b.logger.Warnw("Failed to call CoCreateInstance", "error", err)
		return nil, fmt.Errorf("call CoCreateInstance: %w", err)
	}

	if err := b.mmDeviceEnumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &b.mmDevice); err != nil {
		b.logger.Warnw("Failed to call GetDefaultAudioEndpoint", "error", err)
		b.mmDeviceEnumerator.Release()
		return nil, fmt.Errorf("call GetDefaultAudioEndpoint: %w", err)
	}

	var audioEndpointVolume *wca.IAudioEndpointVolume
	if err := b.mmDevice.Activate(wca.IID_IAudioEndpointVolume, wca.CLSCTX_ALL, nil, &audioEndpointVolume); err != nil {
		b.logger.Warnw("Failed to activate AudioEndpointVolume", "error", err)
		b.releaseDevice()
		return nil, fmt.Errorf("activate AudioEndpointVolume: %w", err)
	}

	var audioSessionManager2 *wca.IAudioSessionManager2
	if err := b.mmDevice.Activate(wca.IID_IAudioSessionManager2, wca.CLSCTX_ALL, nil, &audioSessionManager2); err != nil {
		b.logger.Warnw("Failed to activate endpoint as IAudioSessionManager2", "error", err)
		audioEndpointVolume.Release()
		b.releaseDevice()
		return nil, fmt.Errorf("activate IAudioSessionManager2: %w", err)
	}

	b.endpoint = &wcaEndpoint{
		mmDevice:            b.mmDevice,
		audioEndpointVolume: audioEndpointVolume,
		eventCtx:            b.eventCtx,
	}
	b.directory = &wcaSessionDirectory{
		logger:               b.logger,
		audioSessionManager2: audioSessionManager2,
		eventCtx:             b.eventCtx,
	}

	b.logger.Debug("Created WCA backend instance")

	return b, nil
}

func (b *wcaBackend) DefaultEndpoint() DeviceEndpoint {
	return b.endpoint
}

func (b *wcaBackend) SessionDirectory() SessionDirectory {
	return b.directory
}

func (b *wcaBackend) Release() error {
	b.directory.audioSessionManager2.Release()
	b.endpoint.audioEndpointVolume.Release()
	b.releaseDevice()

	ole.CoUninitialize()

	b.logger.Debug("Released WCA backend instance")
	return nil
}

func (b *wcaBackend) releaseDevice() {
	if b.mmDevice != nil {
		b.mmDevice.Release()
	}

	if b.mmDeviceEnumerator != nil {
		b.mmDeviceEnumerator.Release()
	}
}

type wcaEndpoint struct {
	mmDevice            *wca.IMMDevice
	audioEndpointVolume *wca.IAudioEndpointVolume
	eventCtx            *ole.GUID
}

func (e *wcaEndpoint) ScalarVolume() (float32, error) {
	var level float32
	if err := e.audioEndpointVolume.GetMasterVolumeLevelScalar(&level); err != nil {
		return 0, err
	}

	return level, nil
}

func (e *wcaEndpoint) SetScalarVolume(v float32) error {
	return e.audioEndpointVolume.SetMasterVolumeLevelScalar(v, e.eventCtx)
}

func (e *wcaEndpoint) Mute() (bool, error) {
	var muted bool
	if err := e.audioEndpointVolume.GetMute(&muted); err != nil {
		return false, err
	}

	return muted, nil
}

func (e *wcaEndpoint) SetMute(muted bool) error {
	return e.audioEndpointVolume.SetMute(muted, e.eventCtx)
}

// RawState returns the DEVICE_STATE_* bitmask as reported by the device
func (e *wcaEndpoint) RawState() (uint32, error) {
	var state uint32
	if err := e.mmDevice.GetState(&state); err != nil {
		return 0, err
	}

	return state, nil
}

type wcaSessionDirectory struct {
	logger               *zap.SugaredLogger
	audioSessionManager2 *wca.IAudioSessionManager2
	eventCtx             *ole.GUID
}

func (d *wcaSessionDirectory) Enumerate() ([]SessionHandle, error) {
	var sessionEnumerator *wca.IAudioSessionEnumerator

	if err := d.audioSessionManager2.GetSessionEnumerator(&sessionEnumerator); err != nil {
		d.logger.Warnw("Failed to get session enumerator", "error", err)
		return nil, fmt.Errorf("get session enumerator: %w", err)
	}
	defer sessionEnumerator.Release()

	var sessionCount int
	if err := sessionEnumerator.GetCount(&sessionCount); err != nil {
		d.logger.Warnw("Failed to get session count from session enumerator", "error", err)
		return nil, fmt.Errorf("get session count: %w", err)
	}

	d.logger.Debugw("Got session count from session enumerator", "count", sessionCount)

	handles := make([]SessionHandle, 0, sessionCount)

	for sessionIdx := 0; sessionIdx < sessionCount; sessionIdx++ {
		var audioSessionControl *wca.IAudioSessionControl
		if err := sessionEnumerator.GetSession(sessionIdx, &audioSessionControl); err != nil {
			d.logger.Warnw("Failed to get session from session enumerator",
				"error", err,
				"sessionIdx", sessionIdx)

			releaseAll(handles)
			return nil, fmt.Errorf("get session %d from enumerator: %w", sessionIdx, err)
		}

		handle, err := d.newHandle(audioSessionControl)
		if err != nil {
			releaseAll(handles)
			return nil, fmt.Errorf("open session %d: %w", sessionIdx, err)
		}

		handles = append(handles, handle)
	}

	return handles, nil
}

func (d *wcaSessionDirectory) newHandle(audioSessionControl *wca.IAudioSessionControl) (*wcaSessionHandle, error) {
	// query its IAudioSessionControl2
	dispatch, err := audioSessionControl.QueryInterface(wca.IID_IAudioSessionControl2)
	if err != nil {
		audioSessionControl.Release()
		return nil, fmt.Errorf("query IAudioSessionControl2: %w", err)
	}

	audioSessionControl2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))

	var pid uint32

	if err := audioSessionControl2.GetProcessId(&pid); err != nil {
		// the system sounds session (and UWP apps) report AUDCLNT_S_NO_CURRENT_PROCESS;
		// the pid is still filled in for UWP, and stays 0 for system sounds
		isSystemSoundsErr := audioSessionControl2.IsSystemSoundsSession()
		if isSystemSoundsErr != nil && !strings.Contains(err.Error(), noCurrentProcessCode) {
			audioSessionControl.Release()
			audioSessionControl2.Release()
			return nil, fmt.Errorf("query session pid: %w", err)
		}
	}

	dispatch, err = audioSessionControl2.QueryInterface(wca.IID_ISimpleAudioVolume)
	if err != nil {
		audioSessionControl.Release()
		audioSessionControl2.Release()
		return nil, fmt.Errorf("query ISimpleAudioVolume: %w", err)
	}

	return &wcaSessionHandle{
		control:           audioSessionControl,
		control2:          audioSessionControl2,
		simpleAudioVolume: (*wca.ISimpleAudioVolume)(unsafe.Pointer(dispatch)),
		pid:               pid,
		eventCtx:          d.eventCtx,
	}, nil
}

type wcaSessionHandle struct {
	control           *wca.IAudioSessionControl
	control2          *wca.IAudioSessionControl2
	simpleAudioVolume *wca.ISimpleAudioVolume

	pid      uint32
	eventCtx *ole.GUID
}

func (h *wcaSessionHandle) ProcessID() (uint32, error) {
	return h.pid, nil
}

func (h *wcaSessionHandle) RelativeVolume() (float32, error) {
	var level float32
	if err := h.simpleAudioVolume.GetMasterVolume(&level); err != nil {
		return 0, err
	}

	return level, nil
}

func (h *wcaSessionHandle) SetRelativeVolume(v float32) error {
	return h.simpleAudioVolume.SetMasterVolume(v, h.eventCtx)
}

func (h *wcaSessionHandle) Mute() (bool, error) {
	var muted bool
	if err := h.simpleAudioVolume.GetMute(&muted); err != nil {
		return false, err
	}

	return muted, nil
}

func (h *wcaSessionHandle) SetMute(muted bool) error {
	return h.simpleAudioVolume.SetMute(muted, h.eventCtx)
}

// RawState returns the AudioSessionState value
func (h *wcaSessionHandle) RawState() (uint32, error) {
	var state uint32
	if err := h.control.GetState(&state); err != nil {
		return 0, err
	}

	return state, nil
}

func (h *wcaSessionHandle) Release() {
	h.simpleAudioVolume.Release()
	h.control2.Release()
	h.control.Release()
}
