package mixvol

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tinygo.org/x/bluetooth"

	"github.com/MixyLabs/mixvol/pkg/mixvol/util"
)

// BLEIO manages the BLE MIDI connection to a Mixy slider controller
type BLEIO struct {
	mixvol *MixVol
	logger *zap.SugaredLogger

	devFoundChannel chan bluetooth.ScanResult
	runScan         chan struct{}
	stopChannel     chan struct{}

	lock           sync.Mutex
	device         *bluetooth.Device
	midiChar       *bluetooth.DeviceCharacteristic
	lastDeviceAddr string
	connected      bool

	controlEventConsumers []chan ControlEvent
}

const (
	bleConnectTimeout  = 10 * time.Second
	bleRescanThrottle  = 5 * time.Second
	midiCCStatus       = 0xB0
	midiMaxValue       = 127
	mixyParamsFrameLen = 8
)

var (
	midiServiceRealUUID    = bluetooth.NewUUID([16]byte{0x03, 0xB8, 0x0E, 0x5A, 0xED, 0xE8, 0x4B, 0x33, 0xA7, 0x51, 0x6C, 0xE3, 0x4E, 0xC4, 0xC7, 0x00})
	midiServiceFakeUUID    = bluetooth.NewUUID([16]byte{0x03, 0xB8, 0x0E, 0x5A, 0xED, 0xE8, 0x4B, 0x33, 0xA7, 0x51, 0x6C, 0xE3, 0x4E, 0xC4, 0xC7, 0x05})
	midiCharacteristicUUID = bluetooth.NewUUID([16]byte{0x77, 0x72, 0xE5, 0xDB, 0x38, 0x68, 0x41, 0x12, 0xA1, 0xA9, 0xF2, 0x66, 0x9D, 0x10, 0x6B, 0xF3})
)

func NewBLEIO(mixvol *MixVol, logger *zap.SugaredLogger) (*BLEIO, error) {
	logger = logger.Named("mixy")

	bio := &BLEIO{
		mixvol:                mixvol,
		logger:                logger,
		devFoundChannel:       make(chan bluetooth.ScanResult, 1),
		runScan:               make(chan struct{}, 1),
		stopChannel:           make(chan struct{}),
		controlEventConsumers: []chan ControlEvent{},
	}

	logger.Debug("Created BLE i/o instance")

	// respond to config changes
	bio.setupOnConfigReload()

	return bio, nil
}

// Start enables the adapter and begins scanning for a Mixy controller in the background
func (bio *BLEIO) Start() error {
	adapter := bluetooth.DefaultAdapter

	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	fastReconnect := bio.mixvol.currConf().FastReconnect

	// fast reconnect mode:
	// it's hard to quickly detect disconnects (at least on Windows)
	// so we just scan continuously and reconnect whenever the original device
	// shows up again, which means it dropped its side of the connection.
	// normal mode:
	// scan only while not connected, restarting when the device disconnects
	if !fastReconnect {
		adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected || !bio.isConnected() {
				return
			}

			bio.close()
			bio.logger.Infow("Device disconnected, restarting scan", "address", device.Address)
			bio.requestScan()
		})
	}

	go bio.scanLoop(adapter, fastReconnect)
	go bio.connectLoop(adapter, fastReconnect)

	// start initial scan
	bio.requestScan()

	return nil
}

// Stop drops the current connection, if any, and ends the background loops
func (bio *BLEIO) Stop() {
	bio.logger.Debug("Shutting down mixy connection")

	close(bio.stopChannel)
	_ = bluetooth.DefaultAdapter.StopScan()
	bio.close()
}

// SubscribeToControlEvents returns an unbuffered channel that receives
// a ControlEvent every time a slider moves
func (bio *BLEIO) SubscribeToControlEvents() chan ControlEvent {
	ch := make(chan ControlEvent)
	bio.controlEventConsumers = append(bio.controlEventConsumers, ch)

	return ch
}

func (bio *BLEIO) requestScan() {
	select {
	case bio.runScan <- struct{}{}:
	default:
		// a scan is already pending
	}
}

func (bio *BLEIO) scanLoop(adapter *bluetooth.Adapter, fastReconnect bool) {
	lastSent := time.Time{}

	for {
		select {
		case <-bio.stopChannel:
			return
		case <-bio.runScan:
		}

		bio.logger.Debug("Started a scan")

		// blocks until StopScan
		err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !advertisesMIDI(result) {
				return
			}

			now := time.Now()
			if now.Sub(lastSent) < bleRescanThrottle {
				return
			}

			bio.logger.Debugw("Found MIDI BLE device",
				"name", result.LocalName(),
				"address", result.Address,
				"rssi", result.RSSI)

			if !fastReconnect {
				_ = adapter.StopScan()
			}

			lastSent = now

			select {
			case bio.devFoundChannel <- result:
			default:
				bio.logger.Debug("Previous candidate device still pending, dropping this one")
			}
		})
		if err != nil {
			bio.logger.Warnw("Scan failed", "error", err)
		}
	}
}

func advertisesMIDI(result bluetooth.ScanResult) bool {
	for _, uuid := range result.ServiceUUIDs() {
		if uuid == midiServiceRealUUID {
			return true
		}
	}

	return false
}

// connectLoop handles candidate devices. After a connection attempt it goes back
// to waiting for a fresh device to replace the current one with
func (bio *BLEIO) connectLoop(adapter *bluetooth.Adapter, fastReconnect bool) {
	for {
		var result bluetooth.ScanResult

		select {
		case <-bio.stopChannel:
			return
		case result = <-bio.devFoundChannel:
		}

		bio.lock.Lock()
		lastDeviceAddr := bio.lastDeviceAddr
		bio.lock.Unlock()

		// reconnect only with the same device
		if lastDeviceAddr != "" && result.Address.String() != lastDeviceAddr {
			continue
		}

		if err := bio.connect(adapter, result); err != nil {
			bio.logger.Warnw("Failed to connect to device", "address", result.Address, "error", err)

			if !fastReconnect {
				bio.requestScan()
			}
		}
	}
}

func (bio *BLEIO) connect(adapter *bluetooth.Adapter, result bluetooth.ScanResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), bleConnectTimeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if err != nil {
			done <- err
			return
		}

		done <- bio.activate(device)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("connect timed out after %s", bleConnectTimeout)
	case err := <-done:
		return err
	}
}

func (bio *BLEIO) activate(device bluetooth.Device) error {
	bio.close() // try to free previous connection

	bio.logger.Debugw("Connected", "address", device.Address)

	services, err := device.DiscoverServices([]bluetooth.UUID{midiServiceRealUUID, midiServiceFakeUUID})
	if err != nil {
		return fmt.Errorf("discover MIDI service: %w", err)
	}

	if len(services) == 0 {
		return errors.New("MIDI BLE service not found")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{midiCharacteristicUUID})
	if err != nil {
		return fmt.Errorf("discover MIDI characteristic: %w", err)
	}

	if len(chars) == 0 {
		return errors.New("MIDI BLE characteristic not found")
	}

	midiChar := chars[0]

	bio.logger.Debug("Subscribing to MIDI characteristic notifications")

	err = midiChar.EnableNotifications(func(buf []byte) {
		ccs := MIDIParseCC(buf)
		if len(ccs) == 0 {
			return
		}

		bio.handleCC(ccs)
	})
	if err != nil {
		return fmt.Errorf("enable MIDI notifications: %w", err)
	}

	// the controller only starts streaming after its characteristic has been read once
	if _, err := midiChar.Read(make([]byte, 10)); err != nil {
		bio.logger.Warnw("Initial MIDI characteristic read failed", "error", err)
	}

	bio.lock.Lock()
	bio.connected = true
	bio.device = &device
	bio.midiChar = &midiChar
	bio.lastDeviceAddr = device.Address.String()
	bio.lock.Unlock()

	bio.logger.Info("MIDI connection established")

	if err := bio.applyMixyParams(); err != nil {
		bio.logger.Warnw("Failed to apply Mixy params", "error", err)
	}

	return nil
}

func (bio *BLEIO) setupOnConfigReload() {
	configReloadedChannel := bio.mixvol.configMan.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			if err := bio.applyMixyParams(); err != nil {
				bio.logger.Warnw("Failed to apply Mixy params", "error", err)
			}
		}
	}()
}

func (bio *BLEIO) applyMixyParams() error {
	bio.lock.Lock()
	defer bio.lock.Unlock()

	if !bio.connected || bio.midiChar == nil {
		return nil
	}

	frame := encodeMixyParams(bio.mixvol.currConf())
	if _, err := bio.midiChar.WriteWithoutResponse(frame); err != nil {
		return fmt.Errorf("write mixy params: %w", err)
	}

	bio.logger.Debugw("Applied Mixy params", "params", bio.mixvol.currConf().MixyParams)

	return nil
}

// encodeMixyParams lays the tuning values out as four little-endian uint16s
func encodeMixyParams(conf *Config) []byte {
	params := conf.MixyParams

	frame := make([]byte, mixyParamsFrameLen)
	binary.LittleEndian.PutUint16(frame[0:2], params.ChangeThreshold)
	binary.LittleEndian.PutUint16(frame[2:4], params.SlowInterval)
	binary.LittleEndian.PutUint16(frame[4:6], params.FastInterval)
	binary.LittleEndian.PutUint16(frame[6:8], params.FastTimeout)

	return frame
}

func (bio *BLEIO) isConnected() bool {
	bio.lock.Lock()
	defer bio.lock.Unlock()

	return bio.connected
}

func (bio *BLEIO) close() {
	bio.lock.Lock()
	defer bio.lock.Unlock()

	if bio.device == nil {
		return
	}

	bio.connected = false

	_ = bio.device.Disconnect()

	bio.device = nil
	bio.midiChar = nil

	bio.logger.Debug("BLE connection closed")
}

// CCMsg is a MIDI control change: controller number and 7-bit value
type CCMsg [2]int

type CCMessages []CCMsg

// MIDIParseCC extracts the control change messages from a BLE MIDI packet
func MIDIParseCC(packet []byte) CCMessages {
	var result CCMessages
	i := 0

	// header byte has the high bit set
	if i >= len(packet) || (packet[i]&0x80) == 0 {
		return result
	}
	i++

	for i < len(packet) {
		b := packet[i]

		// skip anything that isn't a timestamp byte
		if (b & 0x80) == 0 {
			i++
			continue
		}

		i++
		if i+2 >= len(packet) {
			break // incomplete message
		}

		status := packet[i]
		ctrl := packet[i+1]
		val := packet[i+2]
		i += 3

		if (status & 0xF0) == midiCCStatus {
			result = append(result, CCMsg{int(ctrl), int(val)})
		}
	}

	return result
}

// ccToControlEvents turns absolute slider positions into ActionSet events on the 0-100 level scale
func ccToControlEvents(ccs CCMessages, invert bool) []ControlEvent {
	events := make([]ControlEvent, 0, len(ccs))

	for _, cc := range ccs {
		sliderIdx, value := cc[0], cc[1]

		// TODO validate slider indices against the connected controller's model
		if value < 0 || value > midiMaxValue {
			continue
		}

		normalizedScalar := util.NormalizeScalar(float32(value) / midiMaxValue)

		if invert {
			normalizedScalar = 1 - normalizedScalar
		}

		events = append(events, ControlEvent{
			ControlID: sliderIdx,
			Action:    ActionSet,
			Value:     util.ScalarToLevel(normalizedScalar),
		})
	}

	return events
}

func (bio *BLEIO) handleCC(ccs CCMessages) {
	events := ccToControlEvents(ccs, bio.mixvol.currConf().InvertSliders)

	for _, event := range events {
		if bio.mixvol.Verbose() {
			bio.logger.Debugw("Slider moved", "event", event)
		}

		for _, consumer := range bio.controlEventConsumers {
			consumer <- event
		}
	}
}
