package mixvol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/MixyLabs/mixvol/pkg/mixvol/util"
)

// SerialIO reads rotary encoder lines from the controller's serial port
type SerialIO struct {
	mixvol *MixVol
	logger *zap.SugaredLogger

	lock        sync.Mutex
	connected   bool
	stopping    bool
	connOptions serial.OpenOptions
	conn        io.ReadWriteCloser

	controlEventConsumers []chan ControlEvent
}

const serialReconnectDelay = 2 * time.Second

func NewSerialIO(mixvol *MixVol, logger *zap.SugaredLogger) (*SerialIO, error) {
	logger = logger.Named("serial")

	sio := &SerialIO{
		mixvol:                mixvol,
		logger:                logger,
		controlEventConsumers: []chan ControlEvent{},
	}

	logger.Debug("Created serial i/o instance")

	// respond to config changes
	sio.setupOnConfigReload()

	return sio, nil
}

// Start opens the serial port and starts reading encoder lines in the background
func (sio *SerialIO) Start() error {
	sio.lock.Lock()
	defer sio.lock.Unlock()

	if sio.connected {
		sio.logger.Warn("Already connected, can't start another without closing first")
		return errors.New("serial: connection already active")
	}

	// on linux, setting a minimum read size of 0 causes the read to return immediately
	// with nothing, which makes the line reader spin
	minimumReadSize := 0
	if util.Linux() {
		minimumReadSize = 1
	}

	conf := sio.mixvol.currConf()

	sio.connOptions = serial.OpenOptions{
		PortName:        conf.COMPort,
		BaudRate:        conf.BaudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: uint(minimumReadSize),
	}

	sio.logger.Debugw("Attempting serial connection",
		"comPort", sio.connOptions.PortName,
		"baudRate", sio.connOptions.BaudRate,
		"minReadSize", minimumReadSize)

	conn, err := serial.Open(sio.connOptions)
	if err != nil {
		sio.logger.Warnw("Failed to open serial connection", "error", err)
		return fmt.Errorf("open serial connection: %w", err)
	}

	sio.conn = conn
	sio.connected = true
	sio.stopping = false

	sio.logger.Infow("Connected", "conn", sio.connOptions.PortName)

	go sio.readLoop(conn)

	return nil
}

// Stop closes the serial port, which also ends the read loop
func (sio *SerialIO) Stop() {
	sio.lock.Lock()
	defer sio.lock.Unlock()

	if !sio.connected {
		sio.logger.Debug("Not currently connected, nothing to stop")
		return
	}

	sio.logger.Debug("Shutting down serial connection")
	sio.stopping = true
	sio.close()
}

// SubscribeToControlEvents returns an unbuffered channel that receives
// a ControlEvent every time an encoder is turned or pressed
func (sio *SerialIO) SubscribeToControlEvents() chan ControlEvent {
	ch := make(chan ControlEvent)
	sio.controlEventConsumers = append(sio.controlEventConsumers, ch)

	return ch
}

func (sio *SerialIO) setupOnConfigReload() {
	configReloadedChannel := sio.mixvol.configMan.SubscribeToChanges()

	// give the read loop a moment to notice the closed port
	const stopDelay = 50 * time.Millisecond

	go func() {
		for range configReloadedChannel {
			if !sio.needsReconnect() {
				continue
			}

			sio.logger.Info("Detected change in connection parameters, attempting to renew connection")
			sio.Stop()

			<-time.After(stopDelay)

			if err := sio.Start(); err != nil {
				sio.logger.Warnw("Failed to renew connection after parameter change", "error", err)
			} else {
				sio.logger.Debug("Renewed connection successfully")
			}
		}
	}()
}

func (sio *SerialIO) needsReconnect() bool {
	sio.lock.Lock()
	defer sio.lock.Unlock()

	conf := sio.mixvol.currConf()

	return conf.COMPort != sio.connOptions.PortName || conf.BaudRate != sio.connOptions.BaudRate
}

func (sio *SerialIO) readLoop(conn io.ReadWriteCloser) {
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			sio.onReadFailed(conn, err)
			return
		}

		sio.handleLine(line)
	}
}

// a read error either means we were stopped or the controller went away.
// in the latter case keep retrying until it comes back or someone stops us
func (sio *SerialIO) onReadFailed(conn io.ReadWriteCloser, readErr error) {
	sio.lock.Lock()
	stopped := sio.stopping || sio.conn != conn
	if !stopped {
		sio.close()
	}
	sio.lock.Unlock()

	if stopped {
		sio.logger.Debug("Read loop stopped")
		return
	}

	sio.logger.Warnw("Failed to read line from serial, will retry", "error", readErr)

	go func() {
		for {
			<-time.After(serialReconnectDelay)

			sio.lock.Lock()
			giveUp := sio.stopping || sio.connected
			sio.lock.Unlock()

			if giveUp {
				return
			}

			if err := sio.Start(); err == nil {
				return
			}
		}
	}()
}

func (sio *SerialIO) handleLine(line string) {
	event, err := ParseEncoderLine(line)
	if err != nil {
		sio.logger.Debugw("Ignoring malformed line", "line", strings.TrimSpace(line), "error", err)
		return
	}

	if sio.mixvol.Verbose() {
		sio.logger.Debugw("Encoder event", "event", event)
	}

	for _, consumer := range sio.controlEventConsumers {
		consumer <- event
	}
}

// close assumes the lock is held
func (sio *SerialIO) close() {
	if sio.conn != nil {
		if err := sio.conn.Close(); err != nil {
			sio.logger.Warnw("Failed to close serial connection", "error", err)
		} else {
			sio.logger.Debug("Serial connection closed")
		}
	}

	sio.conn = nil
	sio.connected = false
}
