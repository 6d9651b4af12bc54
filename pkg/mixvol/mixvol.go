// Package mixvol drives the default output device and per-process audio sessions
// from a physical controller made of rotary encoders or sliders.
package mixvol

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/MixyLabs/mixvol/pkg/mixvol/util"
)

const mixerStopTimeout = time.Second

// MixVol is the main entity managing all subcomponents
type MixVol struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager
	controls  ControlIO
	audio     *Audio
	mixer     *mixer

	stopChannel      chan bool
	mixerStopChannel chan struct{}
	mixerDone        chan struct{}
	version          string
	verbose          bool
}

func NewMixVol(logger *zap.SugaredLogger, verbose bool) (*MixVol, error) {
	logger = logger.Named("mixvol")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	d := &MixVol{
		logger:           logger,
		notifier:         notifier,
		configMan:        config,
		stopChannel:      make(chan bool),
		mixerStopChannel: make(chan struct{}),
		mixerDone:        make(chan struct{}),
		verbose:          verbose,
	}

	logger.Debug("Created mixvol instance")

	return d, nil
}

func (d *MixVol) currConf() *Config {
	return d.configMan.Current()
}

// Initialize sets up components and runs until interrupted
func (d *MixVol) Initialize() error {
	d.logger.Debug("Initializing")

	// load the config for the first time
	if err := d.configMan.Load(); err != nil {
		d.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	audio, err := OpenAudio(d.logger)
	if err != nil {
		d.logger.Errorw("Failed to open audio device", "error", err)
		d.notifier.Notify("Can't open audio device!", "Please check mixvol's logs for more details.")
		return fmt.Errorf("open audio: %w", err)
	}

	d.audio = audio

	controls, err := d.newControlIO(d.currConf().Transport)
	if err != nil {
		d.logger.Errorw("Failed to create control i/o", "error", err)
		return fmt.Errorf("create control i/o: %w", err)
	}

	d.controls = controls

	d.mixer = newMixer(d.logger, d.currConf, audio)
	d.mixer.verbose = d.verbose
	d.mixer.warmUp()

	d.setupInterruptHandler()
	d.run()

	return nil
}

func (d *MixVol) newControlIO(transport string) (ControlIO, error) {
	d.logger.Debugw("Creating control i/o", "transport", transport)

	switch transport {
	case TransportBLE:
		return NewBLEIO(d, d.logger)
	case TransportSerial:
		return NewSerialIO(d, d.logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

// SetVersion records the build's version string, it is logged when the run loop starts
func (d *MixVol) SetVersion(version string) {
	d.version = version
}

// Verbose returns a boolean indicating whether mixvol is running in verbose mode
func (d *MixVol) Verbose() bool {
	return d.verbose
}

func (d *MixVol) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		d.logger.Debugw("Interrupted", "signal", signal)
		d.signalStop()
	}()
}

func (d *MixVol) run() {
	d.logger.Infow("Run loop starting", "version", d.version)

	// subscribe before anything can publish
	controlEvents := d.controls.SubscribeToControlEvents()
	configReloads := d.configMan.SubscribeToChanges()

	go d.configMan.WatchConfigFileChanges()

	go func() {
		defer close(d.mixerDone)
		defer d.recoverFromPanic()

		d.mixer.run(controlEvents, configReloads, d.mixerStopChannel)
	}()

	go func() {
		if err := d.controls.Start(); err != nil {
			d.logger.Warnw("Failed to start control i/o", "error", err)
			d.notifier.Notify("Can't connect to the controller!", err.Error())
		}
	}()

	// wait until gracefully stopped
	<-d.stopChannel
	d.logger.Debug("Stop channel signaled, terminating")

	if err := d.stop(); err != nil {
		d.logger.Warnw("Failed to stop mixvol", "error", err)
		os.Exit(1)
	} else {
		os.Exit(0)
	}
}

func (d *MixVol) signalStop() {
	d.logger.Debug("Signalling stop channel")
	d.stopChannel <- true
}

func (d *MixVol) stop() error {
	d.logger.Info("Stopping")

	d.configMan.StopWatchingConfigFile()
	d.controls.Stop()

	// the mixer owns the sessions, wait for it to let go before releasing them
	close(d.mixerStopChannel)

	select {
	case <-d.mixerDone:
	case <-time.After(mixerStopTimeout):
		d.logger.Warn("Mixer didn't stop in time, releasing anyway")
	}

	if err := d.mixer.release(); err != nil {
		d.logger.Errorw("Failed to release mixer", "error", err)
		return fmt.Errorf("release mixer: %w", err)
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = d.logger.Sync()

	return nil
}
