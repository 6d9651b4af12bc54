package mixvol

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MixyLabs/mixvol/pkg/mixvol/util"
)

type ConfigManager struct {
	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	userConfig     *viper.Viper
	userConfigFile string

	lock    sync.RWMutex
	current *Config
}

type Config struct {
	ControlMapping *controlMap `mapstructure:"-"`

	Transport string `mapstructure:"transport"`
	COMPort   string `mapstructure:"com_port"`
	BaudRate  uint   `mapstructure:"baud_rate"`

	Step int `mapstructure:"step"`

	InvertSliders       bool `mapstructure:"invert_sliders"`
	SkipExitedProcesses bool `mapstructure:"skip_exited_processes"`
	AudioFlyout         bool `mapstructure:"audio_flyout"`
	FastReconnect       bool `mapstructure:"fast_reconnect"`

	MixyParams struct {
		ChangeThreshold uint16 `mapstructure:"change_threshold"`
		SlowInterval    uint16 `mapstructure:"slow_interval"`
		FastInterval    uint16 `mapstructure:"fast_interval"`
		FastTimeout     uint16 `mapstructure:"fast_timeout"`
	} `mapstructure:"mixy_params"`
}

const (
	userConfigFilepath = "config.yaml"
	userConfigName     = "config"
	userConfigPath     = "."

	configType = "yaml"

	configKeyControlMapping = "control_mapping"
	configKeyTransport      = "transport"
	configKeyCOMPort        = "com_port"
	configKeyBaudRate       = "baud_rate"
	configKeyStep           = "step"
	configKeyInvertSliders  = "invert_sliders"

	TransportSerial = "serial"
	TransportBLE    = "ble"

	defaultCOMPortWindows = "COM4"
	defaultCOMPortLinux   = "/dev/ttyUSB0"
	defaultBaudRate       = 9600
	defaultStep           = 2
)

func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*ConfigManager, error) {
	return newConfigManager(logger, notifier, userConfigPath)
}

func newConfigManager(logger *zap.SugaredLogger, notifier Notifier, configDir string) (*ConfigManager, error) {
	logger = logger.Named("config")

	cc := &ConfigManager{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
		userConfigFile:     filepath.Join(configDir, userConfigFilepath),
		current:            &Config{ControlMapping: newControlMap()},
	}

	defaultCOMPort := defaultCOMPortWindows
	if util.Linux() {
		defaultCOMPort = defaultCOMPortLinux
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(configDir)

	userConfig.SetDefault(configKeyControlMapping, map[string][]string{})
	userConfig.SetDefault(configKeyTransport, TransportSerial)
	userConfig.SetDefault(configKeyCOMPort, defaultCOMPort)
	userConfig.SetDefault(configKeyBaudRate, defaultBaudRate)
	userConfig.SetDefault(configKeyStep, defaultStep)
	userConfig.SetDefault(configKeyInvertSliders, false)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

func (cc *ConfigManager) Load() error {
	cc.logger.Debugw("Loading config", "path", cc.userConfigFile)

	// make sure it exists
	if !util.FileExists(cc.userConfigFile) {
		cc.logger.Warnw("Config file not found", "path", cc.userConfigFile)
		cc.notifier.Notify("Can't find configuration!",
			fmt.Sprintf("%s must be in the same directory as mixvol. Please re-launch", userConfigFilepath))

		return fmt.Errorf("config file doesn't exist: %s", cc.userConfigFile)
	}

	if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)

		// if the error is yaml-format-related, show a sensible error. otherwise, show 'em to the logs
		if strings.Contains(err.Error(), "yaml:") {
			cc.notifier.Notify("Invalid configuration!",
				fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
		} else {
			cc.notifier.Notify("Error loading configuration!", "Please check mixvol's logs for more details.")
		}

		return fmt.Errorf("read user config: %w", err)
	}

	next, err := cc.populateFromViper()
	if err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		cc.notifier.Notify("Invalid configuration!", err.Error())

		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.lock.Lock()
	cc.current = next
	cc.lock.Unlock()

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"controlMapping", next.ControlMapping,
		"transport", next.Transport,
		"step", next.Step)

	return nil
}

// Current returns the most recently loaded config. The returned value must not be modified.
func (cc *ConfigManager) Current() *Config {
	cc.lock.RLock()
	defer cc.lock.RUnlock()

	return cc.current
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *ConfigManager) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *ConfigManager) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", cc.userConfigFile)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&fsnotify.Write == fsnotify.Write {
			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

					cc.onConfigReloaded()
				}

				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *ConfigManager) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true
}

func (cc *ConfigManager) populateFromViper() (*Config, error) {
	next := &Config{}

	err := cc.userConfig.Unmarshal(next, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = false
	})
	if err != nil {
		return nil, err
	}

	if next.Transport != TransportSerial && next.Transport != TransportBLE {
		return nil, fmt.Errorf("unknown transport %q (expected %q or %q)", next.Transport, TransportSerial, TransportBLE)
	}

	if next.Step < 1 || next.Step > 100 {
		return nil, fmt.Errorf("step must be between 1 and 100, got %d", next.Step)
	}

	next.ControlMapping = controlMapFromConfig(cc.userConfig.GetStringMapStringSlice(configKeyControlMapping))

	cc.logger.Debug("Populated config fields from viper")

	return next, nil
}

func (cc *ConfigManager) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		consumer <- true
	}
}
