// Package config loads the shiftlights toml configuration.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
)

const (
	SubscriptionUpdate = "update"
	SubscriptionSpot   = "spot"

	DeviceG29 = "g29"
	DeviceCAN = "can"
)

type AssettoConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Subscription string
}

type DirtConfig struct {
	Enabled bool
	Port    int
}

type IndicatorConfig struct {
	Flash          bool
	DefaultPeakRPM float32 `toml:"default_peak_rpm"`
	Device         string
	CANInterface   string `toml:"can_interface"`
}

type MetricsConfig struct {
	Listen string
}

type LogConfig struct {
	Level string
}

type Config struct {
	Assetto   AssettoConfig
	Dirt      DirtConfig
	Indicator IndicatorConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

func Default() *Config {
	return &Config{
		Assetto: AssettoConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         9996,
			Subscription: SubscriptionUpdate,
		},
		Dirt: DirtConfig{
			Enabled: true,
			Port:    20777,
		},
		Indicator: IndicatorConfig{
			Flash:          true,
			DefaultPeakRPM: 7000,
			Device:         DeviceG29,
			CANInterface:   "can0",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads fileName relative to the binary location unless it is absolute.
// A missing file yields the defaults.
func Load(fileName string) (*Config, error) {
	path := fileName
	if !filepath.IsAbs(path) {
		dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to determine binary location")
		}
		path = filepath.Join(dir, fileName)
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		log.WithField("file", path).Info("no configuration file, using defaults")
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", path)
	}
	defer file.Close()
	return NewFromReader(file)
}

func NewFromReader(configReader io.Reader) (*Config, error) {
	configData, err := ioutil.ReadAll(configReader)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config reader")
	}
	config := Default()
	if _, err := toml.Decode(string(configData), config); err != nil {
		return nil, errors.Wrap(err, "unable to load shiftlights configuration")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if !c.Assetto.Enabled && !c.Dirt.Enabled {
		return errors.New("no telemetry source enabled")
	}
	if c.Assetto.Port <= 0 || c.Assetto.Port > 65535 {
		return errors.Errorf("invalid assetto port %d", c.Assetto.Port)
	}
	if c.Dirt.Port <= 0 || c.Dirt.Port > 65535 {
		return errors.Errorf("invalid dirt port %d", c.Dirt.Port)
	}
	switch c.Assetto.Subscription {
	case SubscriptionUpdate, SubscriptionSpot:
	default:
		return errors.Errorf("unknown assetto subscription %q", c.Assetto.Subscription)
	}
	switch c.Indicator.Device {
	case DeviceG29:
	case DeviceCAN:
		if c.Indicator.CANInterface == "" {
			return errors.New("can device requires can_interface")
		}
	default:
		return errors.Errorf("unknown indicator device %q", c.Indicator.Device)
	}
	if c.Indicator.DefaultPeakRPM <= 0 {
		return errors.Errorf("default_peak_rpm must be positive, got %v", c.Indicator.DefaultPeakRPM)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) LogLevel() (log.Level, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return level, errors.Wrapf(err, "invalid log level")
	}
	return level, nil
}
