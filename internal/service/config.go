package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable knobs of the service. Flags and environment
// variables override the config file, which overrides the defaults.
type Config struct {
	// Port is the loopback HTTP port.
	Port int `yaml:"port" mapstructure:"port"`

	// Hotkey is the modifier that pauses audio while held.
	Hotkey string `yaml:"hotkey" mapstructure:"hotkey"`

	// DeviceSampleRate is the fixed output rate of the audio device.
	DeviceSampleRate int `yaml:"device_sample_rate" mapstructure:"device_sample_rate"`

	// ReservationTimeout bounds how long a pending reservation may
	// stall the queue.
	ReservationTimeout time.Duration `yaml:"reservation_timeout" mapstructure:"reservation_timeout"`

	// ChimeCooldown is the minimum spacing between allowed chimes.
	ChimeCooldown time.Duration `yaml:"chime_cooldown" mapstructure:"chime_cooldown"`

	// CleanupDelay is how long completion events outlive their item.
	CleanupDelay time.Duration `yaml:"cleanup_delay" mapstructure:"cleanup_delay"`

	// WaitTimeout is the default timeout for /wait calls.
	WaitTimeout time.Duration `yaml:"wait_timeout" mapstructure:"wait_timeout"`

	// DictationLockFile enables the legacy lock file when non-empty.
	DictationLockFile string `yaml:"dictation_lock_file" mapstructure:"dictation_lock_file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Port:               8881,
		Hotkey:             "fn",
		DeviceSampleRate:   24000,
		ReservationTimeout: 30 * time.Second,
		ChimeCooldown:      60 * time.Second,
		CleanupDelay:       60 * time.Second,
		WaitTimeout:        120 * time.Second,
	}
}

// LoadConfig reads path (YAML) over the defaults. A missing or empty
// path yields the defaults without error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Debug("config file not found, using defaults", "path", path)
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating
// parent directories. Used to seed a config file for editing.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
