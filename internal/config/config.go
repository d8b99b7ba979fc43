// ABOUTME: viper-backed configuration for minitester
// ABOUTME: Layers defaults, minitester.yaml, MINITESTER_* variables and command flags
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/miniaud/minitester/pkg/audio"
	"github.com/miniaud/minitester/pkg/audio/output"
	"github.com/miniaud/minitester/pkg/audio/source"
	"github.com/miniaud/minitester/pkg/session"
)

const (
	configName = "minitester"
	configType = "yaml"
	envPrefix  = "MINITESTER"

	KeyBackend           = "backend"
	KeyAutoOrder         = "drivers.auto_order"
	KeyMiniaudioBackends = "drivers.miniaudio_backends"
	KeyNullPeriod        = "drivers.null_period"
	KeySource            = "source"
	KeyFormat            = "format"
	KeyMaxSessions       = "session.max_sessions"
	KeyOpenTimeout       = "session.open_timeout"
	KeyBridgeListen      = "bridge.listen"
	KeyBridgeName        = "bridge.name"
	KeyBridgeMDNS        = "bridge.mdns"
	KeyBridgeServer      = "bridge.server"
	KeyLogLevel          = "log.level"
	KeyLogFile           = "log.file"
)

// Config is the resolved configuration of one run
type Config struct {
	Backend string        `mapstructure:"backend"`
	Drivers DriversConfig `mapstructure:"drivers"`
	Source  source.Config `mapstructure:"source"`
	Format  audio.Format  `mapstructure:"format"`
	Session SessionConfig `mapstructure:"session"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Log     LogConfig     `mapstructure:"log"`
}

type DriversConfig struct {
	// AutoOrder is the driver chain BackendAuto walks
	AutoOrder []string `mapstructure:"auto_order"`

	// MiniaudioBackends restricts miniaudio's native backends, e.g. [aaudio] or [opensl]
	MiniaudioBackends []string      `mapstructure:"miniaudio_backends"`
	NullPeriod        time.Duration `mapstructure:"null_period"`
}

type SessionConfig struct {
	MaxSessions int           `mapstructure:"max_sessions"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type BridgeConfig struct {
	Listen string `mapstructure:"listen"`
	Name   string `mapstructure:"name"`
	MDNS   bool   `mapstructure:"mdns"`

	// Server is the bridge address used by the remote command
	Server string `mapstructure:"server"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// flagKeys maps configuration keys to the command flags that override them
var flagKeys = map[string]string{
	KeyBackend:      "backend",
	KeyLogLevel:     "log-level",
	KeyLogFile:      "log-file",
	KeyBridgeListen: "listen",
	KeyBridgeName:   "name",
	KeyBridgeMDNS:   "mdns",
	KeyBridgeServer: "server",
	KeyOpenTimeout:  "open-timeout",
}

// Loader owns the viper instance behind a Config
type Loader struct {
	v *viper.Viper

	mu       sync.Mutex
	onChange []func(*Config)
}

// NewLoader creates a loader with defaults applied. file, when set, replaces
// the minitester.yaml search.
func NewLoader(file string) *Loader {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/minitester")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	src := source.DefaultConfig()
	format := audio.DefaultFormat()

	v.SetDefault(KeyBackend, "auto")
	v.SetDefault(KeyAutoOrder, []string{output.DriverMiniaudio, output.DriverOto})
	v.SetDefault(KeyMiniaudioBackends, []string{})
	v.SetDefault(KeyNullPeriod, 10*time.Millisecond)
	v.SetDefault(KeySource+".kind", src.Kind)
	v.SetDefault(KeySource+".waveform", src.Waveform)
	v.SetDefault(KeySource+".frequency", src.Frequency)
	v.SetDefault(KeySource+".amplitude", src.Amplitude)
	v.SetDefault(KeySource+".path", "")
	v.SetDefault(KeyFormat+".sample_rate", format.SampleRate)
	v.SetDefault(KeyFormat+".channels", format.Channels)
	v.SetDefault(KeyFormat+".bit_depth", format.BitDepth)
	v.SetDefault(KeyMaxSessions, session.DefaultMaxSessions)
	v.SetDefault(KeyOpenTimeout, session.DefaultOpenTimeout)
	v.SetDefault(KeyBridgeListen, ":8927")
	v.SetDefault(KeyBridgeName, "minitester")
	v.SetDefault(KeyBridgeMDNS, true)
	v.SetDefault(KeyBridgeServer, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
}

// BindFlags lets the given flags override their configuration keys.
// Flags that a command does not define are skipped.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := l.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration file, if any, and resolves the layers
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.resolve()
}

// File returns the configuration file in use, or "" when running on defaults
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) resolve() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the file on change and hands valid configurations to fn.
// Invalid edits are logged and ignored.
func (l *Loader) Watch(logger *zap.SugaredLogger, fn func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, fn)
	first := len(l.onChange) == 1
	l.mu.Unlock()

	if !first || l.File() == "" {
		return
	}

	l.v.OnConfigChange(func(ev fsnotify.Event) {
		cfg, err := l.resolve()
		if err != nil {
			logger.Warnw("Ignoring invalid configuration change", "file", ev.Name, "error", err)
			return
		}
		logger.Infow("Configuration reloaded", "file", ev.Name, "op", ev.Op.String())

		l.mu.Lock()
		consumers := append([]func(*Config){}, l.onChange...)
		l.mu.Unlock()
		for _, consumer := range consumers {
			consumer(cfg)
		}
	})
	l.v.WatchConfig()
}

// Validate checks values the decoder cannot
func (c *Config) Validate() error {
	if _, err := session.ParseBackend(c.Backend); err != nil {
		return err
	}
	if len(c.Drivers.AutoOrder) == 0 {
		return errors.New("drivers.auto_order must name at least one driver")
	}
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive, got %d", c.Session.MaxSessions)
	}
	if c.Session.OpenTimeout <= 0 {
		return fmt.Errorf("session.open_timeout must be positive, got %s", c.Session.OpenTimeout)
	}
	return nil
}

// DefaultBackend returns the configured backend
func (c *Config) DefaultBackend() session.Backend {
	b, _ := session.ParseBackend(c.Backend)
	return b
}

// OutputOptions returns the driver construction options
func (c *Config) OutputOptions(logger *zap.SugaredLogger) output.Options {
	return output.Options{
		MiniaudioBackends: c.Drivers.MiniaudioBackends,
		NullPeriod:        c.Drivers.NullPeriod,
		Logger:            logger,
	}
}

// EngineConfig builds the session engine configuration with real drivers
func (c *Config) EngineConfig(logger *zap.SugaredLogger) (session.Config, error) {
	drivers, err := session.DefaultDrivers(c.Drivers.AutoOrder, c.OutputOptions(logger))
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		Drivers:     drivers,
		Source:      c.Source,
		Format:      c.Format,
		MaxSessions: c.Session.MaxSessions,
		OpenTimeout: c.Session.OpenTimeout,
		Logger:      logger,
	}, nil
}
