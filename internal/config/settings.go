package config

import (
	"os"
	"strings"
	"time"

	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Agent settings defaults
const (
	DefaultServerURL       = "http://localhost:8080"
	DefaultTimeoutSeconds  = 5
	DefaultLocalConfigPath = "./config.yaml"
	DefaultLogLevel        = "info"

	settingsFileName = "powerexporter.conf"
	settingsFileEnv  = "POWEREXPORTER_CONFIG"
	envPrefix        = "POWEREXPORTER"
)

// Settings holds the agent-level options that tell the process how to
// reach the configuration authority. The device configuration itself is
// resolved separately.
type Settings struct {
	ServerURL       string `mapstructure:"config_server_url"`
	TimeoutSeconds  int    `mapstructure:"config_timeout"`
	LocalConfigPath string `mapstructure:"local_config_path"`
	DeviceID        string `mapstructure:"device_id"`
	LogLevel        string `mapstructure:"log_level"`
}

// Timeout returns the authority request timeout as a duration.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Load reads agent settings from flags, environment variables and the
// settings file, in that order of precedence.
func Load() (*Settings, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("powerexporter", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.String("config", "", "Path to the agent settings file")
	fs.String("config-server-url", DefaultServerURL, "Base URL of the configuration authority")
	fs.Int("config-timeout", DefaultTimeoutSeconds, "Authority request timeout in seconds")
	fs.String("local-config-path", DefaultLocalConfigPath, "Path to the local device configuration")
	fs.String("device-id", "", "Device identity (defaults to the hostname)")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("config_server_url", DefaultServerURL)
	v.SetDefault("config_timeout", DefaultTimeoutSeconds)
	v.SetDefault("local_config_path", DefaultLocalConfigPath)
	v.SetDefault("device_id", "")
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := readSettingsFile(v, fs); err != nil {
		return nil, err
	}

	// Flags that were actually set override everything else.
	flagKeys := map[string]string{
		"config-server-url": "config_server_url",
		"config-timeout":    "config_timeout",
		"local-config-path": "local_config_path",
		"device-id":         "device_id",
		"log-level":         "log_level",
	}
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if settings.DeviceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInternal, err)
		}
		settings.DeviceID = hostname
	}

	settings.ServerURL = strings.TrimRight(settings.ServerURL, "/")
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if !LogLevel(settings.LogLevel).IsValid() {
		return nil, errFactory.WithData(ErrInvalidLogLevel, settings.LogLevel)
	}

	return settings, nil
}

func readSettingsFile(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(settingsFileEnv)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(settingsFileName)
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(ErrReadConfig, err)
		}
	}

	return nil
}
