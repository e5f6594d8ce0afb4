package config

import "context"

// Source identifies where the active device configuration came from.
type Source string

const (
	// SourceCentral means the configuration authority answered and its
	// document is authoritative for this process.
	SourceCentral Source = "central"
	// SourceLocal means the authority was unreachable and the local
	// mirror is in effect until the next successful reload.
	SourceLocal Source = "local"
)

// Store persists the local mirror of the device configuration.
type Store interface {
	// Load reads and validates the local configuration document.
	Load() (*Device, error)

	// Save atomically replaces the local configuration document.
	Save(cfg *Device) error
}

// Authority talks to the central configuration service.
type Authority interface {
	// Fetch retrieves this device's configuration from the authority.
	Fetch(ctx context.Context) (*Device, error)

	// Push uploads the given configuration for this device.
	Push(ctx context.Context, cfg *Device) error
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
