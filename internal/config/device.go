package config

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/edgewatt/powerexporter/internal/errors"
	"gopkg.in/yaml.v3"
)

// Device configuration defaults
const (
	DefaultInterval   = 5
	DefaultPort       = 9100
	DefaultReloadPort = 9101

	DefaultShellyListenPort     = 8765
	DefaultShellyRequestTimeout = 5

	deviceTypeShelly = "shelly"
)

// Device is the device configuration document. It is the same document
// whether it came from the authority (JSON) or the local mirror (YAML).
type Device struct {
	DeviceType string         `yaml:"device_type" json:"device_type"`
	Interval   int            `yaml:"interval,omitempty" json:"interval,omitempty"`
	Port       int            `yaml:"port,omitempty" json:"port,omitempty"`
	ReloadPort int            `yaml:"reload_port,omitempty" json:"reload_port,omitempty"`
	Metrics    MetricsTable   `yaml:"metrics" json:"metrics"`
	Shelly     *ShellyOptions `yaml:"shelly,omitempty" json:"shelly,omitempty"`
	Nvidia     *NvidiaOptions `yaml:"nvidia,omitempty" json:"nvidia,omitempty"`

	// Extra preserves top-level keys this build does not understand, so
	// that saving the document never discards them.
	Extra map[string]any `yaml:",inline" json:"-"`
}

// ShellyOptions configures the Shelly RPC listener.
type ShellyOptions struct {
	ListenPort     int    `yaml:"listen_port,omitempty" json:"listen_port,omitempty"`
	DeviceID       string `yaml:"device_id,omitempty" json:"device_id,omitempty"`
	SwitchID       int    `yaml:"switch_id" json:"switch_id"`
	RequestTimeout int    `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`
}

// NvidiaOptions configures the NVML-backed collector.
type NvidiaOptions struct {
	DeviceIndex int `yaml:"device_index" json:"device_index"`
}

// MetricsTable maps metric names to their enabled state. Older
// configurations carried a plain list of names meaning "all enabled";
// unmarshalling accepts both shapes and marshalling always emits the
// table form.
type MetricsTable map[string]bool

func (t *MetricsTable) UnmarshalYAML(value *yaml.Node) error {
	errFactory := errors.New()

	switch value.Kind {
	case yaml.MappingNode:
		table := map[string]bool{}
		if err := value.Decode(&table); err != nil {
			return errFactory.Wrap(ErrMalformedDocument, err)
		}
		*t = table
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return errFactory.Wrap(ErrMalformedDocument, err)
		}
		table := make(map[string]bool, len(names))
		for _, name := range names {
			table[name] = true
		}
		*t = table
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*t = MetricsTable{}
			return nil
		}
		return errFactory.WithData(ErrMalformedDocument, "metrics must be a map or a list")
	default:
		return errFactory.WithData(ErrMalformedDocument, "metrics must be a map or a list")
	}

	return nil
}

func (t *MetricsTable) UnmarshalJSON(data []byte) error {
	errFactory := errors.New()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = MetricsTable{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		table := map[string]bool{}
		if err := json.Unmarshal(trimmed, &table); err != nil {
			return errFactory.Wrap(ErrMalformedDocument, err)
		}
		*t = table
	case '[':
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return errFactory.Wrap(ErrMalformedDocument, err)
		}
		table := make(map[string]bool, len(names))
		for _, name := range names {
			table[name] = true
		}
		*t = table
	default:
		return errFactory.WithData(ErrMalformedDocument, "metrics must be an object or an array")
	}

	return nil
}

// applyDefaults fills in the optional fields the document may omit.
func (c *Device) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReloadPort == 0 {
		c.ReloadPort = DefaultReloadPort
	}
	if c.Metrics == nil {
		c.Metrics = MetricsTable{}
	}
	if c.Shelly == nil && strings.EqualFold(c.DeviceType, deviceTypeShelly) {
		c.Shelly = &ShellyOptions{}
	}
	if c.Shelly != nil {
		if c.Shelly.ListenPort == 0 {
			c.Shelly.ListenPort = DefaultShellyListenPort
		}
		if c.Shelly.RequestTimeout <= 0 {
			c.Shelly.RequestTimeout = DefaultShellyRequestTimeout
		}
	}
}

// Validate checks the fields every configuration must carry.
func (c *Device) Validate() error {
	errFactory := errors.New()

	if strings.TrimSpace(c.DeviceType) == "" {
		return errFactory.New(ErrMissingDeviceType)
	}
	if c.Interval < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	return nil
}

// Clone returns a deep copy, so that a new snapshot can be modified
// without racing readers of the old one.
func (c *Device) Clone() *Device {
	out := *c

	out.Metrics = make(MetricsTable, len(c.Metrics))
	for name, enabled := range c.Metrics {
		out.Metrics[name] = enabled
	}
	if c.Shelly != nil {
		shelly := *c.Shelly
		out.Shelly = &shelly
	}
	if c.Nvidia != nil {
		nvidia := *c.Nvidia
		out.Nvidia = &nvidia
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for key, val := range c.Extra {
			out.Extra[key] = val
		}
	}

	return &out
}
