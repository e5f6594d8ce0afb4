package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/edgewatt/powerexporter/internal/errors"
)

// switchStatusMethod is the Shelly Gen2 RPC that reports everything a
// plug knows about its switch: power, energy counters, temperature and
// error flags.
const switchStatusMethod = "Switch.GetStatus"

// shellyErrorFlags are the error conditions a plug reports by name.
var shellyErrorFlags = []string{"overtemp", "overpower", "overvoltage", "undervoltage"}

// shellyCollector polls a Shelly plug over the RPC broker. The plug
// dialed us, so collection is a request on its outbound connection.
type shellyCollector struct {
	rpc      StatusClient
	deviceID string
	switchID int
	timeout  time.Duration
}

func newShellyCollector(cfg *config.Device, rpc StatusClient) (*shellyCollector, error) {
	errFactory := errors.New()

	if rpc == nil {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "shelly collector needs an RPC broker")
	}

	c := &shellyCollector{
		rpc:     rpc,
		timeout: config.DefaultShellyRequestTimeout * time.Second,
	}
	if cfg.Shelly != nil {
		c.deviceID = cfg.Shelly.DeviceID
		c.switchID = cfg.Shelly.SwitchID
		if cfg.Shelly.RequestTimeout > 0 {
			c.timeout = time.Duration(cfg.Shelly.RequestTimeout) * time.Second
		}
	}

	return c, nil
}

func (c *shellyCollector) MetricNames() []string {
	return []string{
		"shelly_power_switch_output",
		"shelly_power_total_watts",
		"shelly_power_voltage_volts",
		"shelly_power_current_amps",
		"shelly_power_factor",
		"shelly_power_frequency_hz",
		"shelly_energy_total_wh",
		"shelly_temperature_celsius",
		"shelly_errors_count",
	}
}

func (c *shellyCollector) Collect(ctx context.Context) (map[string]float64, error) {
	errFactory := errors.New()

	deviceID := c.deviceID
	if deviceID == "" {
		ids := c.rpc.DeviceIDs()
		if len(ids) == 0 {
			return nil, errFactory.New(ErrNoDeviceConnected)
		}
		deviceID = ids[0]
	}

	result, err := c.rpc.Request(ctx, deviceID, switchStatusMethod, map[string]int{"id": c.switchID}, c.timeout)
	if err != nil {
		return nil, err
	}

	return ParseSwitchStatus(result)
}

func (c *shellyCollector) Close() error {
	return nil
}

// ParseSwitchStatus converts a Switch.GetStatus result into metric
// samples. Fields the firmware does not report are omitted.
func ParseSwitchStatus(result json.RawMessage) (map[string]float64, error) {
	errFactory := errors.New()

	var status map[string]any
	if err := json.Unmarshal(result, &status); err != nil {
		return nil, errFactory.Wrap(ErrMalformedStatus, err)
	}

	m := make(map[string]float64)

	if output, ok := status["output"].(bool); ok {
		m["shelly_power_switch_output"] = boolToSample(output)
	}
	putNumber(m, "shelly_power_total_watts", status, "apower")
	putNumber(m, "shelly_power_voltage_volts", status, "voltage")
	putNumber(m, "shelly_power_current_amps", status, "current")
	putNumber(m, "shelly_power_factor", status, "pf")
	putNumber(m, "shelly_power_frequency_hz", status, "freq")

	if aenergy, ok := status["aenergy"].(map[string]any); ok {
		parseEnergyBlock(m, aenergy, "shelly_energy")
	}
	if returned, ok := status["ret_aenergy"].(map[string]any); ok {
		parseEnergyBlock(m, returned, "shelly_energy_returned")
	}

	if temperature, ok := status["temperature"].(map[string]any); ok {
		putNumber(m, "shelly_temperature_celsius", temperature, "tC")
		putNumber(m, "shelly_temperature_fahrenheit", temperature, "tF")
	}

	if rawErrors, ok := status["errors"].([]any); ok {
		active := make(map[string]bool, len(rawErrors))
		for _, raw := range rawErrors {
			if name, ok := raw.(string); ok {
				active[name] = true
			}
		}
		m["shelly_errors_count"] = float64(len(rawErrors))
		for _, flag := range shellyErrorFlags {
			m["shelly_error_"+flag] = boolToSample(active[flag])
		}
	}

	return m, nil
}

// parseEnergyBlock handles the aenergy/ret_aenergy counter objects:
// a lifetime total in Wh plus per-minute history in mWh.
func parseEnergyBlock(m map[string]float64, block map[string]any, prefix string) {
	putNumber(m, prefix+"_total_wh", block, "total")

	if byMinute, ok := block["by_minute"].([]any); ok {
		for i, raw := range byMinute {
			if i >= 3 {
				break
			}
			if value, ok := asNumber(raw); ok {
				m[fmt.Sprintf("%s_minute_%d_mwh", prefix, i)] = value
			}
		}
	}

	putNumber(m, prefix+"_minute_timestamp", block, "minute_ts")
}

func putNumber(m map[string]float64, metric string, src map[string]any, key string) {
	if value, ok := asNumber(src[key]); ok {
		m[metric] = value
	}
}

func asNumber(raw any) (float64, bool) {
	value, ok := raw.(float64)
	return value, ok
}

func boolToSample(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
