package collector

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusClient struct {
	ids    []string
	result json.RawMessage
	err    error

	requests    int
	lastDevice  string
	lastMethod  string
	lastParams  any
	lastTimeout time.Duration
}

func (f *fakeStatusClient) Request(_ context.Context, deviceID, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	f.requests++
	f.lastDevice = deviceID
	f.lastMethod = method
	f.lastParams = params
	f.lastTimeout = timeout

	return f.result, f.err
}

func (f *fakeStatusClient) DeviceIDs() []string {
	return f.ids
}

const switchStatusPayload = `{
	"id": 0,
	"source": "WS_in",
	"output": true,
	"apower": 52.3,
	"voltage": 231.2,
	"current": 0.226,
	"pf": 0.98,
	"freq": 50.0,
	"aenergy": {
		"total": 1234.567,
		"by_minute": [872.1, 901.4, 890.0, 755.2],
		"minute_ts": 1700000040
	},
	"ret_aenergy": {
		"total": 0.0,
		"by_minute": [0, 0, 0],
		"minute_ts": 1700000040
	},
	"temperature": {"tC": 38.9, "tF": 102.0},
	"errors": ["overtemp"]
}`

func TestParseSwitchStatusFullPayload(t *testing.T) {
	m, err := ParseSwitchStatus(json.RawMessage(switchStatusPayload))
	require.NoError(t, err)

	assert.Equal(t, 1.0, m["shelly_power_switch_output"], "Expected the relay state as a 0/1 sample")
	assert.Equal(t, 52.3, m["shelly_power_total_watts"])
	assert.Equal(t, 231.2, m["shelly_power_voltage_volts"])
	assert.Equal(t, 0.226, m["shelly_power_current_amps"])
	assert.Equal(t, 0.98, m["shelly_power_factor"])
	assert.Equal(t, 50.0, m["shelly_power_frequency_hz"])

	assert.Equal(t, 1234.567, m["shelly_energy_total_wh"])
	assert.Equal(t, 872.1, m["shelly_energy_minute_0_mwh"])
	assert.Equal(t, 901.4, m["shelly_energy_minute_1_mwh"])
	assert.Equal(t, 890.0, m["shelly_energy_minute_2_mwh"])
	assert.NotContains(t, m, "shelly_energy_minute_3_mwh", "Expected the per-minute history capped at three slots")
	assert.Equal(t, 1700000040.0, m["shelly_energy_minute_timestamp"])

	assert.Equal(t, 0.0, m["shelly_energy_returned_total_wh"])
	assert.Equal(t, 0.0, m["shelly_energy_returned_minute_1_mwh"])

	assert.Equal(t, 38.9, m["shelly_temperature_celsius"])
	assert.Equal(t, 102.0, m["shelly_temperature_fahrenheit"])

	assert.Equal(t, 1.0, m["shelly_errors_count"])
	assert.Equal(t, 1.0, m["shelly_error_overtemp"])
	assert.Equal(t, 0.0, m["shelly_error_overpower"])
	assert.Equal(t, 0.0, m["shelly_error_overvoltage"])
	assert.Equal(t, 0.0, m["shelly_error_undervoltage"])
}

func TestParseSwitchStatusPartialPayload(t *testing.T) {
	m, err := ParseSwitchStatus(json.RawMessage(`{"output": false, "apower": 0.0}`))
	require.NoError(t, err)

	assert.Equal(t, 0.0, m["shelly_power_switch_output"])
	assert.Equal(t, 0.0, m["shelly_power_total_watts"])
	assert.Len(t, m, 2, "Expected unreported fields to be omitted, not zeroed")
}

func TestParseSwitchStatusNullTemperature(t *testing.T) {
	m, err := ParseSwitchStatus(json.RawMessage(`{"temperature": {"tC": null, "tF": null}}`))
	require.NoError(t, err)

	assert.NotContains(t, m, "shelly_temperature_celsius")
	assert.NotContains(t, m, "shelly_temperature_fahrenheit")
}

func TestParseSwitchStatusMalformed(t *testing.T) {
	_, err := ParseSwitchStatus(json.RawMessage(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector_malformed_status")

	_, err = ParseSwitchStatus(json.RawMessage(`[1, 2, 3]`))
	require.Error(t, err, "Expected a non-object status to be rejected")
}

func TestShellyCollectorSelectsSoleDevice(t *testing.T) {
	rpc := &fakeStatusClient{
		ids:    []string{"shellyplus1pm-a8032ab12345"},
		result: json.RawMessage(switchStatusPayload),
	}
	c, err := newShellyCollector(&config.Device{DeviceType: DeviceShelly}, rpc)
	require.NoError(t, err)

	samples, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "shellyplus1pm-a8032ab12345", rpc.lastDevice, "Expected the sole connected plug to be polled")
	assert.Equal(t, switchStatusMethod, rpc.lastMethod)
	assert.Equal(t, map[string]int{"id": 0}, rpc.lastParams)
	assert.Equal(t, config.DefaultShellyRequestTimeout*time.Second, rpc.lastTimeout)
	assert.Equal(t, 52.3, samples["shelly_power_total_watts"])
}

func TestShellyCollectorPinnedDevice(t *testing.T) {
	rpc := &fakeStatusClient{
		ids:    []string{"other-plug"},
		result: json.RawMessage(`{"apower": 3.5}`),
	}
	cfg := &config.Device{
		DeviceType: DeviceShelly,
		Shelly: &config.ShellyOptions{
			DeviceID:       "shellyplus1pm-a8032ab12345",
			SwitchID:       1,
			RequestTimeout: 2,
		},
	}
	c, err := newShellyCollector(cfg, rpc)
	require.NoError(t, err)

	_, err = c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "shellyplus1pm-a8032ab12345", rpc.lastDevice, "Expected the configured identity to win over discovery")
	assert.Equal(t, map[string]int{"id": 1}, rpc.lastParams)
	assert.Equal(t, 2*time.Second, rpc.lastTimeout)
}

func TestShellyCollectorNoDeviceConnected(t *testing.T) {
	rpc := &fakeStatusClient{}
	c, err := newShellyCollector(&config.Device{DeviceType: DeviceShelly}, rpc)
	require.NoError(t, err)

	_, err = c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector_no_device_connected")
	assert.Zero(t, rpc.requests, "Expected no RPC without a connected plug")
}
