package collector

import (
	"context"
	"encoding/json"
	"time"
)

// Collector reads telemetry from one device family. Implementations
// return whatever subset of their metrics could be read this cycle;
// a sensor that cannot be read is omitted, not zeroed.
type Collector interface {
	// MetricNames lists the metric names this collector is known to
	// produce. Families that discover their metrics at runtime return
	// the names seen so far.
	MetricNames() []string

	// Collect reads the device once.
	Collect(ctx context.Context) (map[string]float64, error)

	// Close releases any device handles.
	Close() error
}

// StatusClient is the RPC surface the Shelly family collects through.
// It is implemented by the broker.
type StatusClient interface {
	// Request sends an RPC to the named device and waits for the
	// correlated response.
	Request(ctx context.Context, deviceID, method string, params any, timeout time.Duration) (json.RawMessage, error)

	// DeviceIDs lists the currently connected device identities.
	DeviceIDs() []string
}

// Known device families
const (
	DeviceJetsonOrin   = "jetson_orin"
	DeviceJetsonXavier = "jetson_xavier"
	DeviceJetsonNano   = "jetson_nano"
	DeviceJetson       = "jetson" // historical alias for jetson_orin
	DeviceShelly       = "shelly"
	DeviceRaspberryPi  = "raspberry_pi"
	DeviceOrangePi     = "orange_pi"
	DeviceLattePanda   = "lattepanda"
	DeviceNvidiaGPU    = "nvidia_gpu"
)

// KnownDeviceTypes returns every accepted device_type value.
func KnownDeviceTypes() []string {
	return []string{
		DeviceJetsonOrin,
		DeviceJetsonXavier,
		DeviceJetsonNano,
		DeviceJetson,
		DeviceShelly,
		DeviceRaspberryPi,
		DeviceOrangePi,
		DeviceLattePanda,
		DeviceNvidiaGPU,
	}
}
