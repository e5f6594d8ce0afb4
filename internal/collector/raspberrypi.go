package collector

import (
	"context"
	"path/filepath"
)

const (
	microwattsToWatts = 1e6
	millivoltsToVolts = 1e3
	milliampsToAmps   = 1e3
)

// raspberryPiCollector reads board power from an INA260 (or INA219)
// sensor on the I2C bus, surfaced by the kernel as an hwmon chip, plus
// general host telemetry.
type raspberryPiCollector struct {
	sysRoot string
	host    hostFunc
}

func newRaspberryPiCollector() *raspberryPiCollector {
	return &raspberryPiCollector{
		sysRoot: "/sys",
		host:    collectHostMetrics,
	}
}

func (c *raspberryPiCollector) MetricNames() []string {
	return []string{
		"rpi_power_total_watts",
		"rpi_power_voltage_volts",
		"rpi_power_current_amps",
		"rpi_cpu_usage_percent",
		"rpi_load_1min",
		"rpi_load_5min",
		"rpi_load_15min",
		"rpi_ram_used_mb",
		"rpi_ram_total_mb",
		"rpi_ram_used_percent",
	}
}

func (c *raspberryPiCollector) Collect(ctx context.Context) (map[string]float64, error) {
	m := make(map[string]float64)

	if dir, ok := findHwmonByName(c.sysRoot, "ina260", "ina219"); ok {
		if power, err := readSysfsFloat(filepath.Join(dir, "power1_input")); err == nil {
			m["rpi_power_total_watts"] = round3(power / microwattsToWatts)
		}
		if volts, err := readSysfsFloat(filepath.Join(dir, "in1_input")); err == nil {
			m["rpi_power_voltage_volts"] = round3(volts / millivoltsToVolts)
		}
		if amps, err := readSysfsFloat(filepath.Join(dir, "curr1_input")); err == nil {
			m["rpi_power_current_amps"] = round3(amps / milliampsToAmps)
		}
	}

	c.host(ctx, "rpi", m)

	return m, nil
}

func (c *raspberryPiCollector) Close() error {
	return nil
}
