package collector

import (
	"context"
	"os"
	"path/filepath"
)

const (
	microvoltsToVolts = 1e6
	microampsToAmps   = 1e6
)

// orangePiCollector reads board power from the kernel power_supply
// class. Boards whose supply driver reports power_now use it directly;
// otherwise power is derived from voltage_now and current_now.
type orangePiCollector struct {
	sysRoot string
	host    hostFunc
}

func newOrangePiCollector() *orangePiCollector {
	return &orangePiCollector{
		sysRoot: "/sys",
		host:    collectHostMetrics,
	}
}

func (c *orangePiCollector) MetricNames() []string {
	return []string{
		"orangepi_power_total_watts",
		"orangepi_power_voltage_volts",
		"orangepi_power_current_amps",
		"orangepi_cpu_usage_percent",
		"orangepi_load_1min",
		"orangepi_load_5min",
		"orangepi_load_15min",
		"orangepi_ram_used_mb",
		"orangepi_ram_total_mb",
		"orangepi_ram_used_percent",
	}
}

func (c *orangePiCollector) Collect(ctx context.Context) (map[string]float64, error) {
	m := make(map[string]float64)

	c.collectSupply(m)
	c.host(ctx, "orangepi", m)

	return m, nil
}

func (c *orangePiCollector) collectSupply(m map[string]float64) {
	supplyRoot := filepath.Join(c.sysRoot, "class", "power_supply")
	entries, err := os.ReadDir(supplyRoot)
	if err != nil {
		return
	}

	for _, entry := range entries {
		dir := filepath.Join(supplyRoot, entry.Name())

		if power, err := readSysfsFloat(filepath.Join(dir, "power_now")); err == nil {
			m["orangepi_power_total_watts"] = round3(power / microwattsToWatts)
			return
		}

		volts, voltErr := readSysfsFloat(filepath.Join(dir, "voltage_now"))
		amps, ampErr := readSysfsFloat(filepath.Join(dir, "current_now"))
		if voltErr == nil && ampErr == nil {
			volts /= microvoltsToVolts
			amps /= microampsToAmps
			m["orangepi_power_voltage_volts"] = round3(volts)
			m["orangepi_power_current_amps"] = round3(amps)
			m["orangepi_power_total_watts"] = round3(volts * amps)
			return
		}
	}
}

func (c *orangePiCollector) Close() error {
	return nil
}
