package collector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const microjoulesToJoules = 1e6

// lattePandaCollector derives power from the Intel RAPL energy
// counters under /sys/class/powercap. Power is the energy delta
// between two visits divided by the elapsed time, so the very first
// collection only records a baseline and reports no power yet.
type lattePandaCollector struct {
	powercapRoot string
	host         hostFunc
	now          func() time.Time

	mu   sync.Mutex
	prev map[string]raplReading
}

type raplReading struct {
	energyUJ float64
	at       time.Time
}

func newLattePandaCollector() *lattePandaCollector {
	return &lattePandaCollector{
		powercapRoot: "/sys/class/powercap",
		host:         collectHostMetrics,
		now:          time.Now,
		prev:         make(map[string]raplReading),
	}
}

func (c *lattePandaCollector) MetricNames() []string {
	return []string{
		"lattepanda_power_total_watts",
		"lattepanda_cpu_usage_percent",
		"lattepanda_load_1min",
		"lattepanda_load_5min",
		"lattepanda_load_15min",
		"lattepanda_ram_used_mb",
		"lattepanda_ram_total_mb",
		"lattepanda_ram_used_percent",
	}
}

func (c *lattePandaCollector) Collect(ctx context.Context) (map[string]float64, error) {
	m := make(map[string]float64)

	c.collectRAPL(m)
	c.host(ctx, "lattepanda", m)

	return m, nil
}

func (c *lattePandaCollector) collectRAPL(m map[string]float64) {
	entries, err := os.ReadDir(c.powercapRoot)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var total float64
	var haveTotal bool

	for _, entry := range entries {
		zone := entry.Name()
		if !strings.HasPrefix(zone, "intel-rapl:") {
			continue
		}
		dir := filepath.Join(c.powercapRoot, zone)

		energy, err := readSysfsFloat(filepath.Join(dir, "energy_uj"))
		if err != nil {
			continue
		}

		last, seen := c.prev[zone]
		c.prev[zone] = raplReading{energyUJ: energy, at: now}
		if !seen {
			continue
		}

		delta := energy - last.energyUJ
		if delta < 0 {
			// The counter wrapped; max_energy_range_uj is the modulus.
			maxRange, err := readSysfsFloat(filepath.Join(dir, "max_energy_range_uj"))
			if err != nil || maxRange <= 0 {
				continue
			}
			delta += maxRange
			if delta < 0 {
				continue
			}
		}

		elapsed := now.Sub(last.at).Seconds()
		if elapsed <= 0 {
			continue
		}

		watts := delta / microjoulesToJoules / elapsed
		name, err := readSysfsString(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		m["lattepanda_power_"+sanitizeMetricPart(name)+"_watts"] = round3(watts)

		// Top-level package zones sum to the socket total; subzones
		// like core and dram are already inside their package.
		if strings.Count(zone, ":") == 1 {
			total += watts
			haveTotal = true
		}
	}

	if haveTotal {
		m["lattepanda_power_total_watts"] = round3(total)
	}
}

func (c *lattePandaCollector) Close() error {
	return nil
}
