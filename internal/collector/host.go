package collector

import (
	"context"
	"strings"
	"unicode"

	"github.com/edgewatt/powerexporter/internal/logger"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostFunc fills m with host-level telemetry under the given prefix.
type hostFunc func(ctx context.Context, prefix string, m map[string]float64)

// collectHostMetrics gathers CPU, load, memory and temperature readings
// for the single-board families. Whatever cannot be read on this kernel
// is skipped.
func collectHostMetrics(ctx context.Context, prefix string, m map[string]float64) {
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		m[prefix+"_cpu_usage_percent"] = round2(percents[0])
	} else if err != nil {
		logger.Debug().Err(err).Msg("CPU usage unavailable")
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		m[prefix+"_load_1min"] = round2(avg.Load1)
		m[prefix+"_load_5min"] = round2(avg.Load5)
		m[prefix+"_load_15min"] = round2(avg.Load15)
	} else {
		logger.Debug().Err(err).Msg("Load averages unavailable")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m[prefix+"_ram_used_mb"] = round2(float64(vm.Used) / bytesToMegabytes)
		m[prefix+"_ram_total_mb"] = round2(float64(vm.Total) / bytesToMegabytes)
		m[prefix+"_ram_used_percent"] = round2(vm.UsedPercent)
	} else {
		logger.Debug().Err(err).Msg("Memory stats unavailable")
	}

	if sensors, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, sensor := range sensors {
			key := sanitizeMetricPart(sensor.SensorKey)
			if key == "" {
				continue
			}
			m[prefix+"_temp_"+key+"_celsius"] = round2(sensor.Temperature)
		}
	} else {
		logger.Debug().Err(err).Msg("Temperature sensors unavailable")
	}
}

// sanitizeMetricPart lowercases a sensor name and squashes anything
// that is not valid inside a metric name into underscores.
func sanitizeMetricPart(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return strings.Trim(b.String(), "_")
}
