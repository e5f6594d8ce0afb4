package collector

import (
	"context"
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
)

const (
	milliWattsToWatts = 1000
	bytesToMegabytes  = 1024 * 1024
)

// nvidiaCollector reads a discrete NVIDIA GPU through NVML. It never
// changes device state; every call is a plain query.
type nvidiaCollector struct {
	device   nvml.Device
	fanCount int
}

func newNvidiaCollector(cfg *config.Device) (*nvidiaCollector, error) {
	errFactory := errors.New()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errFactory.Wrap(ErrNVMLInitFailed, newNVMLError(ret))
	}

	index := 0
	if cfg.Nvidia != nil {
		index = cfg.Nvidia.DeviceIndex
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		if shutdownRet := nvml.Shutdown(); shutdownRet != nvml.SUCCESS {
			logger.Debug().Err(newNVMLError(shutdownRet)).Msg("NVML shutdown failed")
		}
		return nil, errFactory.Wrap(ErrNVMLDeviceNotFound, newNVMLError(ret))
	}

	name, ret := device.GetName()
	if ret == nvml.SUCCESS {
		logger.Info().Msgf("Detected GPU: %v", name)
	}

	fanCount := 0
	if count, ret := device.GetNumFans(); ret == nvml.SUCCESS {
		fanCount = count
	}

	return &nvidiaCollector{device: device, fanCount: fanCount}, nil
}

func (c *nvidiaCollector) MetricNames() []string {
	names := []string{
		"nvidia_temp_gpu_celsius",
		"nvidia_power_usage_watts",
		"nvidia_power_limit_watts",
		"nvidia_gpu_usage_percent",
		"nvidia_mem_usage_percent",
		"nvidia_ram_used_mb",
		"nvidia_ram_total_mb",
		"nvidia_ram_used_percent",
		"nvidia_clock_graphics_mhz",
		"nvidia_clock_sm_mhz",
		"nvidia_clock_mem_mhz",
	}
	for i := 0; i < c.fanCount; i++ {
		names = append(names, fmt.Sprintf("nvidia_fan%d_speed_percent", i))
	}

	return names
}

// Collect queries every sensor independently, so one failing read only
// drops its own metric.
func (c *nvidiaCollector) Collect(_ context.Context) (map[string]float64, error) {
	m := make(map[string]float64)

	if temp, ret := c.device.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		m["nvidia_temp_gpu_celsius"] = float64(temp)
	}

	if usage, ret := c.device.GetPowerUsage(); ret == nvml.SUCCESS {
		m["nvidia_power_usage_watts"] = round3(float64(usage) / milliWattsToWatts)
	}

	if limit, ret := c.device.GetPowerManagementLimit(); ret == nvml.SUCCESS {
		m["nvidia_power_limit_watts"] = round3(float64(limit) / milliWattsToWatts)
	}

	if util, ret := c.device.GetUtilizationRates(); ret == nvml.SUCCESS {
		m["nvidia_gpu_usage_percent"] = float64(util.Gpu)
		m["nvidia_mem_usage_percent"] = float64(util.Memory)
	}

	if memInfo, ret := c.device.GetMemoryInfo(); ret == nvml.SUCCESS {
		used := float64(memInfo.Used) / bytesToMegabytes
		total := float64(memInfo.Total) / bytesToMegabytes
		m["nvidia_ram_used_mb"] = round2(used)
		m["nvidia_ram_total_mb"] = round2(total)
		if total > 0 {
			m["nvidia_ram_used_percent"] = round2(used / total * 100)
		}
	}

	if clock, ret := c.device.GetClockInfo(nvml.CLOCK_GRAPHICS); ret == nvml.SUCCESS {
		m["nvidia_clock_graphics_mhz"] = float64(clock)
	}
	if clock, ret := c.device.GetClockInfo(nvml.CLOCK_SM); ret == nvml.SUCCESS {
		m["nvidia_clock_sm_mhz"] = float64(clock)
	}
	if clock, ret := c.device.GetClockInfo(nvml.CLOCK_MEM); ret == nvml.SUCCESS {
		m["nvidia_clock_mem_mhz"] = float64(clock)
	}

	for i := 0; i < c.fanCount; i++ {
		if speed, ret := c.device.GetFanSpeed_v2(i); ret == nvml.SUCCESS {
			m[fmt.Sprintf("nvidia_fan%d_speed_percent", i)] = float64(speed)
		}
	}

	return m, nil
}

func (c *nvidiaCollector) Close() error {
	errFactory := errors.New()

	if err := newNVMLError(nvml.Shutdown()); err != nil && !errors.IsNVMLSuccess(err) {
		return errFactory.Wrap(ErrNVMLShutdownFailed, err)
	}

	return nil
}
