package collector

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/edgewatt/powerexporter/internal/errors"
)

const (
	ErrUnknownDeviceType = errors.ErrUnknownDeviceType

	// Tegra errors
	ErrToolNotFound  = errors.ErrorCode("collector_tool_not_found")
	ErrCommandFailed = errors.ErrorCode("collector_command_failed")
	ErrEmptyOutput   = errors.ErrorCode("collector_empty_output")

	// Shelly errors
	ErrNoDeviceConnected = errors.ErrorCode("collector_no_device_connected")
	ErrMalformedStatus   = errors.ErrorCode("collector_malformed_status")

	// NVML errors
	ErrNVMLInitFailed     = errors.ErrorCode("collector_nvml_init_failed")
	ErrNVMLDeviceNotFound = errors.ErrorCode("collector_nvml_device_not_found")
	ErrNVMLShutdownFailed = errors.ErrorCode("collector_nvml_shutdown_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}
