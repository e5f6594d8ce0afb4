package collector

import (
	"strings"

	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/edgewatt/powerexporter/internal/errors"
)

// New builds the collector for the configured device family. The
// device_type enumeration is closed: anything else is a configuration
// error, not a degraded mode.
func New(cfg *config.Device, rpc StatusClient) (Collector, error) {
	errFactory := errors.New()

	switch strings.ToLower(cfg.DeviceType) {
	case DeviceJetsonOrin, DeviceJetson:
		return newTegraCollector(parseOrinLine), nil
	case DeviceJetsonXavier:
		return newTegraCollector(parseXavierLine), nil
	case DeviceJetsonNano:
		return newTegraCollector(parseNanoLine), nil
	case DeviceShelly:
		return newShellyCollector(cfg, rpc)
	case DeviceRaspberryPi:
		return newRaspberryPiCollector(), nil
	case DeviceOrangePi:
		return newOrangePiCollector(), nil
	case DeviceLattePanda:
		return newLattePandaCollector(), nil
	case DeviceNvidiaGPU:
		return newNvidiaCollector(cfg)
	default:
		return nil, errFactory.WithData(ErrUnknownDeviceType, map[string]any{
			"device_type": cfg.DeviceType,
			"supported":   KnownDeviceTypes(),
		})
	}
}
