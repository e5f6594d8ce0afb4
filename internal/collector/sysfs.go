package collector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edgewatt/powerexporter/internal/errors"
)

// readSysfsFloat reads a sysfs attribute holding a single number.
func readSysfsFloat(path string) (float64, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrCollectMetrics, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrCollectMetrics, err)
	}

	return value, nil
}

// readSysfsString reads a sysfs attribute holding a single word.
func readSysfsString(path string) (string, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrCollectMetrics, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// findHwmonByName scans /sys/class/hwmon for a device whose name file
// matches one of the wanted chip names. It returns the hwmon directory.
func findHwmonByName(root string, wanted ...string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(root, "class", "hwmon"))
	if err != nil {
		return "", false
	}

	for _, entry := range entries {
		dir := filepath.Join(root, "class", "hwmon", entry.Name())
		name, err := readSysfsString(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		for _, w := range wanted {
			if strings.EqualFold(name, w) {
				return dir, true
			}
		}
	}

	return "", false
}
