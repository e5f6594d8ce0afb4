package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRAPLZone(t *testing.T, root, zone, name, energyUJ string) {
	t.Helper()

	dir := filepath.Join(root, zone)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "energy_uj"), []byte(energyUJ+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_energy_range_uj"), []byte("262143328850\n"), 0o644))
}

func newTestLattePanda(root string) (*lattePandaCollector, *time.Time) {
	clock := time.Unix(1700000000, 0)
	c := newLattePandaCollector()
	c.powercapRoot = root
	c.host = func(context.Context, string, map[string]float64) {}
	c.now = func() time.Time { return clock }

	return c, &clock
}

func TestLattePandaFirstCycleRecordsBaselineOnly(t *testing.T) {
	root := t.TempDir()
	writeRAPLZone(t, root, "intel-rapl:0", "package-0", "1000000")
	writeRAPLZone(t, root, "intel-rapl:0:0", "core", "600000")

	c, clock := newTestLattePanda(root)

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m, "Expected no power samples until a second visit establishes a delta")

	*clock = clock.Add(2 * time.Second)
	writeRAPLZone(t, root, "intel-rapl:0", "package-0", "5000000")
	writeRAPLZone(t, root, "intel-rapl:0:0", "core", "1600000")

	m, err = c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, m["lattepanda_power_package_0_watts"], "Expected 4 J over 2 s")
	assert.Equal(t, 0.5, m["lattepanda_power_core_watts"])
	assert.Equal(t, 2.0, m["lattepanda_power_total_watts"], "Expected the total over package zones only, not subzones")
}

func TestLattePandaCounterWraparound(t *testing.T) {
	root := t.TempDir()
	writeRAPLZone(t, root, "intel-rapl:0", "package-0", "262143000000")

	c, clock := newTestLattePanda(root)

	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	*clock = clock.Add(time.Second)
	writeRAPLZone(t, root, "intel-rapl:0", "package-0", "671150")

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, m["lattepanda_power_package_0_watts"], "Expected the delta corrected by max_energy_range_uj after a counter wrap")
	assert.Equal(t, 1.0, m["lattepanda_power_total_watts"])
}

func TestLattePandaIgnoresForeignPowercapEntries(t *testing.T) {
	root := t.TempDir()
	writeRAPLZone(t, root, "intel-rapl:0", "package-0", "1000000")
	writeRAPLZone(t, root, "intel-rapl-mmio:0", "package-0", "999999999")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "intel-rapl"), 0o755))

	c, clock := newTestLattePanda(root)

	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	*clock = clock.Add(time.Second)
	writeRAPLZone(t, root, "intel-rapl:0", "package-0", "2000000")

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, m["lattepanda_power_total_watts"], "Expected only intel-rapl: zones to feed the total")
}

func TestLattePandaHostPrefix(t *testing.T) {
	c, _ := newTestLattePanda(t.TempDir())
	c.host = func(_ context.Context, prefix string, m map[string]float64) {
		m[prefix+"_cpu_usage_percent"] = 12.5
	}

	m, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.5, m["lattepanda_cpu_usage_percent"])
}
