package collector

// parseNanoLine parses one tegrastats report from a Jetson Nano:
//
//	RAM 1980/3964MB (lfb 5x4MB) SWAP 266/1982MB (cached 1MB)
//	IRAM 0/252kB(lfb 252kB) CPU [13%@102,6%@102,off,off]
//	EMC_FREQ 19%@204 GR3D_FREQ 0%@76 APE 25
//	PLL@20C CPU@23C PMIC@50C GPU@21.5C AO@27C thermal@22.25C
//	POM_5V_IN 1340/1340 POM_5V_GPU 0/0 POM_5V_CPU 313/313
//
// Nano rails use the POM_ prefix and report milliwatts without a unit,
// and the GPU frequency comes without brackets.
func parseNanoLine(out string) map[string]float64 {
	m := make(map[string]float64)

	parseRawRails(out, m)
	parseTemps(out, m)
	parseMemory(out, m)
	parseIRAM(out, m)
	parseCPULanes(out, m)
	parseEMC(out, m)
	parseGPUBare(out, m)
	parseAPE(out, m)

	return m
}
