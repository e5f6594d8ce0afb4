package collector

// parseXavierLine parses one tegrastats report from a Jetson Xavier:
//
//	RAM 4722/15823MB (lfb 1154x4MB) SWAP 0/7911MB (cached 0MB)
//	CPU [1%@1190,0%@1190,0%@1190,0%@1190,off,off,off,off]
//	EMC_FREQ 0%@204 GR3D_FREQ 0%@[510] VIC_FREQ 115 APE 150
//	AUX@32.5C CPU@33.5C thermal@33.05C AO@31C GPU@32C PMIC@50C
//	GPU 0mW/0mW CPU 311mW/311mW SOC 932mW/932mW CV 0mW/0mW
//	VDDRQ 155mW/155mW SYS5V 1554mW/1554mW
//
// The PMIC sensor pins at 50C and detached sensors report a large
// negative sentinel, which parseTemps already drops.
func parseXavierLine(out string) map[string]float64 {
	m := make(map[string]float64)

	parseMilliwattRails(out, m)
	parseTemps(out, m)
	parseMemory(out, m)
	parseCPULanes(out, m)
	parseEMC(out, m)
	parseGPUBracket(out, m)
	parseVIC(out, m)
	parseAPE(out, m)

	return m
}
