package collector

// parseOrinLine parses one tegrastats report from a Jetson Orin:
//
//	RAM 5848/62801MB (lfb 6x4MB) SWAP 0/31400MB (cached 0MB)
//	CPU [0%@1728,0%@1728,off,off,0%@729,0%@729,0%@729,0%@729]
//	EMC_FREQ 0%@3199 GR3D_FREQ 0%@[611,0] VIC_FREQ 729 APE 174
//	cpu@47.5C soc2@44.75C soc0@45.625C gpu@45.125C tj@47.5C
//	VDD_GPU_SOC 3176mW/3176mW VDD_CPU_CV 793mW/793mW VIN_SYS_5V0 4952mW/4952mW
//
// Orin reports one GPU frequency per cluster inside the brackets.
func parseOrinLine(out string) map[string]float64 {
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
