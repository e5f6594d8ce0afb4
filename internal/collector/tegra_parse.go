package collector

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// tegrastats report fragments shared by every Jetson generation. Each
// helper recognizes one fragment and contributes its metrics; fragments
// that fail to match are simply skipped, so one corrupt field never
// takes down the rest of the report.
var (
	railMilliwattRe = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_]*)\s+(\d+)mW(?:/(\d+)mW)?`)
	railRawRe       = regexp.MustCompile(`(POM_[A-Za-z0-9_]+)\s+(\d+)(?:/(\d+))?`)
	tempRe          = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_]*)@(-?[\d.]+)C`)
	ramRe           = regexp.MustCompile(`RAM\s+(\d+)/(\d+)MB`)
	swapRe          = regexp.MustCompile(`SWAP\s+(\d+)/(\d+)MB(?:\s+\(cached\s+(\d+)MB\))?`)
	lfbRe           = regexp.MustCompile(`lfb\s+(\d+)x(\d+)MB`)
	iramRe          = regexp.MustCompile(`IRAM\s+(\d+)/(\d+)kB`)
	iramLfbRe       = regexp.MustCompile(`IRAM\s+\d+/\d+kB\(lfb\s+(\d+)kB\)`)
	cpuLanesRe      = regexp.MustCompile(`CPU\s+\[([^\]]+)\]`)
	cpuLaneRe       = regexp.MustCompile(`^(\d+)%@(\d+)`)
	emcRe           = regexp.MustCompile(`EMC_FREQ\s+(\d+)%(?:@(\d+))?`)
	gpuBracketRe    = regexp.MustCompile(`GR3D_FREQ\s+(\d+)%@\[([^\]]+)\]`)
	gpuBareRe       = regexp.MustCompile(`GR3D_FREQ\s+(\d+)%@(\d+)`)
	vicRe           = regexp.MustCompile(`VIC_FREQ\s+(\d+)`)
	apeRe           = regexp.MustCompile(`APE\s+(\d+)`)
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// parseMilliwattRails handles "RAIL 3176mW/3176mW" power entries. The
// value before the slash is instantaneous, the one after is the board's
// running average. Rails named NC are unconnected and skipped.
func parseMilliwattRails(out string, m map[string]float64) {
	for _, match := range railMilliwattRe.FindAllStringSubmatch(out, -1) {
		rail := strings.ToLower(match[1])
		if rail == "nc" {
			continue
		}

		current, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		m["jetson_power_"+rail+"_watts"] = round3(current / 1000)

		if match[3] != "" {
			avg, err := strconv.ParseFloat(match[3], 64)
			if err != nil {
				continue
			}
			m["jetson_power_"+rail+"_avg_watts"] = round3(avg / 1000)
		}
	}
}

// parseRawRails handles the Nano's "POM_5V_IN 2003/2003" form, which
// reports milliwatts without a unit suffix.
func parseRawRails(out string, m map[string]float64) {
	for _, match := range railRawRe.FindAllStringSubmatch(out, -1) {
		rail := strings.ToLower(match[1])

		current, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		m["jetson_power_"+rail+"_watts"] = round3(current / 1000)

		if match[3] != "" {
			avg, err := strconv.ParseFloat(match[3], 64)
			if err != nil {
				continue
			}
			m["jetson_power_"+rail+"_avg_watts"] = round3(avg / 1000)
		}
	}
}

// parseTemps handles "cpu@47.5C" sensor entries. Detached sensors
// report a large negative sentinel and are skipped.
func parseTemps(out string, m map[string]float64) {
	for _, match := range tempRe.FindAllStringSubmatch(out, -1) {
		value, err := strconv.ParseFloat(match[2], 64)
		if err != nil || value < -100 {
			continue
		}
		m["jetson_temp_"+strings.ToLower(match[1])+"_celsius"] = round2(value)
	}
}

// parseMemory handles the RAM, SWAP and largest-free-block fragments.
func parseMemory(out string, m map[string]float64) {
	if match := ramRe.FindStringSubmatch(out); match != nil {
		used, err1 := strconv.ParseFloat(match[1], 64)
		total, err2 := strconv.ParseFloat(match[2], 64)
		if err1 == nil && err2 == nil {
			m["jetson_ram_used_mb"] = used
			m["jetson_ram_total_mb"] = total
			if total > 0 {
				m["jetson_ram_used_percent"] = round2(used / total * 100)
			}
		}
	}

	if match := swapRe.FindStringSubmatch(out); match != nil {
		used, err1 := strconv.ParseFloat(match[1], 64)
		total, err2 := strconv.ParseFloat(match[2], 64)
		if err1 == nil && err2 == nil {
			m["jetson_swap_used_mb"] = used
			m["jetson_swap_total_mb"] = total
		}
		if match[3] != "" {
			if cached, err := strconv.ParseFloat(match[3], 64); err == nil {
				m["jetson_swap_cached_mb"] = cached
			}
		}
	}

	if match := lfbRe.FindStringSubmatch(out); match != nil {
		blocks, err1 := strconv.ParseFloat(match[1], 64)
		size, err2 := strconv.ParseFloat(match[2], 64)
		if err1 == nil && err2 == nil {
			m["jetson_lfb_blocks"] = blocks
			m["jetson_lfb_total_mb"] = blocks * size
		}
	}
}

// parseIRAM handles the Nano's on-chip IRAM fragment.
func parseIRAM(out string, m map[string]float64) {
	if match := iramRe.FindStringSubmatch(out); match != nil {
		used, err1 := strconv.ParseFloat(match[1], 64)
		total, err2 := strconv.ParseFloat(match[2], 64)
		if err1 == nil && err2 == nil {
			m["jetson_iram_used_kb"] = used
			m["jetson_iram_total_kb"] = total
			if total > 0 {
				m["jetson_iram_used_percent"] = round2(used / total * 100)
			} else {
				m["jetson_iram_used_percent"] = 0
			}
		}
	}

	if match := iramLfbRe.FindStringSubmatch(out); match != nil {
		if lfb, err := strconv.ParseFloat(match[1], 64); err == nil {
			m["jetson_iram_lfb_kb"] = lfb
		}
	}
}

// parseCPULanes handles the per-core "[3%@1728,off,...]" block. Cores
// that are off only report a status; the usage average counts active
// cores only.
func parseCPULanes(out string, m map[string]float64) {
	match := cpuLanesRe.FindStringSubmatch(out)
	if match == nil {
		return
	}

	var totalUsage float64
	var activeCores int
	for i, lane := range strings.Split(match[1], ",") {
		lane = strings.TrimSpace(lane)
		if lane == "off" {
			m[fmt.Sprintf("jetson_cpu_core%d_status", i)] = 0
			continue
		}

		laneMatch := cpuLaneRe.FindStringSubmatch(lane)
		if laneMatch == nil {
			continue
		}
		usage, err1 := strconv.ParseFloat(laneMatch[1], 64)
		freq, err2 := strconv.ParseFloat(laneMatch[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}

		m[fmt.Sprintf("jetson_cpu_core%d_usage_percent", i)] = usage
		m[fmt.Sprintf("jetson_cpu_core%d_freq_mhz", i)] = freq
		m[fmt.Sprintf("jetson_cpu_core%d_status", i)] = 1
		totalUsage += usage
		activeCores++
	}

	if activeCores > 0 {
		m["jetson_cpu_avg_usage_percent"] = round2(totalUsage / float64(activeCores))
		m["jetson_cpu_active_cores"] = float64(activeCores)
	}
}

// parseEMC handles the memory controller fragment, which reports a
// frequency only on some L4T releases.
func parseEMC(out string, m map[string]float64) {
	match := emcRe.FindStringSubmatch(out)
	if match == nil {
		return
	}

	if usage, err := strconv.ParseFloat(match[1], 64); err == nil {
		m["jetson_emc_usage_percent"] = usage
	}
	if match[2] != "" {
		if freq, err := strconv.ParseFloat(match[2], 64); err == nil {
			m["jetson_emc_freq_mhz"] = freq
		}
	}
}

// parseGPUBracket handles "GR3D_FREQ 0%@[611,0]", the bracketed form
// used by Xavier and Orin. Orin boards report one frequency per GPU
// cluster.
func parseGPUBracket(out string, m map[string]float64) {
	match := gpuBracketRe.FindStringSubmatch(out)
	if match == nil {
		return
	}

	if usage, err := strconv.ParseFloat(match[1], 64); err == nil {
		m["jetson_gpu_usage_percent"] = usage
	}
	for i, raw := range strings.Split(match[2], ",") {
		freq, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		m[fmt.Sprintf("jetson_gpu_freq%d_mhz", i)] = freq
	}
}

// parseGPUBare handles "GR3D_FREQ 0%@76", the Nano's unbracketed form.
func parseGPUBare(out string, m map[string]float64) {
	match := gpuBareRe.FindStringSubmatch(out)
	if match == nil {
		return
	}

	if usage, err := strconv.ParseFloat(match[1], 64); err == nil {
		m["jetson_gpu_usage_percent"] = usage
	}
	if freq, err := strconv.ParseFloat(match[2], 64); err == nil {
		m["jetson_gpu_freq0_mhz"] = freq
	}
}

func parseVIC(out string, m map[string]float64) {
	if match := vicRe.FindStringSubmatch(out); match != nil {
		if freq, err := strconv.ParseFloat(match[1], 64); err == nil {
			m["jetson_vic_freq_mhz"] = freq
		}
	}
}

func parseAPE(out string, m map[string]float64) {
	if match := apeRe.FindStringSubmatch(out); match != nil {
		if freq, err := strconv.ParseFloat(match[1], 64); err == nil {
			m["jetson_ape_freq_mhz"] = freq
		}
	}
}
