package camera

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Resolution bounds accepted from probe output.
const (
	minWidth  = 160
	maxWidth  = 4096
	minHeight = 120
	maxHeight = 3072
)

// Frame rate bounds accepted from probe output.
const (
	minFrameRate = 1.0
	maxFrameRate = 300.0
)

// defaultFrameRates is returned when no rates could be parsed from an
// accessible device.
var defaultFrameRates = []string{"30", "25", "24", "15", "10", "5"}

// Layered name/driver patterns, first match wins.
var (
	nameRes = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Card type\s*:\s*(.+)$`),
		regexp.MustCompile(`(?m)Device name\s*:\s*(.+)$`),
		regexp.MustCompile(`(?m)Card\s*:\s*(.+)$`),
	}
	driverRes = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Driver name\s*:\s*(.+)$`),
		regexp.MustCompile(`(?m)Driver\s*:\s*(.+)$`),
	}
)

// Format patterns: the --list-formats-ext index form and the plainer
// "Pixel Format" form some drivers emit.
var (
	formatIndexedRe = regexp.MustCompile(`\[\d+\]:\s*'([A-Z0-9]{4})'\s*\(([^)]+)\)`)
	formatPlainRe   = regexp.MustCompile(`Pixel Format\s*:\s*'([A-Z0-9]{4})'`)
)

// Resolution patterns: explicit discrete sizes plus a loose WxH sweep.
var (
	resolutionDiscreteRe = regexp.MustCompile(`Size:\s*Discrete\s+(\d+)x(\d+)`)
	resolutionLooseRe    = regexp.MustCompile(`(\d{3,4})x(\d{3,4})`)
)

// rateDirect patterns capture the rate value itself; rateInterval
// patterns capture an interval denominator (1/N seconds means N fps).
// All guard against a preceding minus sign.
var (
	rateDirectRes = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^-\d.])(\d+(?:\.\d+)?)\s*fps`),
		regexp.MustCompile(`(?:^|[^-\d.])(\d+(?:\.\d+)?)\s*FPS`),
		regexp.MustCompile(`Frame rate:\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?:^|[^-\d.])(\d+(?:\.\d+)?)\s*Hz`),
		regexp.MustCompile(`@(\d+(?:\.\d+)?)`),
	}
	rateIntervalRes = []*regexp.Regexp{
		regexp.MustCompile(`\[1/(\d+(?:\.\d+)?)\]`),
		regexp.MustCompile(`(?:^|[^-\d.])1/(\d+(?:\.\d+)?)\s*s`),
	}
)

// parseDeviceName extracts the human-readable device name, trying each
// pattern in order.
func parseDeviceName(output string) string {
	for _, re := range nameRes {
		if m := re.FindStringSubmatch(output); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// parseDriver extracts the driver name.
func parseDriver(output string) string {
	for _, re := range driverRes {
		if m := re.FindStringSubmatch(output); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// parseFormats extracts pixel formats in the order they appear.
func parseFormats(output string) []FormatInfo {
	var formats []FormatInfo
	seen := make(map[string]bool)

	for _, m := range formatIndexedRe.FindAllStringSubmatch(output, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			formats = append(formats, FormatInfo{Code: m[1], Description: strings.TrimSpace(m[2])})
		}
	}
	for _, m := range formatPlainRe.FindAllStringSubmatch(output, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			formats = append(formats, FormatInfo{Code: m[1]})
		}
	}
	return formats
}

// parseResolutions extracts WxH resolutions within the accepted bounds,
// deduplicated and sorted largest first.
func parseResolutions(output string) []string {
	type dim struct{ w, h int }
	seen := make(map[dim]bool)
	var dims []dim

	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			if w < minWidth || w > maxWidth || h < minHeight || h > maxHeight {
				continue
			}
			d := dim{w, h}
			if !seen[d] {
				seen[d] = true
				dims = append(dims, d)
			}
		}
	}
	collect(resolutionDiscreteRe)
	collect(resolutionLooseRe)

	sort.Slice(dims, func(i, j int) bool {
		if dims[i].w != dims[j].w {
			return dims[i].w > dims[j].w
		}
		return dims[i].h > dims[j].h
	})

	resolutions := make([]string, len(dims))
	for i, d := range dims {
		resolutions[i] = fmt.Sprintf("%dx%d", d.w, d.h)
	}
	return resolutions
}

// normalizeRate renders a frame rate the way clients expect: integers
// stay integer-valued, fractional rates are formatted to one decimal.
func normalizeRate(rate float64) string {
	rounded := math.Round(rate*10) / 10
	if rounded == math.Trunc(rounded) {
		return strconv.Itoa(int(rounded))
	}
	return fmt.Sprintf("%.1f", rounded)
}

// ratePriority groups common rates ahead of exotic ones.
func ratePriority(rate float64) int {
	switch rate {
	case 30, 25, 24:
		return 0
	case 15, 60, 10:
		return 1
	default:
		return 2
	}
}

// parseFrameRates extracts frame rates from probe output. Each detected
// rate is counted across all matching patterns; the result is ordered
// by (priority, frequency desc, value desc) on the normalized form.
func parseFrameRates(output string) []string {
	freq := make(map[string]int)
	value := make(map[string]float64)

	record := func(rate float64) {
		if rate < minFrameRate || rate > maxFrameRate {
			return
		}
		key := normalizeRate(rate)
		freq[key]++
		value[key] = rate
	}

	for _, re := range rateDirectRes {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			if rate, err := strconv.ParseFloat(m[1], 64); err == nil {
				record(rate)
			}
		}
	}
	for _, re := range rateIntervalRes {
		for _, m := range re.FindAllStringSubmatch(output, -1) {
			if denom, err := strconv.ParseFloat(m[1], 64); err == nil && denom > 0 {
				record(denom)
			}
		}
	}

	rates := make([]string, 0, len(freq))
	for key := range freq {
		rates = append(rates, key)
	}
	sort.Slice(rates, func(i, j int) bool {
		a, b := rates[i], rates[j]
		pa, pb := ratePriority(value[a]), ratePriority(value[b])
		if pa != pb {
			return pa < pb
		}
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		return value[a] > value[b]
	})
	return rates
}
