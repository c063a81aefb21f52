package camera

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDeviceRange parses a device-number range spec. Accepted forms:
// "0-9" (inclusive span) and "0,2,4" (explicit list).
func ParseDeviceRange(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty device range")
	}

	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid device range %q: %w", spec, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid device range %q: %w", spec, err)
		}
		if start < 0 || end < start {
			return nil, fmt.Errorf("invalid device range %q", spec)
		}
		out := make([]int, 0, end-start+1)
		for n := start; n <= end; n++ {
			out = append(out, n)
		}
		return out, nil
	}

	var out []int
	for _, part := range strings.Split(spec, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid device number %q in range %q", part, spec)
		}
		out = append(out, n)
	}
	return out, nil
}
