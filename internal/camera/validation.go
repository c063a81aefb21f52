package camera

import (
	"sort"
	"time"
)

// Validation tuning. Stability controls which elements count as part of
// the stable capability set, confirmation controls promotion to the
// confirmed state.
const (
	stabilityThreshold    = 3
	confirmationThreshold = 2
	consistencyRatio      = 0.7
	minorVarianceScore    = 0.2
	validationHistoryMax  = 10
	persistentFailures    = 3
)

// ValidationRecord is one entry in a device's bounded probe history.
type ValidationRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Detected   bool      `json:"detected"`
	Consistent bool      `json:"consistent"`
	Variance   float64   `json:"variance"`
}

// CapabilityState tracks per-device validation: the latest provisional
// capability, an optional confirmed capability, counters, and frequency
// maps that accumulate across successful probes.
type CapabilityState struct {
	Provisional          *Capability        `json:"provisional,omitempty"`
	Confirmed            *Capability        `json:"confirmed,omitempty"`
	ConsecutiveSuccesses int                `json:"consecutive_successes"`
	ConsecutiveFailures  int                `json:"consecutive_failures"`
	LastProbeTime        time.Time          `json:"last_probe_time"`
	History              []ValidationRecord `json:"history"`
	LastDiagnostics      ProbeDiagnostics   `json:"last_diagnostics"`

	formatFreq     map[string]int
	resolutionFreq map[string]int
	rateFreq       map[string]int
}

// NewCapabilityState creates empty validation state for a device.
func NewCapabilityState() *CapabilityState {
	return &CapabilityState{
		formatFreq:     make(map[string]int),
		resolutionFreq: make(map[string]int),
		rateFreq:       make(map[string]int),
	}
}

// Effective returns confirmed capability when present, provisional
// otherwise. The second return distinguishes the source.
func (s *CapabilityState) Effective() (*Capability, string) {
	if s.Confirmed != nil {
		return s.Confirmed, "confirmed"
	}
	if s.Provisional != nil {
		return s.Provisional, "provisional"
	}
	return nil, "none"
}

// Apply folds one probe result into the state machine. It returns true
// when this probe promoted the capability to confirmed.
func (s *CapabilityState) Apply(probe *CapabilityProbe) bool {
	s.LastProbeTime = probe.Timestamp
	s.LastDiagnostics = probe.Diagnostics

	record := ValidationRecord{Timestamp: probe.Timestamp, Detected: probe.Detected}
	defer func() {
		s.History = append(s.History, record)
		if len(s.History) > validationHistoryMax {
			s.History = s.History[len(s.History)-validationHistoryMax:]
		}
	}()

	if !probe.Detected {
		s.ConsecutiveFailures++
		return false
	}

	formats := probe.FormatCodes()
	for _, f := range formats {
		s.formatFreq[f]++
	}
	for _, r := range probe.Resolutions {
		s.resolutionFreq[r]++
	}
	for _, r := range probe.FrameRates {
		s.rateFreq[r]++
	}

	merged := &Capability{
		Formats:     mergeDimension(s.formatFreq, formats),
		Resolutions: mergeDimension(s.resolutionFreq, probe.Resolutions),
		FrameRates:  mergeDimension(s.rateFreq, probe.FrameRates),
	}

	consistent := s.Provisional == nil ||
		(stableOverlap(stableSet(s.formatFreq), formats) &&
			stableOverlap(stableSet(s.resolutionFreq), probe.Resolutions) &&
			stableOverlap(stableSet(s.rateFreq), probe.FrameRates))

	promoted := false
	if consistent {
		record.Consistent = true
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
	} else {
		variance := 0.2*jaccardDistance(s.Provisional.Formats, formats) +
			0.4*jaccardDistance(s.Provisional.Resolutions, probe.Resolutions) +
			0.4*jaccardDistance(s.Provisional.FrameRates, probe.FrameRates)
		record.Variance = variance

		if variance < minorVarianceScore {
			// Minor drift still counts toward confirmation.
			record.Consistent = true
			s.ConsecutiveSuccesses++
			s.ConsecutiveFailures = 0
		} else {
			s.ConsecutiveSuccesses = 0
			s.ConsecutiveFailures = 0
			s.Confirmed = nil
		}
	}

	s.Provisional = merged
	if record.Consistent && s.ConsecutiveSuccesses >= confirmationThreshold {
		promoted = s.Confirmed == nil
		s.Confirmed = merged
	}
	return promoted
}

// PersistentlyFailing reports whether the device has failed probing
// long enough to warrant a warning.
func (s *CapabilityState) PersistentlyFailing() bool {
	return s.ConsecutiveFailures >= persistentFailures
}

// stableSet returns elements observed at least stabilityThreshold times.
func stableSet(freq map[string]int) []string {
	var stable []string
	for elem, count := range freq {
		if count >= stabilityThreshold {
			stable = append(stable, elem)
		}
	}
	return stable
}

// mergeDimension builds the merged element list for one dimension:
// stable elements first (most frequent first), then current elements
// already seen before but not yet stable.
func mergeDimension(freq map[string]int, current []string) []string {
	stable := stableSet(freq)
	sort.Slice(stable, func(i, j int) bool {
		if freq[stable[i]] != freq[stable[j]] {
			return freq[stable[i]] > freq[stable[j]]
		}
		return stable[i] < stable[j]
	})

	inStable := make(map[string]bool, len(stable))
	for _, elem := range stable {
		inStable[elem] = true
	}

	merged := append([]string(nil), stable...)
	for _, elem := range current {
		if !inStable[elem] && freq[elem] >= 2 {
			merged = append(merged, elem)
		}
	}
	return merged
}

// stableOverlap checks that at least consistencyRatio of the stable set
// appears in the current probe. An empty stable set is consistent.
func stableOverlap(stable, current []string) bool {
	if len(stable) == 0 {
		return true
	}
	currentSet := make(map[string]bool, len(current))
	for _, elem := range current {
		currentSet[elem] = true
	}
	overlap := 0
	for _, elem := range stable {
		if currentSet[elem] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(stable)) >= consistencyRatio
}

// jaccardDistance is 1 minus the Jaccard similarity of two sets.
func jaccardDistance(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, elem := range a {
		setA[elem] = true
	}
	intersection := 0
	union := len(setA)
	seenB := make(map[string]bool, len(b))
	for _, elem := range b {
		if seenB[elem] {
			continue
		}
		seenB[elem] = true
		if setA[elem] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}
