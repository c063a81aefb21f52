package camera

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeWith(formats []string, resolutions, rates []string) *CapabilityProbe {
	infos := make([]FormatInfo, len(formats))
	for i, f := range formats {
		infos[i] = FormatInfo{Code: f}
	}
	return &CapabilityProbe{
		Detected:    true,
		Formats:     infos,
		Resolutions: resolutions,
		FrameRates:  rates,
		Timestamp:   time.Now(),
		Diagnostics: ProbeDiagnostics{Attempted: true, Accessible: true},
	}
}

func steadyProbe() *CapabilityProbe {
	return probeWith(
		[]string{"YUYV", "MJPG"},
		[]string{"1920x1080", "1280x720"},
		[]string{"30", "15"},
	)
}

func TestConfirmationAfterConsistentProbes(t *testing.T) {
	state := NewCapabilityState()

	promoted := state.Apply(steadyProbe())
	assert.False(t, promoted)
	assert.Nil(t, state.Confirmed)
	assert.NotNil(t, state.Provisional)
	assert.Equal(t, 1, state.ConsecutiveSuccesses)

	promoted = state.Apply(steadyProbe())
	assert.True(t, promoted)
	require.NotNil(t, state.Confirmed)
	assert.GreaterOrEqual(t, state.ConsecutiveSuccesses, confirmationThreshold)

	effective, source := state.Effective()
	assert.Equal(t, "confirmed", source)
	assert.Contains(t, effective.Formats, "YUYV")
}

func TestEffectiveFallsBackToProvisional(t *testing.T) {
	state := NewCapabilityState()
	state.Apply(steadyProbe())

	effective, source := state.Effective()
	assert.Equal(t, "provisional", source)
	assert.NotNil(t, effective)
}

func TestEffectiveNoneBeforeAnyProbe(t *testing.T) {
	state := NewCapabilityState()
	effective, source := state.Effective()
	assert.Nil(t, effective)
	assert.Equal(t, "none", source)
}

func TestMajorVarianceResetsConfirmation(t *testing.T) {
	state := NewCapabilityState()
	for i := 0; i < 3; i++ {
		state.Apply(steadyProbe())
	}
	require.NotNil(t, state.Confirmed)

	// Completely different capability set.
	state.Apply(probeWith(
		[]string{"H264"},
		[]string{"640x480"},
		[]string{"5"},
	))

	assert.Nil(t, state.Confirmed)
	assert.Equal(t, 0, state.ConsecutiveSuccesses)
	// Frequency maps survive the reset.
	assert.GreaterOrEqual(t, state.formatFreq["YUYV"], 3)
}

func TestFailedProbeIncrementsFailures(t *testing.T) {
	state := NewCapabilityState()
	failed := &CapabilityProbe{
		Detected:    false,
		Timestamp:   time.Now(),
		Diagnostics: ProbeDiagnostics{Attempted: true, ErrorCode: ProbeErrTimeout},
	}

	for i := 0; i < 3; i++ {
		assert.False(t, state.Apply(failed))
	}
	assert.Equal(t, 3, state.ConsecutiveFailures)
	assert.True(t, state.PersistentlyFailing())
}

func TestHistoryBounded(t *testing.T) {
	state := NewCapabilityState()
	for i := 0; i < 25; i++ {
		state.Apply(steadyProbe())
	}
	assert.Len(t, state.History, validationHistoryMax)
}

func TestStableSetOrderingInMerged(t *testing.T) {
	state := NewCapabilityState()
	for i := 0; i < 4; i++ {
		state.Apply(steadyProbe())
	}
	require.NotNil(t, state.Confirmed)
	// Both formats hit the stability threshold with equal frequency,
	// so ordering falls back to lexical.
	assert.Equal(t, []string{"MJPG", "YUYV"}, state.Confirmed.Formats)
}

func TestJaccardDistance(t *testing.T) {
	assert.InDelta(t, 0.0, jaccardDistance([]string{"a"}, []string{"a"}), 1e-9)
	assert.InDelta(t, 1.0, jaccardDistance([]string{"a"}, []string{"b"}), 1e-9)
	assert.InDelta(t, 0.5, jaccardDistance([]string{"a", "b"}, []string{"a"}), 1e-9)
	assert.InDelta(t, 0.0, jaccardDistance(nil, nil), 1e-9)
}

func TestConfirmationScenarioThreeProbes(t *testing.T) {
	// A device reporting identical capabilities must be confirmed by
	// the second consistent probe.
	state := NewCapabilityState()
	confirmedAt := 0
	for i := 1; i <= 3; i++ {
		if state.Apply(steadyProbe()) {
			confirmedAt = i
		}
	}
	assert.Equal(t, 2, confirmedAt, fmt.Sprintf("history: %+v", state.History))
}
