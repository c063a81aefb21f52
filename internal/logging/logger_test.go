package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger("test-module")
	b := GetLogger("test-module")
	assert.Same(t, a, b)
}

func TestInitializeAppliesModuleLevels(t *testing.T) {
	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"noisy": "error"},
	})

	logger := GetLogger("noisy")
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelError))
}

func TestSetModuleLevel(t *testing.T) {
	Initialize(Config{Level: "info", Format: "text"})

	logger := GetLogger("dynamic")
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))

	SetModuleLevel("dynamic", "debug")
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))

	// Unknown levels leave the current setting untouched.
	SetModuleLevel("dynamic", "bogus")
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]*slog.Level{}
	warn := slog.LevelWarn
	cases["warning"] = &warn
	for input, want := range cases {
		got := parseLevel(input)
		assert.Equal(t, want, got)
	}
	assert.Nil(t, parseLevel("verbose"))
}

func TestWithCorrelation(t *testing.T) {
	id := NewCorrelationID()
	assert.Len(t, id, 8)

	logger := WithCorrelation(GetLogger("corr"), id)
	assert.NotNil(t, logger)
}
