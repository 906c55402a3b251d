package config_test

import (
	"os"
	"testing"

	"github.com/mna/clox/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIgnoresProcessEnvironment(t *testing.T) {
	t.Setenv("CLOX_STRESS_GC", "true")
	cfg := config.Default()
	assert.False(t, cfg.StressGC)
	assert.Equal(t, 1048576, cfg.InitialHeapBytes)
	assert.Equal(t, 64, cfg.FrameMax)
	assert.Equal(t, 2.0, cfg.GCGrowFactor)
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("CLOX_STRESS_GC", "true")
	t.Setenv("CLOX_FRAME_MAX", "128")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.StressGC)
	assert.Equal(t, 128, cfg.FrameMax)
}

func TestLoadInvalidValueErrors(t *testing.T) {
	t.Setenv("CLOX_FRAME_MAX", "not-a-number")
	_, err := config.Load()
	assert.Error(t, err)

	os.Unsetenv("CLOX_FRAME_MAX")
}
