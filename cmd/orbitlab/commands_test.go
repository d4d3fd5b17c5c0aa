package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSweep(t *testing.T) {
	names, ranges, err := parseSweep([]string{"tolerance=1e-10, 1e-12", "dq_max=1e-3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tolerance", "dq_max"}, names)
	assert.Equal(t, [][]float64{{1e-10, 1e-12}, {1e-3}}, ranges)

	for _, bad := range [][]string{nil, {"tolerance"}, {"=1"}, {"tolerance=x"}} {
		_, _, err := parseSweep(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addSystemFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_PresetWithOverrides(t *testing.T) {
	cmd := newFlagCommand(t, "--tol", "1e-9", "--policy", "per-body", "--time", "5")
	cfg, err := loadConfig(cmd, []string{"sun_jupiter_saturn"})
	require.NoError(t, err)
	assert.Equal(t, "sun_jupiter_saturn", cfg.Name)
	assert.Equal(t, 1e-9, cfg.Tolerance)
	assert.Equal(t, "per-body", cfg.Policy)
	assert.Equal(t, 5.0, cfg.Duration)
	assert.Equal(t, 1e-3, cfg.DQMax, "unchanged flags keep preset values")
	assert.Equal(t, []string{"sun", "jupiter", "saturn"}, bodyNames(cfg))
	assert.Len(t, bodyMasses(cfg), 3)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(newFlagCommand(t), []string{"missing"})
	assert.Error(t, err)

	_, err = loadConfig(newFlagCommand(t, "--policy", "sometimes"), nil)
	assert.Error(t, err)
}
