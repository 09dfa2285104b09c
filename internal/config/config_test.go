// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/dev/cpu/%d/msr", cfg.MSR.DevicePath)
	assert.Equal(t, "/sys/class/power_supply/AC/online", cfg.PowerSource.OnlinePath)
	assert.Equal(t, 5.0, cfg.PowerSource.PollIntervalSeconds)
	assert.True(t, cfg.Battery.IsEmpty())
	assert.True(t, cfg.AC.IsEmpty())
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		yamlData := `
log:
  level: debug
  format: json
battery:
  pl1_tdp_w: 15
  pl1_duration_s: 28
  maximum_temp_c: 75
  update_rate_s: 60
ac:
  pl1_tdp_w: 45
  pl1_duration_s: 28
  pl2_tdp_w: 60
  pl2_duration_s: 0.00244140625
  maximum_temp_c: 95
  hwp_mode: true
`
		cfg, err := Load(strings.NewReader(yamlData))
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format)

		require.NotNil(t, cfg.Battery.PL1TDPWatts)
		assert.Equal(t, uint64(15), *cfg.Battery.PL1TDPWatts)
		require.NotNil(t, cfg.Battery.UpdateRateSeconds)
		assert.Equal(t, 60.0, *cfg.Battery.UpdateRateSeconds)
		assert.Nil(t, cfg.Battery.PL2TDPWatts)

		require.NotNil(t, cfg.AC.PL2DurationSeconds)
		assert.Equal(t, 0.00244140625, *cfg.AC.PL2DurationSeconds)
		require.NotNil(t, cfg.AC.HWPMode)
		assert.True(t, *cfg.AC.HWPMode)

		// unset sections keep their defaults
		assert.Equal(t, "/dev/cpu/%d/msr", cfg.MSR.DevicePath)
	})

	t.Run("half-configured window is allowed", func(t *testing.T) {
		// a window missing either power or duration is simply never planned
		cfg, err := Load(strings.NewReader("battery:\n  pl1_tdp_w: 15\n"))
		require.NoError(t, err)
		assert.NotNil(t, cfg.Battery.PL1TDPWatts)
		assert.Nil(t, cfg.Battery.PL1DurationSeconds)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(strings.NewReader("log: ["))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{
			name:   "invalid log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
			errStr: "invalid log level",
		},
		{
			name:   "invalid log format",
			mutate: func(c *Config) { c.Log.Format = "xml" },
			errStr: "invalid log format",
		},
		{
			name:   "msr path without cpu placeholder",
			mutate: func(c *Config) { c.MSR.DevicePath = "/dev/msr" },
			errStr: "placeholder",
		},
		{
			name:   "empty online path",
			mutate: func(c *Config) { c.PowerSource.OnlinePath = "" },
			errStr: "online path",
		},
		{
			name:   "non-positive poll interval",
			mutate: func(c *Config) { c.PowerSource.PollIntervalSeconds = 0 },
			errStr: "poll interval",
		},
		{
			name: "zero tdp",
			mutate: func(c *Config) {
				zero := uint64(0)
				c.AC.PL1TDPWatts = &zero
			},
			errStr: "ac.pl1_tdp_w",
		},
		{
			name: "negative duration",
			mutate: func(c *Config) {
				neg := -1.0
				c.Battery.PL2DurationSeconds = &neg
			},
			errStr: "battery.pl2_duration_s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errStr)
		})
	}
}

func TestRegisterFlags(t *testing.T) {
	t.Run("flags override config file settings", func(t *testing.T) {
		app := kingpin.New("test", "")
		update := RegisterFlags(app)

		_, err := app.Parse([]string{
			"--log.level", "debug",
			"--msr.path", "/tmp/fake/%d/msr",
			"--power-source.poll-interval", "1.5",
		})
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.Log.Level = "warn" // from "config file"

		require.NoError(t, update(cfg))
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "/tmp/fake/%d/msr", cfg.MSR.DevicePath)
		assert.Equal(t, 1.5, cfg.PowerSource.PollIntervalSeconds)
		// untouched flag keeps the config file value
		assert.Equal(t, "text", cfg.Log.Format)
	})

	t.Run("unset flags do not override", func(t *testing.T) {
		app := kingpin.New("test", "")
		update := RegisterFlags(app)

		_, err := app.Parse(nil)
		require.NoError(t, err)

		cfg := DefaultConfig()
		cfg.Log.Level = "error"
		require.NoError(t, update(cfg))
		assert.Equal(t, "error", cfg.Log.Level)
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.Contains(t, s, "log:")
	assert.Contains(t, s, "msr:")
	assert.Contains(t, s, "power_source:")
}
