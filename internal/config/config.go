// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	MSR struct {
		// DevicePath is the per-CPU MSR device path template, e.g. /dev/cpu/%d/msr
		DevicePath string `yaml:"device_path"`
	}

	PowerSource struct {
		// OnlinePath is the sysfs AC indicator, e.g. /sys/class/power_supply/AC/online
		OnlinePath string `yaml:"online_path"`
		// PollIntervalSeconds is the sysfs polling fallback interval
		PollIntervalSeconds float64 `yaml:"poll_interval_s"`
	}

	// Mode is one power-limit profile. All fields are optional; a power-limit
	// window is only applied when both its power and duration are set.
	Mode struct {
		PL1TDPWatts        *uint64  `yaml:"pl1_tdp_w"`
		PL1DurationSeconds *float64 `yaml:"pl1_duration_s"`
		PL2TDPWatts        *uint64  `yaml:"pl2_tdp_w"`
		PL2DurationSeconds *float64 `yaml:"pl2_duration_s"`
		MaxTempCelsius     *uint64  `yaml:"maximum_temp_c"`
		UpdateRateSeconds  *float64 `yaml:"update_rate_s"`
		HWPMode            *bool    `yaml:"hwp_mode"`
	}

	Config struct {
		Log         Log         `yaml:"log"`
		MSR         MSR         `yaml:"msr"`
		PowerSource PowerSource `yaml:"power_source"`
		Battery     Mode        `yaml:"battery"`
		AC          Mode        `yaml:"ac"`
	}
)

const (
	// Flags
	LogLevelFlag     = "log.level"
	LogFormatFlag    = "log.format"
	MSRPathFlag      = "msr.path"
	OnlinePathFlag   = "power-source.online-path"
	PollIntervalFlag = "power-source.poll-interval"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		MSR: MSR{
			DevicePath: "/dev/cpu/%d/msr",
		},
		PowerSource: PowerSource{
			OnlinePath:          "/sys/class/power_supply/AC/online",
			PollIntervalSeconds: 5,
		},
	}
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

type UpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with the kingpin app and returns
// an UpdaterFn that applies parsed flags on top of the loaded config, since
// command line arguments override config file settings.
func RegisterFlags(app *kingpin.Application) UpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		flagsSet = map[string]bool{}
		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	msrPath := app.Flag(MSRPathFlag, "MSR device path template").Default("/dev/cpu/%d/msr").String()
	onlinePath := app.Flag(OnlinePathFlag, "sysfs AC online indicator path").Default("/sys/class/power_supply/AC/online").String()
	pollInterval := app.Flag(PollIntervalFlag, "Fallback polling interval in seconds").Default("5").Float64()

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}
		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}
		if flagsSet[MSRPathFlag] {
			cfg.MSR.DevicePath = *msrPath
		}
		if flagsSet[OnlinePathFlag] {
			cfg.PowerSource.OnlinePath = *onlinePath
		}
		if flagsSet[PollIntervalFlag] {
			cfg.PowerSource.PollIntervalSeconds = *pollInterval
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.MSR.DevicePath = strings.TrimSpace(c.MSR.DevicePath)
	c.PowerSource.OnlinePath = strings.TrimSpace(c.PowerSource.OnlinePath)
}

// Validate checks for configuration errors. A validation failure is fatal and
// aborts startup before any register is touched.
func (c *Config) Validate() error {
	var errs []string

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
	}

	if !strings.Contains(c.MSR.DevicePath, "%d") {
		errs = append(errs, fmt.Sprintf("msr device path must contain a %%d CPU placeholder: %s", c.MSR.DevicePath))
	}

	if c.PowerSource.OnlinePath == "" {
		errs = append(errs, "power source online path must not be empty")
	}

	if c.PowerSource.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("poll interval must be positive: %v", c.PowerSource.PollIntervalSeconds))
	}

	errs = append(errs, c.Battery.validate("battery")...)
	errs = append(errs, c.AC.validate("ac")...)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func (m *Mode) validate(name string) []string {
	var errs []string

	positive := func(field string, v *float64) {
		if v != nil && *v <= 0 {
			errs = append(errs, fmt.Sprintf("%s.%s must be positive: %v", name, field, *v))
		}
	}
	positive("pl1_duration_s", m.PL1DurationSeconds)
	positive("pl2_duration_s", m.PL2DurationSeconds)
	positive("update_rate_s", m.UpdateRateSeconds)

	if m.PL1TDPWatts != nil && *m.PL1TDPWatts == 0 {
		errs = append(errs, fmt.Sprintf("%s.pl1_tdp_w must be positive", name))
	}
	if m.PL2TDPWatts != nil && *m.PL2TDPWatts == 0 {
		errs = append(errs, fmt.Sprintf("%s.pl2_tdp_w must be positive", name))
	}
	if m.MaxTempCelsius != nil && *m.MaxTempCelsius == 0 {
		errs = append(errs, fmt.Sprintf("%s.maximum_temp_c must be positive", name))
	}

	return errs
}

// IsEmpty reports whether the profile configures nothing at all.
func (m *Mode) IsEmpty() bool {
	return m.PL1TDPWatts == nil && m.PL1DurationSeconds == nil &&
		m.PL2TDPWatts == nil && m.PL2DurationSeconds == nil &&
		m.MaxTempCelsius == nil && m.UpdateRateSeconds == nil && m.HWPMode == nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	return string(bytes)
}
