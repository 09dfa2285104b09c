// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package powersource

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

type Opts struct {
	logger       *slog.Logger
	indicator    Indicator
	source       EventSource
	pollInterval time.Duration
	clock        clock.WithTicker
}

// DefaultOpts returns the production defaults: the UPower D-Bus event source
// with the sysfs AC indicator polled every five seconds as fallback.
func DefaultOpts() Opts {
	return Opts{
		logger:       slog.Default(),
		indicator:    NewSysfsIndicator("/sys/class/power_supply/AC/online"),
		source:       NewDBusEventSource(),
		pollInterval: 5 * time.Second,
		clock:        clock.RealClock{},
	}
}

// OptionFn sets one or more options in the Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithIndicator(i Indicator) OptionFn {
	return func(o *Opts) {
		o.indicator = i
	}
}

func WithEventSource(s EventSource) OptionFn {
	return func(o *Opts) {
		o.source = s
	}
}

func WithPollInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.pollInterval = d
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}
