// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package limiter

import (
	"log/slog"

	"k8s.io/utils/clock"
)

type Opts struct {
	logger *slog.Logger
	clock  clock.WithTicker
}

func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
	}
}

// OptionFn sets one or more options in the Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}
