// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

// Package limiter applies the configured power-limit profile whenever the
// power source changes.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/powerclamp/powerclamp/internal/config"
	"github.com/powerclamp/powerclamp/internal/msr"
	"github.com/powerclamp/powerclamp/internal/powersource"
	"github.com/powerclamp/powerclamp/internal/rapl"
)

// TransitionSource is the limiter's view of the power source monitor.
type TransitionSource interface {
	// Current is the state determined during initialization.
	Current() powersource.State
	// Events is the deduplicated transition stream; closed on shutdown.
	Events() <-chan powersource.State
}

// profile is one mode's configuration resolved for planning.
type profile struct {
	name       string
	plan       rapl.Profile
	updateRate time.Duration // 0 disables periodic re-apply
}

// Limiter consumes power-source transitions and applies the matching
// profile's register writes. Application is best-effort: a failed write is
// logged and the remaining writes in the batch are still attempted.
type Limiter struct {
	logger *slog.Logger
	clock  clock.WithTicker

	regs    msr.Registers
	source  TransitionSource
	planner *rapl.Planner

	battery profile
	ac      profile
}

func New(cfg *config.Config, regs msr.Registers, source TransitionSource, applyOpts ...OptionFn) *Limiter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	l := &Limiter{
		logger: opts.logger.With("service", "limiter"),
		clock:  opts.clock,
		regs:   regs,
		source: source,
	}
	l.battery = l.resolveMode("battery", cfg.Battery)
	l.ac = l.resolveMode("ac", cfg.AC)
	return l
}

func (l *Limiter) Name() string {
	return "limiter"
}

// Init decodes the RAPL units and precomputes the time window table. Runs
// after the register device is initialized.
func (l *Limiter) Init() error {
	planner, err := rapl.NewPlanner(l.regs, l.logger)
	if err != nil {
		return fmt.Errorf("failed to create limit planner: %w", err)
	}
	l.planner = planner
	return nil
}

// Run applies the profile for the initial power state, then re-applies on
// every transition until the source closes or ctx is cancelled. When the
// active profile carries an update rate, its writes are also re-applied
// periodically, since firmware may reset the registers behind our back.
func (l *Limiter) Run(ctx context.Context) error {
	active := l.profileFor(l.source.Current())
	l.apply(active)

	var ticker clock.Ticker
	var tick <-chan time.Time
	arm := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if active.updateRate > 0 {
			ticker = l.clock.NewTicker(active.updateRate)
			tick = ticker.C()
		}
	}
	arm()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case state, ok := <-l.source.Events():
			if !ok {
				l.logger.Info("transition stream closed")
				return nil
			}
			active = l.profileFor(state)
			l.apply(active)
			arm()

		case <-tick:
			l.apply(active)
		}
	}
}

func (l *Limiter) profileFor(state powersource.State) profile {
	if state == powersource.AC {
		return l.ac
	}
	return l.battery
}

// apply plans against fresh register reads and writes every pending value
// independently.
func (l *Limiter) apply(p profile) {
	writes, err := l.planner.Plan(p.plan)
	if err != nil {
		l.logger.Warn("planning incomplete, applying what could be planned",
			"profile", p.name, "error", err)
	}
	if len(writes) == 0 {
		l.logger.Debug("registers already match profile", "profile", p.name)
		return
	}

	for _, w := range writes {
		if err := l.regs.WriteAll(w.Register, w.Value); err != nil {
			l.logger.Error("failed to apply register write",
				"profile", p.name, "register", w.Register, "error", err)
			continue
		}
		l.logger.Info("register updated",
			"profile", p.name, "register", w.Register, "value", fmt.Sprintf("%#x", w.Value))
	}
}

// resolveMode turns a config mode into a planning profile, dropping
// half-configured power-limit windows.
func (l *Limiter) resolveMode(name string, m config.Mode) profile {
	p := profile{name: name, plan: rapl.Profile{MaxTempCelsius: m.MaxTempCelsius}}

	if m.PL1TDPWatts != nil && m.PL1DurationSeconds != nil {
		p.plan.PL1 = &rapl.Limit{PowerWatts: *m.PL1TDPWatts, DurationSeconds: *m.PL1DurationSeconds}
	} else if m.PL1TDPWatts != nil || m.PL1DurationSeconds != nil {
		l.logger.Warn("ignoring half-configured power limit window",
			"profile", name, "window", "pl1")
	}

	if m.PL2TDPWatts != nil && m.PL2DurationSeconds != nil {
		p.plan.PL2 = &rapl.Limit{PowerWatts: *m.PL2TDPWatts, DurationSeconds: *m.PL2DurationSeconds}
	} else if m.PL2TDPWatts != nil || m.PL2DurationSeconds != nil {
		l.logger.Warn("ignoring half-configured power limit window",
			"profile", name, "window", "pl2")
	}

	if m.UpdateRateSeconds != nil {
		p.updateRate = time.Duration(*m.UpdateRateSeconds * float64(time.Second))
	}

	if m.HWPMode != nil {
		// TODO: drive IA32_HWP_REQUEST hints from this flag
		l.logger.Warn("hwp_mode is configured but not supported yet, ignoring", "profile", name)
	}

	return p
}
