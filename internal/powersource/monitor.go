// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package powersource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Monitor emits power-source transitions on an unbuffered channel: the
// consumer's receive is the synchronization point, so a slow consumer
// throttles the monitor instead of transitions being dropped or coalesced.
//
// The monitor moves through the states
// initializing -> event-subscribed -> polling -> closed. Event subscription
// is preferred; a subscription or protocol failure degrades to polling for
// the rest of the process lifetime. Cancelling the run context unblocks the
// monitor promptly from either state.
type Monitor struct {
	logger       *slog.Logger
	indicator    Indicator
	source       EventSource
	pollInterval time.Duration
	clock        clock.WithTicker

	// current is private to the run goroutine after Init
	current State
	events  chan State
}

func NewMonitor(applyOpts ...OptionFn) *Monitor {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Monitor{
		logger:       opts.logger.With("service", "power-source"),
		indicator:    opts.indicator,
		source:       opts.source,
		pollInterval: opts.pollInterval,
		clock:        opts.clock,
		events:       make(chan State),
	}
}

func (m *Monitor) Name() string {
	return "power-source"
}

// Init determines the initial power state synchronously, before any
// transition can be observed.
func (m *Monitor) Init() error {
	state, err := m.indicator.Current()
	if err != nil {
		return fmt.Errorf("failed to determine initial power state: %w", err)
	}

	m.current = state
	m.logger.Info("initial power state determined", "state", state)
	return nil
}

// Current returns the state determined by Init. It is only meaningful before
// Run starts consuming transitions.
func (m *Monitor) Current() State {
	return m.current
}

// Events returns the transition stream. The channel is closed when Run
// returns.
func (m *Monitor) Events() <-chan State {
	return m.events
}

// Run drives the state machine until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.events)

	if err := m.runSubscribed(ctx); err != nil {
		// protocol or subscription failure: non-fatal, degrade to polling
		m.logger.Warn("event subscription failed, falling back to polling",
			"error", err, "interval", m.pollInterval)
	}
	if ctx.Err() != nil {
		m.logger.Info("power source monitor closed")
		return nil
	}

	m.runPolling(ctx)
	m.logger.Info("power source monitor closed")
	return nil
}

// runSubscribed consumes change notifications until ctx is cancelled
// (returns nil) or the subscription breaks (returns the cause).
func (m *Monitor) runSubscribed(ctx context.Context) error {
	events, err := m.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.source.Close(); err != nil {
			m.logger.Warn("failed to close event source", "error", err)
		}
	}()

	m.logger.Info("subscribed to power source change events")
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("event subscription channel closed")
			}

			state, err := stateFromEvent(ev)
			if err != nil {
				return err
			}
			m.emit(ctx, state)
		}
	}
}

// runPolling re-reads the indicator on a fixed interval. There is no path
// back to event subscription; polling is the terminal degraded mode.
func (m *Monitor) runPolling(ctx context.Context) {
	ticker := m.clock.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C():
			state, err := m.indicator.Current()
			if err != nil {
				m.logger.Warn("failed to read power source indicator", "error", err)
				continue
			}
			m.emit(ctx, state)
		}
	}
}

// emit hands a transition to the consumer iff the state actually changed.
// The send also watches ctx so shutdown is never blocked on a departed
// consumer.
func (m *Monitor) emit(ctx context.Context, state State) {
	if state == m.current {
		return
	}

	select {
	case m.events <- state:
		m.logger.Info("power state changed", "from", m.current, "to", state)
		m.current = state
	case <-ctx.Done():
	}
}
