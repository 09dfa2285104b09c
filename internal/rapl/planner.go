// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/powerclamp/powerclamp/internal/msr"
)

// PendingWrite is a register value that differs from what the hardware
// currently holds.
type PendingWrite struct {
	Register msr.Register
	Value    uint64
}

// Profile is the planner's view of one power mode: only the fields that
// translate into register writes. A window is planned only when both its
// power and duration were configured.
type Profile struct {
	MaxTempCelsius *uint64
	PL1            *Limit
	PL2            *Limit
}

// Planner combines a profile with a current register snapshot to produce a
// minimal set of pending writes. Registers are read-modify-write only: every
// bit outside a targeted field keeps the value just read.
type Planner struct {
	regs   msr.Registers
	units  Units
	table  *WindowTable
	logger *slog.Logger
}

// NewPlanner reads the unit descriptors once and precomputes the time window
// table.
func NewPlanner(regs msr.Registers, logger *slog.Logger) (*Planner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	units, err := ReadUnits(regs)
	if err != nil {
		return nil, err
	}

	logger = logger.With("service", "planner")
	logger.Info("RAPL units decoded",
		"power_unit_w", units.PowerWatts,
		"time_unit_s", units.TimeSeconds,
		"energy_unit_j", units.EnergyJoules)

	return &Planner{
		regs:   regs,
		units:  units,
		table:  NewWindowTable(units),
		logger: logger,
	}, nil
}

func (p *Planner) Units() Units {
	return p.units
}

// Plan produces the pending writes for a profile against freshly read
// register values. Planning is best-effort: a field that cannot be read or
// encoded is skipped and reported through the joined error while the
// remaining fields are still planned, so the returned writes are valid even
// when the error is non-nil.
func (p *Planner) Plan(profile Profile) ([]PendingWrite, error) {
	var writes []PendingWrite
	var errs []error

	if profile.MaxTempCelsius != nil {
		write, err := p.planTemperature(*profile.MaxTempCelsius)
		if err != nil {
			errs = append(errs, err)
		} else if write != nil {
			writes = append(writes, *write)
		}
	}

	if profile.PL1 != nil || profile.PL2 != nil {
		write, err := p.planPowerLimit(profile.PL1, profile.PL2)
		if err != nil {
			errs = append(errs, err)
		}
		if write != nil {
			writes = append(writes, *write)
		}
	}

	return writes, errors.Join(errs...)
}

func (p *Planner) planTemperature(maxTempC uint64) (*PendingWrite, error) {
	seed, err := p.regs.ReadFirst(msr.TemperatureTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to read temperature target: %w", err)
	}

	value := PlanTemperatureTarget(seed, maxTempC)
	if value == seed {
		p.logger.Debug("temperature target already set", "max_temp_c", maxTempC)
		return nil, nil
	}

	p.logger.Debug("planned temperature target",
		"critical_c", CriticalTemperature(seed),
		"max_temp_c", maxTempC,
		"old", fmt.Sprintf("%#x", seed),
		"new", fmt.Sprintf("%#x", value))

	return &PendingWrite{Register: msr.TemperatureTarget, Value: value}, nil
}

func (p *Planner) planPowerLimit(pl1, pl2 *Limit) (*PendingWrite, error) {
	seed, err := p.regs.ReadFirst(msr.PkgPowerLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read package power limit: %w", err)
	}

	// The lock covers the whole register, so both windows are skipped
	// together; the hardware would silently discard the write anyway.
	value, err := PlanPowerLimit(seed, p.units, p.table, pl1, pl2)
	if value == seed {
		return nil, err
	}

	p.logger.Debug("planned package power limit",
		"old", fmt.Sprintf("%#x", seed),
		"new", fmt.Sprintf("%#x", value))

	return &PendingWrite{Register: msr.PkgPowerLimit, Value: value}, err
}
