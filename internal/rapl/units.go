// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

// Package rapl translates human units (watts, seconds, degrees) into the
// bit-packed register fields enforcing package power and thermal limits.
package rapl

import (
	"fmt"

	"github.com/powerclamp/powerclamp/internal/msr"
)

// Units are the hardware-reported scale factors from the RAPL unit
// descriptor register. They are decoded once and immutable for the process
// lifetime.
type Units struct {
	// PowerWatts is watts per power-limit LSB, 1/2^PU (bits 3:0).
	PowerWatts float64

	// TimeSeconds is seconds per time-window LSB, 1/2^TU (bits 19:16).
	TimeSeconds float64

	// EnergyJoules is joules per energy-status LSB, 1/2^ESU (bits 12:8).
	// Not used for planning; logged for operators comparing against
	// energy-counter tooling.
	EnergyJoules float64
}

// DecodeUnits decodes the raw unit descriptor register. Pure, no write path.
func DecodeUnits(raw uint64) Units {
	return Units{
		PowerWatts:   1 / float64(uint64(1)<<msr.Bits(raw, 0, 3)),
		EnergyJoules: 1 / float64(uint64(1)<<msr.Bits(raw, 8, 12)),
		TimeSeconds:  1 / float64(uint64(1)<<msr.Bits(raw, 16, 19)),
	}
}

// ReadUnits reads and decodes the unit descriptors from the first CPU.
func ReadUnits(regs msr.Registers) (Units, error) {
	raw, err := regs.ReadFirst(msr.RAPLPowerUnit)
	if err != nil {
		return Units{}, fmt.Errorf("failed to read RAPL unit descriptors: %w", err)
	}
	return DecodeUnits(raw), nil
}
