// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"errors"
	"fmt"
	"math"
)

// Package power limit register layout: two 25-bit windows at bit offsets 0
// (PL1) and 32 (PL2). Within a window: power limit bits 14:0, enable bit 15,
// clamp bit 16, time window bits 23:17. Bit 63 locks the register until
// reset; the hardware silently ignores writes while it is set.
const (
	pl1Offset = 0
	pl2Offset = 32

	powerLimitBits  = 15
	enableBitShift  = 15
	timeWindowShift = 17

	lockBitShift = 63

	// Bits cleared before a window is re-encoded: the power limit and time
	// window fields. The clamp bit is preserved (not configurable here); the
	// enable bit is always set alongside a configured window.
	windowClearMask = 0b1111111_0_0_111111111111111
)

var (
	// ErrPowerOverflow reports a power limit that does not fit the 15-bit field.
	ErrPowerOverflow = errors.New("power limit exceeds encodable range")

	// ErrLocked reports a power limit register whose lock bit is set.
	ErrLocked = errors.New("package power limit register is locked until reset")
)

// Limit is one configured power-limit window.
type Limit struct {
	PowerWatts      uint64
	DurationSeconds float64
}

// Locked reports whether the lock bit is set on a power limit register value.
func Locked(seed uint64) bool {
	return seed>>lockBitShift&1 == 1
}

// windowMask builds the fold function re-encoding one window at the given
// bit offset, leaving every bit outside the window's fields untouched.
func windowMask(l Limit, units Units, table *WindowTable, offset uint) (func(uint64) uint64, error) {
	pl := uint64(math.Round(float64(l.PowerWatts) / units.PowerWatts))
	if pl >= 1<<powerLimitBits {
		return nil, fmt.Errorf("%w: %d W encodes to %#x", ErrPowerOverflow, l.PowerWatts, pl)
	}

	y, z, err := table.Quantize(l.DurationSeconds)
	if err != nil {
		return nil, err
	}
	tw := packWindow(y, z)

	set := pl | 1<<enableBitShift | tw<<timeWindowShift
	return func(v uint64) uint64 {
		return v&^(uint64(windowClearMask)<<offset) | set<<offset
	}, nil
}

// PlanPowerLimit folds the configured windows left-to-right over the seed
// value and returns the result. A window that cannot be encoded is skipped
// and reported through the returned error while the other window is still
// applied, so a non-nil error does not invalidate the returned value.
func PlanPowerLimit(seed uint64, units Units, table *WindowTable, pl1, pl2 *Limit) (uint64, error) {
	if Locked(seed) {
		return seed, ErrLocked
	}

	windows := []struct {
		name   string
		limit  *Limit
		offset uint
	}{
		{"pl1", pl1, pl1Offset},
		{"pl2", pl2, pl2Offset},
	}

	value := seed
	var errs []error
	for _, w := range windows {
		if w.limit == nil {
			continue
		}

		mask, err := windowMask(*w.limit, units, table, w.offset)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.name, err))
			continue
		}
		value = mask(value)
	}

	return value, errors.Join(errs...)
}
