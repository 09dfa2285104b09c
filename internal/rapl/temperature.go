// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import "github.com/powerclamp/powerclamp/internal/msr"

// Temperature target register layout: the hardware critical temperature
// occupies bits 23:16, the throttle trip-point delta below it bits 29:24.
const (
	criticalTempLo = 16
	criticalTempHi = 23

	tripDeltaShift = 24
	tripDeltaMask  = 0x3F

	// minimum gap kept below the critical temperature
	criticalGapCelsius = 3
)

// PlanTemperatureTarget returns seed with the trip delta re-encoded so that
// throttling engages at maxTempC, never closer than 3 degrees to the
// hardware critical temperature. Every bit outside the delta field is
// preserved unchanged.
func PlanTemperatureTarget(seed uint64, maxTempC uint64) uint64 {
	critical := msr.Bits(seed, criticalTempLo, criticalTempHi)

	ceiling := uint64(0)
	if critical > criticalGapCelsius {
		ceiling = critical - criticalGapCelsius
	}
	effective := min(maxTempC, ceiling)

	delta := (critical - effective) & tripDeltaMask
	return seed&^(uint64(tripDeltaMask)<<tripDeltaShift) | delta<<tripDeltaShift
}

// CriticalTemperature extracts the hardware-reported critical temperature.
func CriticalTemperature(seed uint64) uint64 {
	return msr.Bits(seed, criticalTempLo, criticalTempHi)
}
