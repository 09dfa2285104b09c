// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package rapl

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDurationOutOfRange reports a requested time window above the largest
// encodable entry.
var ErrDurationOutOfRange = errors.New("time window duration out of range")

// Time windows are encoded as duration = 2^y * (1 + z/4) * time_unit with
// y in [0,31] (5 bits) and z in [0,3] (2 bits), packed as y | z<<5.
const (
	maxWindowY = 31
	maxWindowZ = 3

	windowYBits = 5
	windowYMask = 1<<windowYBits - 1
	windowZMask = 0x3
)

type windowEntry struct {
	seconds float64
	y, z    uint8
}

// WindowTable holds all 128 encodable time windows in ascending duration
// order. Built once the time unit is known; immutable afterwards.
type WindowTable struct {
	entries []windowEntry
}

// NewWindowTable enumerates every (y, z) pair for the given units.
func NewWindowTable(units Units) *WindowTable {
	entries := make([]windowEntry, 0, (maxWindowY+1)*(maxWindowZ+1))
	for y := 0; y <= maxWindowY; y++ {
		for z := 0; z <= maxWindowZ; z++ {
			seconds := float64(uint64(1)<<y) * (1 + float64(z)/4) * units.TimeSeconds
			entries = append(entries, windowEntry{seconds: seconds, y: uint8(y), z: uint8(z)})
		}
	}

	// Stable sort keeps enumeration order (y ascending, then z) for equal
	// durations, so quantization resolves ties to the smallest y, then z.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].seconds < entries[j].seconds
	})

	return &WindowTable{entries: entries}
}

// Quantize returns the (y, z) pair of the smallest tabulated duration that is
// at least the requested one. Durations at or below the smallest entry
// resolve to (0, 0); durations above the largest fail with
// ErrDurationOutOfRange.
func (t *WindowTable) Quantize(seconds float64) (y, z uint8, err error) {
	for _, e := range t.entries {
		if seconds <= e.seconds {
			return e.y, e.z, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %gs exceeds %gs", ErrDurationOutOfRange, seconds, t.Max())
}

// Max returns the largest encodable duration in seconds.
func (t *WindowTable) Max() float64 {
	return t.entries[len(t.entries)-1].seconds
}

// Duration returns the tabulated duration for an encodable (y, z) pair.
func (t *WindowTable) Duration(y, z uint8) float64 {
	for _, e := range t.entries {
		if e.y == y && e.z == z {
			return e.seconds
		}
	}
	return 0
}

func packWindow(y, z uint8) uint64 {
	return uint64(y) | uint64(z)<<windowYBits
}

func unpackWindow(tw uint64) (y, z uint8) {
	return uint8(tw & windowYMask), uint8(tw >> windowYBits & windowZMask)
}
