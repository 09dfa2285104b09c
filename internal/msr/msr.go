// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

// Package msr provides read and write access to per-CPU model specific
// registers through the kernel msr driver.
package msr

import "fmt"

// Register is the address of a model specific register.
type Register uint32

// Registers used by the limit planner.
const (
	// TemperatureTarget holds the critical temperature and the throttle
	// trip-point offset below it.
	TemperatureTarget Register = 0x1A2

	// RAPLPowerUnit holds the hardware scale factors converting raw power
	// and time-window fields to watts and seconds.
	RAPLPowerUnit Register = 0x606

	// PkgPowerLimit holds both package power-limit windows and the lock bit.
	PkgPowerLimit Register = 0x610
)

func (r Register) String() string {
	return fmt.Sprintf("0x%X", uint32(r))
}

// IOError is a failed register read or write on a specific CPU.
type IOError struct {
	Op       string // "read" or "write"
	CPU      int
	Register Register
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("msr %s %s cpu %d: %v", e.Op, e.Register, e.CPU, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Registers is per-CPU access to 64-bit registers at fixed addresses. All
// logical CPUs in the package are assumed to be configured identically, so
// the first CPU's value is representative for planning.
type Registers interface {
	// ReadAll reads reg from every CPU, in ascending CPU order.
	ReadAll(reg Register) ([]uint64, error)

	// ReadFirst reads reg from the first CPU.
	ReadFirst(reg Register) (uint64, error)

	// ReadFirstBits reads reg from the first CPU and extracts the inclusive
	// bit range [lo, hi].
	ReadFirstBits(reg Register, lo, hi uint) (uint64, error)

	// WriteAll writes val to reg on every CPU sequentially. It stops at the
	// first per-CPU failure; CPUs already written are not rolled back.
	WriteAll(reg Register, val uint64) error

	// WriteOne writes val to reg on a single CPU.
	WriteOne(cpu int, reg Register, val uint64) error
}

// Bits extracts the inclusive bit range [lo, hi] from val.
func Bits(val uint64, lo, hi uint) uint64 {
	if width := hi - lo + 1; width < 64 {
		return (val >> lo) & (1<<width - 1)
	}
	return val >> lo
}
