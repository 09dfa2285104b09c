// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package msr

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Device implements Registers over the kernel msr driver. Each logical CPU
// exposes an 8-byte-aligned register file (usually /dev/cpu/N/msr); a
// register value is 8 bytes at the register's byte offset, read and written
// in the platform's native little-endian order.
//
// Files are opened once during Init and held for the process lifetime.
type Device struct {
	devicePath string // path template, e.g. /dev/cpu/%d/msr
	logger     *slog.Logger

	cpus  []int // sorted logical CPU ids
	files map[int]*os.File
}

var _ Registers = (*Device)(nil)

// NewDevice creates register access over the given device path template.
func NewDevice(devicePath string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}

	return &Device{
		devicePath: devicePath,
		logger:     logger.With("service", "msr"),
		files:      make(map[int]*os.File),
	}
}

func (d *Device) Name() string {
	return "msr"
}

// Available reports whether the msr driver exposes at least one CPU.
func (d *Device) Available() bool {
	cpus, err := d.discoverCPUs()
	return err == nil && len(cpus) > 0
}

// Init discovers CPUs and opens their register files for read and write.
func (d *Device) Init() error {
	cpus, err := d.discoverCPUs()
	if err != nil {
		return fmt.Errorf("failed to scan for CPUs: %w", err)
	}
	if len(cpus) == 0 {
		return fmt.Errorf("no CPUs with MSR access found under %s", d.devicePath)
	}

	for _, cpu := range cpus {
		path := fmt.Sprintf(d.devicePath, cpu)
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			if closeErr := d.Shutdown(); closeErr != nil {
				d.logger.Warn("Failed to close MSR files", "error", closeErr)
			}
			return fmt.Errorf("failed to open MSR file %s: %w", path, err)
		}
		d.files[cpu] = f
	}
	d.cpus = cpus

	d.logger.Info("MSR device initialized", "cpus", len(d.cpus), "path", d.devicePath)
	return nil
}

// Shutdown closes all register files.
func (d *Device) Shutdown() error {
	var lastErr error
	for cpu, f := range d.files {
		if err := f.Close(); err != nil {
			lastErr = err
			d.logger.Warn("Failed to close MSR file", "cpu", cpu, "error", err)
		}
	}
	d.files = make(map[int]*os.File)
	d.cpus = nil
	return lastErr
}

// CPUs returns the logical CPU ids found during Init, in ascending order.
func (d *Device) CPUs() []int {
	return d.cpus
}

func (d *Device) ReadAll(reg Register) ([]uint64, error) {
	if len(d.cpus) == 0 {
		return nil, fmt.Errorf("msr device not initialized")
	}

	vals := make([]uint64, 0, len(d.cpus))
	for _, cpu := range d.cpus {
		val, err := d.readOne(cpu, reg)
		if err != nil {
			return nil, err
		}
		vals = append(vals, val)
	}
	return vals, nil
}

func (d *Device) ReadFirst(reg Register) (uint64, error) {
	if len(d.cpus) == 0 {
		return 0, fmt.Errorf("msr device not initialized")
	}
	return d.readOne(d.cpus[0], reg)
}

func (d *Device) ReadFirstBits(reg Register, lo, hi uint) (uint64, error) {
	val, err := d.ReadFirst(reg)
	if err != nil {
		return 0, err
	}
	return Bits(val, lo, hi), nil
}

func (d *Device) WriteAll(reg Register, val uint64) error {
	if len(d.cpus) == 0 {
		return fmt.Errorf("msr device not initialized")
	}

	for _, cpu := range d.cpus {
		if err := d.WriteOne(cpu, reg, val); err != nil {
			d.logger.Error("aborting broadcast write", "register", reg, "cpu", cpu, "error", err)
			return err
		}
	}
	return nil
}

func (d *Device) WriteOne(cpu int, reg Register, val uint64) error {
	f, ok := d.files[cpu]
	if !ok {
		return &IOError{Op: "write", CPU: cpu, Register: reg, Err: os.ErrNotExist}
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	if _, err := f.WriteAt(buf[:], int64(reg)); err != nil {
		return &IOError{Op: "write", CPU: cpu, Register: reg, Err: err}
	}
	return nil
}

func (d *Device) readOne(cpu int, reg Register) (uint64, error) {
	f, ok := d.files[cpu]
	if !ok {
		return 0, &IOError{Op: "read", CPU: cpu, Register: reg, Err: os.ErrNotExist}
	}

	var buf [8]byte
	if _, err := f.ReadAt(buf[:], int64(reg)); err != nil {
		return 0, &IOError{Op: "read", CPU: cpu, Register: reg, Err: err}
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// discoverCPUs scans the device directory for numeric per-CPU subdirectories
// that expose a register file.
func (d *Device) discoverCPUs() ([]int, error) {
	// e.g. "/dev/cpu/%d/msr" -> "/dev/cpu"
	cpuDir := filepath.Dir(filepath.Dir(d.devicePath))
	entries, err := os.ReadDir(cpuDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read CPU directory %s: %w", cpuDir, err)
	}

	var cpus []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		cpu, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		if _, err := os.Stat(fmt.Sprintf(d.devicePath, cpu)); err == nil {
			cpus = append(cpus, cpu)
		}
	}

	sort.Ints(cpus)
	return cpus, nil
}
