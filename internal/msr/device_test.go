// SPDX-FileCopyrightText: 2025 The Powerclamp Authors
// SPDX-License-Identifier: Apache-2.0

package msr

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeTree builds a /dev/cpu style directory with one register file per
// CPU, seeded with the given register values, and returns the path template.
func newFakeTree(t *testing.T, cpus int, seed map[Register]uint64) string {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < cpus; i++ {
		cpuDir := filepath.Join(dir, strconv.Itoa(i))
		require.NoError(t, os.MkdirAll(cpuDir, 0o755))

		f, err := os.Create(filepath.Join(cpuDir, "msr"))
		require.NoError(t, err)
		for reg, val := range seed {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], val)
			_, err := f.WriteAt(buf[:], int64(reg))
			require.NoError(t, err)
		}
		require.NoError(t, f.Close())
	}

	// noise that discovery must skip
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "microcode"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes"), []byte("x"), 0o644))

	return filepath.Join(dir, "%d", "msr")
}

func newTestDevice(t *testing.T, cpus int, seed map[Register]uint64) *Device {
	t.Helper()

	d := NewDevice(newFakeTree(t, cpus, seed), nil)
	require.NoError(t, d.Init())
	t.Cleanup(func() { _ = d.Shutdown() })
	return d
}

func readBack(t *testing.T, d *Device, cpu int, reg Register) uint64 {
	t.Helper()

	var buf [8]byte
	_, err := d.files[cpu].ReadAt(buf[:], int64(reg))
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(buf[:])
}

func TestBits(t *testing.T) {
	tests := []struct {
		val      uint64
		lo, hi   uint
		expected uint64
	}{
		{0x00AB0000, 16, 23, 0xAB},
		{0x3F000000, 24, 29, 0x3F},
		{0xF, 0, 3, 0xF},
		{0xFFFFFFFFFFFFFFFF, 0, 63, 0xFFFFFFFFFFFFFFFF},
		{0x8000000000000000, 63, 63, 1},
		{0xA0003, 16, 19, 0xA},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Bits(tt.val, tt.lo, tt.hi),
			"Bits(%#x, %d, %d)", tt.val, tt.lo, tt.hi)
	}
}

func TestDeviceInit(t *testing.T) {
	t.Run("discovers CPUs in ascending order", func(t *testing.T) {
		d := newTestDevice(t, 4, map[Register]uint64{RAPLPowerUnit: 0xA0E03})
		assert.Equal(t, []int{0, 1, 2, 3}, d.CPUs())
		assert.True(t, d.Available())
	})

	t.Run("fails without any CPU", func(t *testing.T) {
		dir := t.TempDir()
		d := NewDevice(filepath.Join(dir, "%d", "msr"), nil)
		assert.False(t, d.Available())
		assert.Error(t, d.Init())
	})
}

func TestDeviceRead(t *testing.T) {
	seed := map[Register]uint64{
		RAPLPowerUnit:     0xA0E03,
		TemperatureTarget: 0x640000,
	}
	d := newTestDevice(t, 2, seed)

	t.Run("ReadFirst", func(t *testing.T) {
		val, err := d.ReadFirst(RAPLPowerUnit)
		require.NoError(t, err)
		assert.Equal(t, uint64(0xA0E03), val)
	})

	t.Run("ReadAll", func(t *testing.T) {
		vals, err := d.ReadAll(TemperatureTarget)
		require.NoError(t, err)
		assert.Equal(t, []uint64{0x640000, 0x640000}, vals)
	})

	t.Run("ReadFirstBits applies inclusive mask", func(t *testing.T) {
		val, err := d.ReadFirstBits(TemperatureTarget, 16, 23)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), val)
	})

	t.Run("uninitialized device", func(t *testing.T) {
		var empty Device
		_, err := empty.ReadFirst(RAPLPowerUnit)
		assert.Error(t, err)
	})
}

func TestDeviceWrite(t *testing.T) {
	seed := map[Register]uint64{PkgPowerLimit: 0x42819800DD8160}

	t.Run("WriteAll reaches every CPU", func(t *testing.T) {
		d := newTestDevice(t, 3, seed)
		require.NoError(t, d.WriteAll(PkgPowerLimit, 0x1234))
		for cpu := 0; cpu < 3; cpu++ {
			assert.Equal(t, uint64(0x1234), readBack(t, d, cpu, PkgPowerLimit))
		}
	})

	t.Run("WriteOne touches a single CPU", func(t *testing.T) {
		d := newTestDevice(t, 2, seed)
		require.NoError(t, d.WriteOne(1, PkgPowerLimit, 0x9999))
		assert.Equal(t, seed[PkgPowerLimit], readBack(t, d, 0, PkgPowerLimit))
		assert.Equal(t, uint64(0x9999), readBack(t, d, 1, PkgPowerLimit))
	})

	t.Run("WriteAll stops at the first failing CPU", func(t *testing.T) {
		d := newTestDevice(t, 4, seed)

		// swap CPU 1's handle for a read-only one so its write fails
		require.NoError(t, d.files[1].Close())
		readOnly, err := os.Open(regFilePath(d, 1))
		require.NoError(t, err)
		d.files[1] = readOnly

		err = d.WriteAll(PkgPowerLimit, 0x5678)
		require.Error(t, err)

		var ioErr *IOError
		require.True(t, errors.As(err, &ioErr))
		assert.Equal(t, 1, ioErr.CPU)
		assert.Equal(t, PkgPowerLimit, ioErr.Register)
		assert.Equal(t, "write", ioErr.Op)

		// CPU 0 was written, CPUs 2 and 3 were left untouched
		assert.Equal(t, uint64(0x5678), readBack(t, d, 0, PkgPowerLimit))
		assert.Equal(t, seed[PkgPowerLimit], readBack(t, d, 2, PkgPowerLimit))
		assert.Equal(t, seed[PkgPowerLimit], readBack(t, d, 3, PkgPowerLimit))
	})
}

// regFilePath resolves the register file path of a CPU in a test device.
func regFilePath(d *Device, cpu int) string {
	return filepath.Join(filepath.Dir(filepath.Dir(d.devicePath)), strconv.Itoa(cpu), "msr")
}
